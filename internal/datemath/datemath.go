// Package datemath holds the calendar arithmetic used by the ledger. Every
// value is a UTC-midnight date; time-of-day is never meaningful.
package datemath

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the wire format of calendar dates.
	DateLayout = "2006-01-02"
	// MonthLayout is the wire format of invoice months.
	MonthLayout = "2006-01"
)

var monthNamesPT = [...]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a UTC-midnight date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// lastDay returns the last day of the given month.
func lastDay(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonthsPreserveDay adds n calendar months, clamping the day to the last
// valid day of the target month (Jan 31 + 1 -> Feb 28/29).
func AddMonthsPreserveDay(date time.Time, n int) time.Time {
	date = DateOnly(date)
	first := time.Date(date.Year(), date.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	day := date.Day()
	if ld := lastDay(first.Year(), first.Month()); day > ld {
		day = ld
	}
	return Date(first.Year(), first.Month(), day)
}

// AddDays adds n whole days.
func AddDays(date time.Time, n int) time.Time {
	return DateOnly(date).AddDate(0, 0, n)
}

// DifferenceInDays returns the whole days from b to a (a - b).
func DifferenceInDays(a, b time.Time) int {
	return int(DateOnly(a).Sub(DateOnly(b)).Hours() / 24)
}

// DifferenceInMonths returns the calendar months from b to a, ignoring days.
func DifferenceInMonths(a, b time.Time) int {
	return (a.Year()-b.Year())*12 + int(a.Month()) - int(b.Month())
}

// ParseDate parses a "2006-01-02" date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate formats a date as "2006-01-02".
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseMonth parses a "2006-01" month into the first day of that month.
func ParseMonth(s string) (time.Time, error) {
	t, err := time.ParseInLocation(MonthLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q: expected YYYY-MM", s)
	}
	return t, nil
}

// FormatMonth formats the month of t as "2006-01".
func FormatMonth(t time.Time) string {
	return t.UTC().Format(MonthLayout)
}

// MonthRange returns the first and last day of the month containing t.
func MonthRange(t time.Time) (time.Time, time.Time) {
	start := Date(t.Year(), t.Month(), 1)
	return start, Date(t.Year(), t.Month(), lastDay(t.Year(), t.Month()))
}

// ComputeInvoiceDueDate returns dueDay within invoiceMonth ("2024-02"),
// clamped to the month's last day.
func ComputeInvoiceDueDate(invoiceMonth string, dueDay int) (time.Time, error) {
	m, err := ParseMonth(invoiceMonth)
	if err != nil {
		return time.Time{}, err
	}
	if dueDay < 1 {
		dueDay = 1
	}
	if ld := lastDay(m.Year(), m.Month()); dueDay > ld {
		dueDay = ld
	}
	return Date(m.Year(), m.Month(), dueDay), nil
}

// InvoiceMonthFor returns the invoice month a purchase falls into. Purchases
// on or after the card's closing day go to the next month's invoice. The
// closing day is clamped to the purchase month's length.
func InvoiceMonthFor(purchase time.Time, closingDay int) string {
	purchase = DateOnly(purchase)
	closing := closingDay
	if ld := lastDay(purchase.Year(), purchase.Month()); closing > ld {
		closing = ld
	}
	if closing >= 1 && purchase.Day() >= closing {
		return FormatMonth(AddMonthsPreserveDay(Date(purchase.Year(), purchase.Month(), 1), 1))
	}
	return FormatMonth(purchase)
}

// ShiftMonth moves a "2006-01" month by n months.
func ShiftMonth(month string, n int) (string, error) {
	m, err := ParseMonth(month)
	if err != nil {
		return "", err
	}
	return FormatMonth(AddMonthsPreserveDay(m, n)), nil
}

// MonthLabelPT renders "2024-02" as "Fevereiro 2024".
func MonthLabelPT(month string) string {
	m, err := ParseMonth(month)
	if err != nil {
		return month
	}
	return fmt.Sprintf("%s %d", monthNamesPT[m.Month()-1], m.Year())
}
