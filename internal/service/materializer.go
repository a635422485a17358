package service

import (
	"sort"
	"time"

	"github.com/boddenberg/pj-finance-ledger/internal/datemath"
	"github.com/boddenberg/pj-finance-ledger/internal/domain"
)

// maxOccurrences bounds the monthly walk of one definition (10 years).
const maxOccurrences = 120

// MaterializeInput holds the three row sets the materializer merges.
// Exceptions must be the account's full set, not only the in-range ones,
// since they also drive suppression of virtual occurrences.
type MaterializeInput struct {
	Physical    []domain.Transaction
	Exceptions  []domain.Transaction
	Definitions []domain.Transaction
	Range       domain.DateRange
}

// MaterializeResult is the merged, date-ordered view of a range.
type MaterializeResult struct {
	Transactions []domain.Transaction
	Physical     int
	Exceptions   int
	Virtual      int
}

// Materialize expands monthly recurrence definitions into virtual occurrences
// within the range and merges them with physical rows and exceptions.
//
// Output is sorted by date, then by creation time. Virtual occurrences carry
// their definition's creation time; remaining ties list physical rows first,
// then exceptions, then virtual occurrences. The function has no side effects
// and does not mutate its input.
func Materialize(in MaterializeInput) MaterializeResult {
	start := datemath.DateOnly(in.Range.Start)
	end := datemath.DateOnly(in.Range.End)
	rng := domain.DateRange{Start: start, End: end}

	suppressed := make(map[string]struct{}, len(in.Exceptions))
	for i := range in.Exceptions {
		ex := &in.Exceptions[i]
		if !ex.IsException || ex.ExceptionForDate == nil || ex.RecurrenceGroup() == "" {
			continue
		}
		suppressed[occurrenceKey(ex.RecurrenceGroup(), *ex.ExceptionForDate)] = struct{}{}
	}

	var res MaterializeResult
	out := make([]domain.Transaction, 0, len(in.Physical)+len(in.Exceptions))

	for i := range in.Physical {
		p := &in.Physical[i]
		if !p.IsPhysicalListing() || !rng.Contains(datemath.DateOnly(p.Date)) {
			continue
		}
		out = append(out, p.Clone())
		res.Physical++
	}

	for i := range in.Exceptions {
		ex := &in.Exceptions[i]
		if !ex.IsException || !rng.Contains(datemath.DateOnly(ex.Date)) {
			continue
		}
		c := ex.Clone()
		c.VirtualDate = domain.TimePtr(datemath.DateOnly(c.Date))
		if ex.ExceptionForDate != nil {
			c.VirtualDate = domain.TimePtr(datemath.DateOnly(*ex.ExceptionForDate))
		}
		out = append(out, c)
		res.Exceptions++
	}

	for i := range in.Definitions {
		def := &in.Definitions[i]
		if !def.IsRecurrenceDefinition() {
			continue
		}
		groupID := def.RecurrenceGroup()
		for n := 0; n < maxOccurrences; n++ {
			d := datemath.AddMonthsPreserveDay(def.Date, n)
			if d.After(end) {
				break
			}
			if def.RecurrenceEndDate != nil && d.After(datemath.DateOnly(*def.RecurrenceEndDate)) {
				break
			}
			if d.Before(start) {
				continue
			}
			if groupID != "" {
				if _, skip := suppressed[occurrenceKey(groupID, d)]; skip {
					continue
				}
			}
			v := def.Clone()
			v.Date = d
			v.Paid = false
			v.VirtualDate = domain.TimePtr(d)
			out = append(out, v)
			res.Virtual++
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	res.Transactions = out
	return res
}

func occurrenceKey(groupID string, d time.Time) string {
	return groupID + "|" + datemath.FormatDate(d)
}
