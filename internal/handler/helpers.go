package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/pj-finance-ledger/internal/datemath"
	"github.com/boddenberg/pj-finance-ledger/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error  string                 `json:"error"`
	Fields []domain.ErrValidation `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return &domain.ErrValidation{Field: "body", Message: "request body is required"}
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &domain.ErrValidation{Field: "body", Message: "invalid request body"}
	}
	return nil
}

// parseAmount accepts a JSON number or a numeric string ("150.50").
func parseAmount(raw json.RawMessage, field string) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero, &domain.ErrValidation{Field: field, Message: "is required"}
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return decimal.Zero, &domain.ErrValidation{Field: field, Message: "must be a number"}
		}
		s = strings.TrimSpace(str)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &domain.ErrValidation{Field: field, Message: "must be a number"}
	}
	return d, nil
}

// parseOptionalAmount returns nil when the field was omitted.
func parseOptionalAmount(raw json.RawMessage, field string) (*decimal.Decimal, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	d, err := parseAmount(raw, field)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseDate(s, field string) (time.Time, error) {
	if s == "" {
		return time.Time{}, &domain.ErrValidation{Field: field, Message: "is required"}
	}
	d, err := datemath.ParseDate(s)
	if err != nil {
		return time.Time{}, &domain.ErrValidation{Field: field, Message: err.Error()}
	}
	return d, nil
}

func parseOptionalDate(s *string, field string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := parseDate(*s, field)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// parseDateRange reads ?from=&to= and defaults to the current month.
func parseDateRange(r *http.Request, now time.Time) (domain.DateRange, error) {
	start, end := datemath.MonthRange(now)
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		d, err := parseDate(v, "from")
		if err != nil {
			return domain.DateRange{}, err
		}
		start = d
	}
	if v := q.Get("to"); v != "" {
		d, err := parseDate(v, "to")
		if err != nil {
			return domain.DateRange{}, err
		}
		end = d
	}
	return domain.DateRange{Start: start, End: end}, nil
}

// parseGroupRef reads the series hints a client sends with an edit or a
// delete, either from the body or from query parameters.
func parseGroupRef(installmentsGroupID, recurrenceGroupID, exceptionForDate string) (domain.GroupRef, error) {
	ref := domain.GroupRef{
		InstallmentsGroupID: installmentsGroupID,
		RecurrenceGroupID:   recurrenceGroupID,
	}
	if exceptionForDate != "" {
		d, err := parseDate(exceptionForDate, "exceptionForDate")
		if err != nil {
			return ref, err
		}
		ref.ExceptionForDate = &d
	}
	return ref, nil
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var validation *domain.ErrValidation
	var validationFields *domain.ErrValidationFields
	var forbidden *domain.ErrForbidden
	var unauthorized *domain.ErrUnauthorized
	var conflict *domain.ErrConflict
	var rateLimited *domain.ErrRateLimited
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &validationFields):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Fields: validationFields.Fields})
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &rateLimited):
		logger.Warn("rate limited", zap.String("key", rateLimited.Key))
		secs := int(rateLimited.RetryAfter.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &external):
		logger.Error("external service failure", zap.String("service", external.Service), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
