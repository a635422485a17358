package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/pj-finance-ledger/internal/datemath"
	"github.com/boddenberg/pj-finance-ledger/internal/domain"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/observability"
	"github.com/boddenberg/pj-finance-ledger/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var advisorTracer = otel.Tracer("service/advisor")

const maxAdvisorMessageLen = 2000

// AdvisorService builds a financial context for the account and forwards the
// user's question to the external advisor agent.
type AdvisorService struct {
	stats    *StatsService
	invoices *InvoiceService
	caller   port.AdvisorCaller
	limiter  port.RateLimiter
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewAdvisorService creates the advisor with all dependencies injected.
func NewAdvisorService(
	stats *StatsService,
	invoices *InvoiceService,
	caller port.AdvisorCaller,
	limiter port.RateLimiter,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AdvisorService {
	return &AdvisorService{
		stats:    stats,
		invoices: invoices,
		caller:   caller,
		limiter:  limiter,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Ask answers a free-form question about the account's month.
func (a *AdvisorService) Ask(ctx context.Context, accountID string, req domain.AdvisorRequest) (*domain.AdvisorResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := advisorTracer.Start(ctx, "AdvisorService.Ask")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, &domain.ErrValidation{Field: "message", Message: "required"}
	}
	if len(message) > maxAdvisorMessageLen {
		return nil, &domain.ErrValidation{Field: "message", Message: fmt.Sprintf("must have at most %d characters", maxAdvisorMessageLen)}
	}
	month := req.Month
	if month == "" {
		month = datemath.FormatMonth(a.now().UTC())
	} else if _, err := datemath.ParseMonth(month); err != nil {
		return nil, &domain.ErrValidation{Field: "month", Message: err.Error()}
	}

	if err := a.limiter.Allow(accountID); err != nil {
		var limited *domain.ErrRateLimited
		if errors.As(err, &limited) {
			a.metrics.IncrRateLimited("advisor")
			a.logger.Warn("advisor rate limited",
				zap.String("account_id", accountID),
				zap.Duration("retry_after", limited.RetryAfter),
			)
		}
		return nil, err
	}

	start := time.Now()
	defer func() {
		a.metrics.RecordRequestDuration("advisor", time.Since(start))
	}()

	// --- Step 1: build context concurrently ---
	adv := &domain.AdvisorContext{AccountID: accountID, Month: month}
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, err := a.stats.GetAccountStats(gCtx, accountID, month)
		if err != nil {
			return fmt.Errorf("account stats: %w", err)
		}
		adv.Stats = st
		return nil
	})
	g.Go(func() error {
		cs, err := a.stats.GetCategoryStats(gCtx, accountID, month)
		if err != nil {
			return fmt.Errorf("category stats: %w", err)
		}
		adv.Categories = cs
		return nil
	})
	g.Go(func() error {
		invs, err := a.invoices.ListInvoices(gCtx, accountID, InvoiceFilter{})
		if err != nil {
			return fmt.Errorf("invoices: %w", err)
		}
		open := make([]domain.InvoiceSummary, 0, len(invs))
		for _, inv := range invs {
			if inv.Status != domain.InvoicePaid {
				inv.Transactions = nil
				open = append(open, inv)
			}
		}
		adv.OpenInvoices = open
		return nil
	})
	if err := g.Wait(); err != nil {
		a.logger.Error("failed to build advisor context", zap.String("account_id", accountID), zap.Error(err))
		return nil, err
	}

	// --- Step 2: call the agent ---
	agentStart := time.Now()
	resp, err := a.caller.Call(ctx, &domain.AgentRequest{AccountID: accountID, Query: message, Context: adv})
	a.metrics.RecordRequestDuration("advisor_agent", time.Since(agentStart))
	if err != nil {
		a.metrics.IncrAdvisorRequest("error")
		a.metrics.IncrExternalError("advisor")
		a.logger.Error("advisor call failed", zap.String("account_id", accountID), zap.Error(err))

		var circuit *domain.ErrCircuitOpen
		var external *domain.ErrExternalService
		if errors.As(err, &circuit) || errors.As(err, &external) {
			return nil, err
		}
		return nil, &domain.ErrExternalService{Service: "advisor", Err: err}
	}

	// --- Step 3: token accounting ---
	a.metrics.IncrAdvisorRequest("success")
	a.metrics.RecordTokens(resp.TokensUsed.PromptTokens, resp.TokensUsed.CompletionTokens)

	return &domain.AdvisorResponse{
		Answer:    resp.Answer,
		Month:     month,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}
