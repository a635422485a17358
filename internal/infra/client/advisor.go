// Package client holds HTTP clients for external services.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/boddenberg/pj-finance-ledger/internal/domain"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("client")

const advisorService = "advisor"

// AdvisorClient calls the external AI advisor agent.
type AdvisorClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewAdvisorClient creates a new AdvisorClient.
func NewAdvisorClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *AdvisorClient {
	return &AdvisorClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:        cfg,
		logger:     logger,
	}
}

// Call sends the question and financial context to the agent and returns
// its answer.
func (c *AdvisorClient) Call(ctx context.Context, req *domain.AgentRequest) (*domain.AgentResponse, error) {
	ctx, span := tracer.Start(ctx, "AdvisorClient.Call")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", req.AccountID))

	if c.baseURL == "" {
		return nil, &domain.ErrExternalService{Service: advisorService, Err: errors.New("advisor URL not configured")}
	}

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, &domain.ErrExternalService{Service: advisorService, Err: err}
	}
	defer c.bulkhead.Release()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal agent request: %w", err)
	}

	result, err := c.cb.Execute(func() (any, error) {
		var agentResp domain.AgentResponse
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			url := fmt.Sprintf("%s/v1/agent/invoke", c.baseURL)
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return resilience.Permanent(err)
			}
			httpReq.Header.Set("Content-Type", "application/json")
			otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusOK:
			case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
				snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return resilience.Permanent(fmt.Errorf("advisor API returned status %d: %s", resp.StatusCode, snippet))
			default:
				c.logger.Warn("advisor API retryable status",
					zap.Int("status", resp.StatusCode),
					zap.String("account_id", req.AccountID),
				)
				return fmt.Errorf("advisor API returned status %d", resp.StatusCode)
			}

			if err := json.NewDecoder(resp.Body).Decode(&agentResp); err != nil {
				return resilience.Permanent(fmt.Errorf("decode advisor response: %w", err))
			}
			return nil
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return &agentResp, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &domain.ErrCircuitOpen{Service: advisorService}
		}
		return nil, &domain.ErrExternalService{Service: advisorService, Err: err}
	}

	resp := result.(*domain.AgentResponse)
	span.SetAttributes(attribute.Int("tokens.total", resp.TokensUsed.TotalTokens))
	return resp, nil
}
