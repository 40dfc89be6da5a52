// Package agent integrates with the external voice-agent provider.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"log/slog"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"go.povoice.tech/internal/common/apperr"
	"go.povoice.tech/internal/common/metrics"
	"go.povoice.tech/internal/config"
)

// POItem is one purchase order handed to the agent for a call
type POItem struct {
	ID          string `json:"id"`
	PONumber    string `json:"poNumber"`
	POLine      string `json:"poLine"`
	ActionType  string `json:"actionType"`
	DueDate     string `json:"dueDate"`
	Recommended string `json:"recommendedDate,omitempty"`
	DaysDiff    int    `json:"daysDiff"`
	ValueCents  int64  `json:"valueCents"`
}

// CallRequest asks the provider to place one call covering a batch
type CallRequest struct {
	BatchID      string   `json:"batchId"`
	SupplierID   string   `json:"supplierId"`
	SupplierName string   `json:"supplierName"`
	Phone        string   `json:"phone,omitempty"`
	Email        string   `json:"email,omitempty"`
	Attempt      int      `json:"attempt"`
	POs          []POItem `json:"pos"`
	CallbackURL  string   `json:"callbackUrl"`
}

// CallResult identifies the run the provider started
type CallResult struct {
	RunID  string `json:"run_id"`
	RunURL string `json:"run_url"`
}

// Client triggers calls at the voice-agent provider
type Client interface {
	// TriggerCall asks the provider to start a call for the batch
	TriggerCall(ctx context.Context, req CallRequest) (CallResult, error)
}

// Disabled is the client used when no provider URL is configured.
// Every trigger fails with a config error so batches stay queued
// instead of burning attempts.
type Disabled struct{}

// TriggerCall always fails with NO_PROVIDER_CONFIGURED
func (Disabled) TriggerCall(ctx context.Context, req CallRequest) (CallResult, error) {
	return CallResult{}, apperr.ConfigMissing(apperr.CodeNoProvider, "no agent provider configured")
}

// HTTPClient is the production provider client. Outbound calls are
// rate limited and guarded by a circuit breaker so a flapping provider
// does not burn the retry budget of every queued batch.
type HTTPClient struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter

	providerURL string
	apiKey      string
}

// NewHTTPClient creates a provider client from config. Returns an
// error when no provider URL is configured.
func NewHTTPClient(cfg config.AgentConfig) (*HTTPClient, error) {
	if cfg.ProviderURL == "" {
		return nil, apperr.ConfigMissing(apperr.CodeNoProvider, "no agent provider configured")
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	callsPerSecond := cfg.CallsPerSecond
	if callsPerSecond <= 0 {
		callsPerSecond = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "agent-provider",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Info("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())

			var stateValue float64
			switch to {
			case gobreaker.StateClosed:
				stateValue = float64(metrics.CircuitBreakerClosed)
			case gobreaker.StateOpen:
				stateValue = float64(metrics.CircuitBreakerOpen)
			case gobreaker.StateHalfOpen:
				stateValue = float64(metrics.CircuitBreakerHalfOpen)
			}
			metrics.AgentCircuitBreakerState.Set(stateValue)
		},
	})

	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		},
		breaker:     breaker,
		limiter:     rate.NewLimiter(rate.Limit(callsPerSecond), 1),
		providerURL: cfg.ProviderURL,
		apiKey:      cfg.APIKey,
	}, nil
}

// TriggerCall asks the provider to start a call for the batch
func (c *HTTPClient) TriggerCall(ctx context.Context, req CallRequest) (CallResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return CallResult{}, apperr.Timeout(apperr.CodeProviderTimeout, "rate limiter wait aborted").WithCause(err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.executeOnce(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.AgentCallsTotal.WithLabelValues("circuit_open").Inc()
			return CallResult{}, apperr.ExternalService(apperr.CodeProviderFailed, "agent provider circuit open").WithCause(err)
		}
		return CallResult{}, err
	}

	return result.(CallResult), nil
}

func (c *HTTPClient) executeOnce(ctx context.Context, req CallRequest) (CallResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return CallResult{}, apperr.Internal(apperr.CodeUnexpected, "failed to encode call request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.providerURL, bytes.NewReader(payload))
	if err != nil {
		return CallResult{}, apperr.Internal(apperr.CodeUnexpected, "failed to build call request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	slog.Debug("Triggering agent call",
		"batchId", req.BatchID,
		"supplierId", req.SupplierID,
		"poCount", len(req.POs))

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	metrics.AgentCallDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.AgentCallsTotal.WithLabelValues("timeout").Inc()
			return CallResult{}, apperr.Timeout(apperr.CodeProviderTimeout, "agent provider call timed out").WithCause(err)
		}
		metrics.AgentCallsTotal.WithLabelValues("error").Inc()
		return CallResult{}, apperr.ExternalService(apperr.CodeProviderFailed, "agent provider unreachable").WithCause(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.AgentCallsTotal.WithLabelValues("error").Inc()
		return CallResult{}, apperr.ExternalService(apperr.CodeProviderFailed,
			fmt.Sprintf("agent provider returned status %d", resp.StatusCode)).
			WithDetail("status", resp.StatusCode)
	}

	var result CallResult
	if err := json.Unmarshal(body, &result); err != nil {
		metrics.AgentCallsTotal.WithLabelValues("error").Inc()
		return CallResult{}, apperr.ExternalService(apperr.CodeProviderFailed, "agent provider returned undecodable body").WithCause(err)
	}
	if result.RunID == "" {
		metrics.AgentCallsTotal.WithLabelValues("error").Inc()
		return CallResult{}, apperr.ExternalService(apperr.CodeProviderFailed, "agent provider returned no run id")
	}

	metrics.AgentCallsTotal.WithLabelValues("success").Inc()
	return result, nil
}
