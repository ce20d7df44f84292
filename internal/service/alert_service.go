package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"custody-ledger/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// AlertSettings configures operator alert delivery.
type AlertSettings struct {
	WebhookURL string // empty = log only
	MaxRetries int
	RetryBase  time.Duration // doubled after each failed attempt
}

// webhookAlertNotifier implements ports.AlertNotifier by POSTing JSON to an
// operator webhook behind a circuit breaker.
type webhookAlertNotifier struct {
	settings   AlertSettings
	httpClient HTTPClient
	cb         *gobreaker.CircuitBreaker
	log        zerolog.Logger
}

// NewAlertNotifier creates a new webhook alert notifier.
func NewAlertNotifier(settings AlertSettings, httpClient HTTPClient, log zerolog.Logger) ports.AlertNotifier {
	if settings.MaxRetries < 0 {
		settings.MaxRetries = 0
	}
	return &webhookAlertNotifier{
		settings:   settings,
		httpClient: httpClient,
		cb:         newAlertCircuitBreaker(log),
		log:        log,
	}
}

// Notify delivers the alert, retrying with exponential backoff. Once the
// breaker is open further attempts fail fast until it half-opens.
func (n *webhookAlertNotifier) Notify(ctx context.Context, alert ports.Alert) error {
	n.log.Warn().
		Str("kind", alert.Kind).
		Str("severity", string(alert.Severity)).
		Str("summary", alert.Summary).
		Msg("operator alert")

	if n.settings.WebhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	delay := n.settings.RetryBase
	for attempt := 0; ; attempt++ {
		_, err = n.cb.Execute(func() (interface{}, error) {
			return nil, n.post(ctx, payload)
		})
		if err == nil {
			n.log.Info().Str("kind", alert.Kind).Int("attempt", attempt+1).Msg("alert delivered")
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("alert webhook unavailable: %w", err)
		}
		if attempt >= n.settings.MaxRetries {
			break
		}
		n.log.Warn().Err(err).Str("kind", alert.Kind).Int("attempt", attempt+1).Msg("alert delivery failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	n.log.Error().Err(err).Str("kind", alert.Kind).Msg("alert: all retry attempts exhausted")
	return fmt.Errorf("deliver alert: %w", err)
}

func (n *webhookAlertNotifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.settings.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned %d", resp.StatusCode)
	}
	return nil
}

func newAlertCircuitBreaker(log zerolog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "alert-webhook",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				log.Warn().Str("breaker", name).Msg("alert webhook seems down, stop allowing requests")
			}
			if from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen {
				log.Info().Str("breaker", name).Msg("checking alert webhook status")
			}
			if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
				log.Info().Str("breaker", name).Msg("alert webhook seems ok, restart allowing requests")
			}
		},
	})
}
