package domain

import (
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type IntegrationKind string

const (
	KindMobileMoney IntegrationKind = "mobile-money"
	KindBanking     IntegrationKind = "banking"
	KindFintech     IntegrationKind = "fintech"
)

type EndpointStatus string

const (
	EndpointUnknown  EndpointStatus = "unknown"
	EndpointOnline   EndpointStatus = "online"
	EndpointDegraded EndpointStatus = "degraded"
	EndpointOffline  EndpointStatus = "offline"
)

// Integration is an upstream provider API whose health is tracked.
type Integration struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Kind          IntegrationKind `json:"kind"`
	URL           string          `json:"url"`
	Status        EndpointStatus  `json:"status"`
	LatencyMS     int64           `json:"latency_ms"`
	Checks        int             `json:"checks"`
	Failures      int             `json:"failures"`
	LastCheckedAt *time.Time      `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// SuccessRate is the share of checks that succeeded, as a percentage. An
// integration that was never checked reports 0.
func (i Integration) SuccessRate() float64 {
	if i.Checks == 0 {
		return 0
	}
	return float64(i.Checks-i.Failures) / float64(i.Checks) * 100
}

func (i Integration) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return errors.Wrap(ErrInvalidIntegration, "name is required")
	}
	switch i.Kind {
	case KindMobileMoney, KindBanking, KindFintech:
	default:
		return errors.Wrapf(ErrInvalidIntegration, "unknown kind %q", i.Kind)
	}
	return validateURL(i.URL)
}

// APICall is one entry in an integration's request log.
type APICall struct {
	IntegrationID string    `json:"integration_id"`
	Method        string    `json:"method"`
	Path          string    `json:"path"`
	StatusCode    int       `json:"status_code"`
	LatencyMS     int64     `json:"latency_ms"`
	Error         string    `json:"error,omitempty"`
	At            time.Time `json:"at"`
}

// OK reports whether the call reached the endpoint and got a non-error reply.
func (c APICall) OK() bool {
	return c.Error == "" && c.StatusCode > 0 && c.StatusCode < 500
}

type WebhookEvent string

const (
	EventFraudAlert WebhookEvent = "fraud_alert"
	EventPing       WebhookEvent = "ping"
)

// Webhook is a subscriber URL that receives event deliveries.
type Webhook struct {
	ID              string       `json:"id"`
	URL             string       `json:"url"`
	Event           WebhookEvent `json:"event"`
	Active          bool         `json:"active"`
	Deliveries      int          `json:"deliveries"`
	Failures        int          `json:"failures"`
	LastError       string       `json:"last_error,omitempty"`
	LastTriggeredAt *time.Time   `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

func (w Webhook) Validate() error {
	if w.Event != EventFraudAlert {
		return errors.Wrapf(ErrInvalidIntegration, "unsupported webhook event %q", w.Event)
	}
	return validateURL(w.URL)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrapf(ErrInvalidIntegration, "url: %v", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Wrapf(ErrInvalidIntegration, "url %q must be absolute http(s)", raw)
	}
	return nil
}
