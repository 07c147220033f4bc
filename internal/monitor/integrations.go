package monitor

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/udtms/txmonitor/internal/domain"
	"github.com/udtms/txmonitor/internal/logger"
	"github.com/udtms/txmonitor/internal/metrics"
	"github.com/udtms/txmonitor/internal/repository"
)

type HealthConfig struct {
	// Interval between background sweeps; zero disables them.
	Interval time.Duration
	// Checks slower than DegradedLatency mark the endpoint degraded.
	DegradedLatency time.Duration
	Workers         int
}

func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		Interval:        time.Minute,
		DegradedLatency: time.Second,
		Workers:         4,
	}
}

// IntegrationService tracks provider endpoints and webhook subscriptions.
type IntegrationService struct {
	repo     *repository.IntegrationRepo
	client   *Outbound
	webhooks *WebhookNotifier
	metrics  *metrics.Metrics
	cfg      HealthConfig
	now      func() time.Time
}

func NewIntegrationService(
	repo *repository.IntegrationRepo,
	client *Outbound,
	webhooks *WebhookNotifier,
	m *metrics.Metrics,
	cfg HealthConfig,
) *IntegrationService {
	if client == nil {
		client = NewOutbound(0)
	}
	if webhooks == nil {
		webhooks = NewWebhookNotifier(repo, client, m)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &IntegrationService{repo: repo, client: client, webhooks: webhooks, metrics: m, cfg: cfg, now: time.Now}
}

func (s *IntegrationService) Register(ctx context.Context, name string, kind domain.IntegrationKind, endpoint string) (*domain.Integration, error) {
	i := domain.Integration{
		ID:        uuid.NewString(),
		Name:      name,
		Kind:      kind,
		URL:       endpoint,
		Status:    domain.EndpointUnknown,
		CreatedAt: s.now(),
	}
	if err := i.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, i); err != nil {
		return nil, err
	}
	logger.Info("[integrations] registered", "integration_id", i.ID, "name", name, "url", endpoint)
	return &i, nil
}

func (s *IntegrationService) List(ctx context.Context) ([]domain.Integration, error) {
	return s.repo.List(ctx)
}

func (s *IntegrationService) Get(ctx context.Context, id string) (*domain.Integration, error) {
	return s.repo.Get(ctx, id)
}

func (s *IntegrationService) Remove(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *IntegrationService) Calls(ctx context.Context, id string, limit int) ([]domain.APICall, error) {
	if id != "" {
		if _, err := s.repo.Get(ctx, id); err != nil {
			return nil, err
		}
	}
	return s.repo.ListCalls(ctx, id, limit)
}

// Check pings one integration and stores the outcome. An unreachable
// endpoint is a recorded result, not an error.
func (s *IntegrationService) Check(ctx context.Context, id string) (*domain.Integration, error) {
	i, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	call := s.ping(ctx, *i)
	status := s.classify(call)

	if err := s.repo.RecordCheck(ctx, call, status); err != nil {
		return nil, err
	}
	s.metrics.ObserveEndpointCheck(i.Name, call)
	if status != i.Status {
		logger.Info("[integrations] status changed",
			"integration_id", i.ID,
			"name", i.Name,
			"from", i.Status,
			"to", status,
			"latency_ms", call.LatencyMS,
		)
	}
	return s.repo.Get(ctx, id)
}

// CheckAll checks every registered integration concurrently.
func (s *IntegrationService) CheckAll(ctx context.Context) error {
	list, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, i := range list {
		i := i
		g.Go(func() error {
			_, err := s.Check(gctx, i.ID)
			return err
		})
	}
	return g.Wait()
}

// Run sweeps all integrations every interval until ctx is cancelled.
func (s *IntegrationService) Run(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	logger.Info("[integrations] health checks started", "interval", s.cfg.Interval.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("[integrations] health checks stopped")
			return
		case <-ticker.C:
			if err := s.CheckAll(ctx); err != nil {
				logger.Error("[integrations] health sweep failed", "error", err)
			}
		}
	}
}

func (s *IntegrationService) ping(ctx context.Context, i domain.Integration) domain.APICall {
	call := domain.APICall{IntegrationID: i.ID, Method: http.MethodGet, Path: "/"}
	if u, err := url.Parse(i.URL); err == nil && u.Path != "" {
		call.Path = u.Path
	}

	start := time.Now()
	call.At = s.now()
	status, err := s.client.Do(ctx, http.MethodGet, i.URL, nil, nil)
	call.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		call.Error = err.Error()
		return call
	}
	call.StatusCode = status
	return call
}

func (s *IntegrationService) classify(call domain.APICall) domain.EndpointStatus {
	switch {
	case !call.OK():
		return domain.EndpointOffline
	case call.StatusCode >= 400:
		return domain.EndpointDegraded
	case s.cfg.DegradedLatency > 0 && time.Duration(call.LatencyMS)*time.Millisecond > s.cfg.DegradedLatency:
		return domain.EndpointDegraded
	default:
		return domain.EndpointOnline
	}
}

// --- webhooks ---

func (s *IntegrationService) RegisterWebhook(ctx context.Context, endpoint string, event domain.WebhookEvent) (*domain.Webhook, error) {
	if event == "" {
		event = domain.EventFraudAlert
	}
	w := domain.Webhook{
		ID:        uuid.NewString(),
		URL:       endpoint,
		Event:     event,
		Active:    true,
		CreatedAt: s.now(),
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateWebhook(ctx, w); err != nil {
		return nil, err
	}
	logger.Info("[webhooks] registered", "webhook_id", w.ID, "url", endpoint, "event", event)
	return &w, nil
}

func (s *IntegrationService) Webhooks(ctx context.Context) ([]domain.Webhook, error) {
	return s.repo.ListWebhooks(ctx, "")
}

func (s *IntegrationService) RemoveWebhook(ctx context.Context, id string) error {
	return s.repo.DeleteWebhook(ctx, id)
}

// TestWebhook sends a ping to the webhook. A failed delivery shows up in the
// returned webhook's LastError.
func (s *IntegrationService) TestWebhook(ctx context.Context, id string) (*domain.Webhook, error) {
	hook, err := s.repo.GetWebhook(ctx, id)
	if err != nil {
		return nil, err
	}
	payload := WebhookPayload{Event: domain.EventPing, SentAt: s.now().UTC()}
	if err := s.webhooks.Deliver(ctx, *hook, payload, ""); err != nil {
		return nil, err
	}
	return s.repo.GetWebhook(ctx, id)
}
