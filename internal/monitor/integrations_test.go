package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/udtms/txmonitor/internal/domain"
	"github.com/udtms/txmonitor/internal/profile"
	"github.com/udtms/txmonitor/internal/repository"
)

func newIntegrationService(t *testing.T) (*IntegrationService, *repository.IntegrationRepo) {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := repository.NewIntegrationRepo(db)
	client := NewOutbound(2 * time.Second)
	svc := NewIntegrationService(repo, client, NewWebhookNotifier(repo, client, nil), nil,
		HealthConfig{DegradedLatency: time.Minute, Workers: 2})
	return svc, repo
}

func TestIntegrationService_CheckClassifiesEndpoints(t *testing.T) {
	ctx := context.Background()
	svc, repo := newIntegrationService(t)

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	gone := httptest.NewServer(http.NotFoundHandler())
	goneURL := gone.URL
	gone.Close()

	up, err := svc.Register(ctx, "MTN Mobile Money", domain.KindMobileMoney, healthy.URL+"/v1/health")
	require.NoError(t, err)
	assert.Equal(t, domain.EndpointUnknown, up.Status)
	down, err := svc.Register(ctx, "Bank API", domain.KindBanking, failing.URL)
	require.NoError(t, err)
	offline, err := svc.Register(ctx, "Stripe", domain.KindFintech, goneURL)
	require.NoError(t, err)

	require.NoError(t, svc.CheckAll(ctx))

	got, err := svc.Get(ctx, up.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EndpointOnline, got.Status)
	assert.Equal(t, 1, got.Checks)
	assert.Zero(t, got.Failures)

	got, err = svc.Get(ctx, down.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EndpointOffline, got.Status)
	assert.Equal(t, 1, got.Failures)

	got, err = svc.Check(ctx, offline.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EndpointOffline, got.Status)
	assert.Equal(t, 2, got.Checks)

	calls, err := repo.ListCalls(ctx, up.ID, 10)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "/v1/health", calls[0].Path)
	assert.Equal(t, http.StatusOK, calls[0].StatusCode)

	calls, err = svc.Calls(ctx, offline.ID, 10)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.NotEmpty(t, calls[0].Error)

	_, err = svc.Calls(ctx, "NOPE", 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIntegrationService_ClientErrorIsDegraded(t *testing.T) {
	svc, _ := newIntegrationService(t)
	assert.Equal(t, domain.EndpointDegraded, svc.classify(domain.APICall{StatusCode: http.StatusUnauthorized}))
	assert.Equal(t, domain.EndpointOnline, svc.classify(domain.APICall{StatusCode: http.StatusOK, LatencyMS: 10}))
	assert.Equal(t, domain.EndpointDegraded, svc.classify(domain.APICall{StatusCode: http.StatusOK, LatencyMS: 2 * 60 * 1000}))
	assert.Equal(t, domain.EndpointOffline, svc.classify(domain.APICall{Error: "timeout"}))
}

func TestIntegrationService_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc, _ := newIntegrationService(t)

	_, err := svc.Register(ctx, "", domain.KindBanking, "https://bank.example")
	assert.ErrorIs(t, err, domain.ErrInvalidIntegration)
	_, err = svc.Register(ctx, "Bank", "satellite", "https://bank.example")
	assert.ErrorIs(t, err, domain.ErrInvalidIntegration)
	_, err = svc.Register(ctx, "Bank", domain.KindBanking, "bank.example/v1")
	assert.ErrorIs(t, err, domain.ErrInvalidIntegration)
	_, err = svc.RegisterWebhook(ctx, "ftp://hooks.example", "")
	assert.ErrorIs(t, err, domain.ErrInvalidIntegration)
	_, err = svc.RegisterWebhook(ctx, "https://hooks.example", "transaction_created")
	assert.ErrorIs(t, err, domain.ErrInvalidIntegration)
}

type hookReceiver struct {
	mu       sync.Mutex
	payloads []WebhookPayload
	keys     []string
	status   int
}

func (h *hookReceiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var p WebhookPayload
	_ = json.Unmarshal(body, &p)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.payloads = append(h.payloads, p)
	h.keys = append(h.keys, r.Header.Get("Idempotency-Key"))
	if h.status != 0 {
		w.WriteHeader(h.status)
	}
}

func TestWebhookNotifier_PostsAlerts(t *testing.T) {
	ctx := context.Background()
	svc, repo := newIntegrationService(t)

	recv := &hookReceiver{}
	srv := httptest.NewServer(recv)
	defer srv.Close()

	hook, err := svc.RegisterWebhook(ctx, srv.URL+"/fraud", "")
	require.NoError(t, err)
	assert.Equal(t, domain.EventFraudAlert, hook.Event)

	n := NewWebhookNotifier(repo, NewOutbound(2*time.Second), nil)
	txn := alertingBurst()[5]
	a := domain.RiskAssessment{
		TransactionID: txn.ID, CustomerID: txn.CustomerID, Score: 85,
		Severity: domain.SeverityHigh, TriggeredRules: []domain.RuleID{domain.RuleVelocity},
	}
	require.NoError(t, n.Notify(ctx, txn, a))

	require.Len(t, recv.payloads, 1)
	got := recv.payloads[0]
	assert.Equal(t, domain.EventFraudAlert, got.Event)
	assert.Equal(t, "CUST-A-T5", got.TransactionID)
	assert.Equal(t, 85, got.Score)
	require.NotNil(t, got.Amount)
	assert.True(t, got.Amount.Equal(txn.Amount))
	assert.Equal(t, []string{"CUST-A-T5"}, recv.keys)

	stored, err := repo.GetWebhook(ctx, hook.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Deliveries)
	assert.Zero(t, stored.Failures)
}

func TestWebhookNotifier_FailedDeliveryIsRecorded(t *testing.T) {
	ctx := context.Background()
	svc, repo := newIntegrationService(t)

	recv := &hookReceiver{status: http.StatusBadGateway}
	srv := httptest.NewServer(recv)
	defer srv.Close()

	hook, err := svc.RegisterWebhook(ctx, srv.URL, domain.EventFraudAlert)
	require.NoError(t, err)

	n := NewWebhookNotifier(repo, NewOutbound(2*time.Second), nil)
	txn := alertingBurst()[5]
	require.NoError(t, n.Notify(ctx, txn, domain.RiskAssessment{TransactionID: txn.ID, Severity: domain.SeverityHigh}))

	stored, err := repo.GetWebhook(ctx, hook.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Failures)
	assert.Contains(t, stored.LastError, "502")
}

func TestIntegrationService_TestWebhookSendsPing(t *testing.T) {
	ctx := context.Background()
	svc, _ := newIntegrationService(t)

	recv := &hookReceiver{}
	srv := httptest.NewServer(recv)
	defer srv.Close()

	hook, err := svc.RegisterWebhook(ctx, srv.URL, "")
	require.NoError(t, err)

	got, err := svc.TestWebhook(ctx, hook.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Deliveries)
	require.Len(t, recv.payloads, 1)
	assert.Equal(t, domain.EventPing, recv.payloads[0].Event)
	assert.Equal(t, []string{""}, recv.keys)

	require.NoError(t, svc.RemoveWebhook(ctx, hook.ID))
	_, err = svc.TestWebhook(ctx, hook.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNotifiers_StopAtFirstError(t *testing.T) {
	first := &recordingNotifier{err: fmt.Errorf("db locked")}
	second := &recordingNotifier{}
	ns := Notifiers{first, nil, second}

	err := ns.Notify(context.Background(), domain.Transaction{ID: "T1"}, domain.RiskAssessment{})
	assert.ErrorContains(t, err, "db locked")
	assert.Empty(t, second.notified)

	first.err = nil
	require.NoError(t, ns.Notify(context.Background(), domain.Transaction{ID: "T1"}, domain.RiskAssessment{}))
	assert.Equal(t, []string{"T1"}, first.notified)
	assert.Equal(t, []string{"T1"}, second.notified)
}

func TestPipeline_AlertsReachWebhooks(t *testing.T) {
	ctx := context.Background()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	recv := &hookReceiver{}
	srv := httptest.NewServer(recv)
	defer srv.Close()

	hooks := repository.NewIntegrationRepo(db)
	require.NoError(t, hooks.CreateWebhook(ctx, domain.Webhook{
		ID: "W1", URL: srv.URL, Event: domain.EventFraudAlert, Active: true, CreatedAt: batchStart,
	}))

	alertRepo := repository.NewAlertRepo(db)
	n := Notifiers{NewAlertNotifier(alertRepo, nil), NewWebhookNotifier(hooks, NewOutbound(2*time.Second), nil)}
	p := newTestPipeline(t, profile.NewMemoryStore(), newMemAssessments(), n)

	res, err := p.Process(ctx, alertingBurst())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Alerts)
	require.Len(t, recv.payloads, 1)
	assert.Equal(t, "CUST-A-T5", recv.payloads[0].TransactionID)

	_, total, err := alertRepo.List(ctx, repository.AlertFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
