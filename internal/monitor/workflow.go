package monitor

import (
	"context"
	"time"

	"github.com/udtms/txmonitor/internal/domain"
	"github.com/udtms/txmonitor/internal/logger"
	"github.com/udtms/txmonitor/internal/repository"
)

// AlertService applies operator decisions to fraud alerts.
type AlertService struct {
	repo *repository.AlertRepo
	now  func() time.Time
}

func NewAlertService(repo *repository.AlertRepo) *AlertService {
	return &AlertService{repo: repo, now: time.Now}
}

func (s *AlertService) Investigate(ctx context.Context, id string) (*domain.FraudAlert, error) {
	return s.transition(ctx, id, domain.AlertInvestigating)
}

func (s *AlertService) Block(ctx context.Context, id string) (*domain.FraudAlert, error) {
	return s.transition(ctx, id, domain.AlertBlocked)
}

func (s *AlertService) Dismiss(ctx context.Context, id string) (*domain.FraudAlert, error) {
	return s.transition(ctx, id, domain.AlertDismissed)
}

func (s *AlertService) List(ctx context.Context, f repository.AlertFilter) ([]domain.FraudAlert, int, error) {
	return s.repo.List(ctx, f)
}

func (s *AlertService) Stats(ctx context.Context) (*domain.AlertStats, error) {
	return s.repo.Stats(ctx)
}

func (s *AlertService) transition(ctx context.Context, id string, next domain.AlertStatus) (*domain.FraudAlert, error) {
	alert, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := alert.Transition(next, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, *alert); err != nil {
		return nil, err
	}
	logger.Info("[alerts] status changed", "alert_id", id, "status", next)
	return alert, nil
}

// InvestigationService closes reconciliation investigations.
type InvestigationService struct {
	repo *repository.InvestigationRepo
	now  func() time.Time
}

func NewInvestigationService(repo *repository.InvestigationRepo) *InvestigationService {
	return &InvestigationService{repo: repo, now: time.Now}
}

func (s *InvestigationService) Resolve(ctx context.Context, id string) (*domain.Investigation, error) {
	return s.close(ctx, id, domain.InvestigationResolved)
}

func (s *InvestigationService) Ignore(ctx context.Context, id string) (*domain.Investigation, error) {
	return s.close(ctx, id, domain.InvestigationIgnored)
}

func (s *InvestigationService) List(ctx context.Context, f repository.InvestigationFilter) ([]domain.Investigation, int, error) {
	return s.repo.List(ctx, f)
}

func (s *InvestigationService) CountOpen(ctx context.Context) (int, error) {
	return s.repo.CountOpen(ctx)
}

func (s *InvestigationService) close(ctx context.Context, id string, status domain.InvestigationStatus) (*domain.Investigation, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := inv.Close(status, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, *inv); err != nil {
		return nil, err
	}
	logger.Info("[investigations] closed", "investigation_id", id, "status", status)
	return inv, nil
}
