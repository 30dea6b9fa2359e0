package reports

import (
	"context"
	"fmt"
	"time"

	"grainledger/internal/core/apperror"
	"grainledger/internal/core/entity"
	"grainledger/internal/core/id"
	"grainledger/internal/core/tx"
	"grainledger/internal/domain/ledger"
	"grainledger/pkg/logger"
)

// Service generates period reports from live movement rows.
type Service struct {
	repo      Repository
	movements ledger.MovementRepository
	txManager tx.Manager
}

// NewService creates the report aggregator.
func NewService(repo Repository, movements ledger.MovementRepository, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		movements: movements,
		txManager: txManager,
	}
}

// GenerateDaily aggregates one day of movements for an actor and stores the
// report. An existing report for the same day is an error unless force is
// set, in which case the stored report is replaced whole.
func (s *Service) GenerateDaily(ctx context.Context, day time.Time, actorID id.ID, force bool) (*entity.PeriodReport, error) {
	start, end := entity.DayWindow(day)
	return s.generate(ctx, entity.PeriodDaily, start, end, actorID, force)
}

func (s *Service) generate(ctx context.Context, periodType entity.PeriodType, start, end time.Time, actorID id.ID, force bool) (*entity.PeriodReport, error) {
	data, err := s.aggregate(ctx, start, end, actorID)
	if err != nil {
		return nil, err
	}

	report := entity.NewPeriodReport(periodType, start, actorID, data)

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if force {
			if err := s.repo.Delete(ctx, periodType, start, actorID); err != nil {
				return fmt.Errorf("replace report: %w", err)
			}
		}
		return s.repo.Insert(ctx, report)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "generated period report",
		"period_type", periodType,
		"period_start", start.Format(time.DateOnly),
		"actor_id", actorID,
		"movements", data.MovementCount,
		"forced", force,
	)
	return report, nil
}

// aggregate folds the window's movements into report data. Reports always
// read live movement rows, never other reports.
func (s *Service) aggregate(ctx context.Context, start, end time.Time, actorID id.ID) (entity.ReportData, error) {
	movements, err := s.movements.List(ctx, ledger.MovementFilter{
		ActorID:  &actorID,
		FromDate: &start,
		ToDate:   &end,
	})
	if err != nil {
		return entity.ReportData{}, fmt.Errorf("aggregate movements: %w", err)
	}

	var data entity.ReportData
	for _, m := range movements {
		data.Accumulate(m)
	}
	return data, nil
}

// GenerateMonthly builds the monthly report for an actor as the sum of its
// daily reports. Dailies that are missing or stale against the newest
// movement of their day are regenerated first, so the monthly total always
// equals the aggregate of live movement rows.
func (s *Service) GenerateMonthly(ctx context.Context, year int, month time.Month, actorID id.ID, force bool) (*entity.PeriodReport, error) {
	start, end := entity.MonthWindow(year, month)

	if err := s.refreshDailies(ctx, start, end, actorID); err != nil {
		return nil, err
	}

	dailies, err := s.repo.ListDaily(ctx, start, end, actorID)
	if err != nil {
		return nil, fmt.Errorf("list daily reports: %w", err)
	}

	var data entity.ReportData
	for _, d := range dailies {
		data.Merge(d.Data)
	}

	report := entity.NewPeriodReport(entity.PeriodMonthly, start, actorID, data)

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if force {
			if err := s.repo.Delete(ctx, entity.PeriodMonthly, start, actorID); err != nil {
				return fmt.Errorf("replace report: %w", err)
			}
		}
		return s.repo.Insert(ctx, report)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "generated period report",
		"period_type", entity.PeriodMonthly,
		"period_start", start.Format(time.DateOnly),
		"actor_id", actorID,
		"movements", data.MovementCount,
		"forced", force,
	)
	return report, nil
}

// refreshDailies regenerates every daily report in [start, end) that is
// missing or stale. Days with no movements get no report.
func (s *Service) refreshDailies(ctx context.Context, start, end time.Time, actorID id.ID) error {
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		dayStart, dayEnd := entity.DayWindow(day)

		last, err := s.movements.LastRecordedAt(ctx, dayStart, dayEnd, actorID)
		if err != nil {
			return fmt.Errorf("check movements for %s: %w", day.Format(time.DateOnly), err)
		}

		existing, err := s.repo.Get(ctx, entity.PeriodDaily, dayStart, actorID)
		switch {
		case apperror.IsNotFound(err):
			if last.IsZero() {
				continue
			}
			if _, err := s.GenerateDaily(ctx, day, actorID, false); err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("load daily report for %s: %w", day.Format(time.DateOnly), err)
		default:
			if !existing.StaleAgainst(last) {
				continue
			}
			if _, err := s.GenerateDaily(ctx, day, actorID, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// Approve marks a stored report as approved.
func (s *Service) Approve(ctx context.Context, periodType entity.PeriodType, periodStart time.Time, actorID id.ID) error {
	report, err := s.repo.Get(ctx, periodType, periodStart, actorID)
	if err != nil {
		return err
	}
	return s.repo.SetStatus(ctx, report.ID, entity.ReportApproved)
}
