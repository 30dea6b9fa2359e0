// Package report_repo provides the PostgreSQL period report repository.
package report_repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"grainledger/internal/core/apperror"
	"grainledger/internal/core/entity"
	"grainledger/internal/core/id"
	"grainledger/internal/domain/reports"
	"grainledger/internal/infrastructure/storage/postgres"
)

const reportsTable = "period_reports"

const uniqueViolation = "23505"

// reportRow mirrors the table; Data travels as raw JSONB.
type reportRow struct {
	ID          id.ID               `db:"id"`
	ActorID     id.ID               `db:"actor_id"`
	PeriodType  entity.PeriodType   `db:"period_type"`
	PeriodStart time.Time           `db:"period_start"`
	Status      entity.ReportStatus `db:"status"`
	Data        []byte              `db:"data"`
	GeneratedAt time.Time           `db:"generated_at"`
}

func (row *reportRow) toEntity() (*entity.PeriodReport, error) {
	report := &entity.PeriodReport{
		ID:          row.ID,
		ActorID:     row.ActorID,
		PeriodType:  row.PeriodType,
		PeriodStart: row.PeriodStart,
		Status:      row.Status,
		GeneratedAt: row.GeneratedAt,
	}
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &report.Data); err != nil {
			return nil, fmt.Errorf("decode report data: %w", err)
		}
	}
	return report, nil
}

// ReportRepo implements reports.Repository.
type ReportRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ reports.Repository = (*ReportRepo)(nil)

// NewReportRepo creates a new report repository.
func NewReportRepo(txManager *postgres.TxManager) *ReportRepo {
	return &ReportRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *ReportRepo) Get(ctx context.Context, periodType entity.PeriodType, periodStart time.Time, actorID id.ID) (*entity.PeriodReport, error) {
	q := r.builder.Select("id", "actor_id", "period_type", "period_start", "status", "data", "generated_at").
		From(reportsTable).
		Where(squirrel.Eq{
			"period_type":  periodType,
			"period_start": periodStart,
			"actor_id":     actorID,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var row reportRow
	err = pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("period report", fmt.Sprintf("%s %s", periodType, periodStart.Format(time.DateOnly)))
		}
		return nil, apperror.NewDatabase(fmt.Errorf("select report: %w", err))
	}
	return row.toEntity()
}

func (r *ReportRepo) Insert(ctx context.Context, report *entity.PeriodReport) error {
	data, err := json.Marshal(report.Data)
	if err != nil {
		return fmt.Errorf("encode report data: %w", err)
	}

	q := r.builder.Insert(reportsTable).
		Columns("id", "actor_id", "period_type", "period_start", "status", "data", "generated_at").
		Values(report.ID, report.ActorID, report.PeriodType, report.PeriodStart, report.Status, data, report.GeneratedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperror.NewReportExists(
				string(report.PeriodType),
				report.PeriodStart.Format(time.DateOnly),
				report.ActorID.String(),
			)
		}
		return apperror.NewDatabase(fmt.Errorf("insert report: %w", err))
	}
	return nil
}

func (r *ReportRepo) Delete(ctx context.Context, periodType entity.PeriodType, periodStart time.Time, actorID id.ID) error {
	q := r.builder.Delete(reportsTable).
		Where(squirrel.Eq{
			"period_type":  periodType,
			"period_start": periodStart,
			"actor_id":     actorID,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase(fmt.Errorf("delete report: %w", err))
	}
	return nil
}

func (r *ReportRepo) ListDaily(ctx context.Context, from, to time.Time, actorID id.ID) ([]*entity.PeriodReport, error) {
	q := r.builder.Select("id", "actor_id", "period_type", "period_start", "status", "data", "generated_at").
		From(reportsTable).
		Where(squirrel.Eq{"period_type": entity.PeriodDaily, "actor_id": actorID}).
		Where(squirrel.GtOrEq{"period_start": from}).
		Where(squirrel.Lt{"period_start": to}).
		OrderBy("period_start")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []reportRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("select reports: %w", err))
	}

	out := make([]*entity.PeriodReport, 0, len(rows))
	for i := range rows {
		report, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, report)
	}
	return out, nil
}

func (r *ReportRepo) SetStatus(ctx context.Context, reportID id.ID, status entity.ReportStatus) error {
	q := r.builder.Update(reportsTable).
		Set("status", status).
		Where(squirrel.Eq{"id": reportID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("update report status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("period report", reportID)
	}
	return nil
}
