package reports_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grainledger/internal/core/actor"
	"grainledger/internal/core/apperror"
	"grainledger/internal/core/entity"
	"grainledger/internal/core/types"
	"grainledger/internal/domain/reports"
	"grainledger/internal/infrastructure/storage/memory"
)

type fixture struct {
	store   *memory.Store
	service *reports.Service
	actor   actor.Actor
	product *entity.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	p := entity.NewProduct("RICE-5KG", "Jasmine Rice 5kg", types.MustMoney("8.00"), types.MustMoney("12.50"))
	require.NoError(t, store.Products().Create(context.Background(), p))
	return &fixture{
		store:   store,
		service: reports.NewService(store.Reports(), store.Movements(), memory.TxManager{}),
		actor:   actor.System(),
		product: p,
	}
}

// addMovement plants a movement directly with a fixed timestamp.
func (f *fixture) addMovement(t *testing.T, kind entity.MovementKind, qty int64, value string, at time.Time) {
	t.Helper()
	m := entity.NewStockMovement(f.product.ID, f.actor.ID, kind, types.NewQuantityFromInt(qty))
	m.CreatedAt = at
	m.TotalValue = types.MustMoney(value)
	require.NoError(t, f.store.Movements().Create(context.Background(), m))
}

func TestGenerateDaily(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	day := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	f.addMovement(t, entity.MovementIn, 100, "800.00", day.Add(9*time.Hour))
	f.addMovement(t, entity.MovementOut, 30, "-375.00", day.Add(14*time.Hour))
	f.addMovement(t, entity.MovementOut, 10, "-125.00", day.Add(25*time.Hour)) // next day

	report, err := f.service.GenerateDaily(ctx, day, f.actor.ID, false)
	require.NoError(t, err)
	assert.Equal(t, entity.PeriodDaily, report.PeriodType)
	assert.Equal(t, entity.ReportPending, report.Status)
	assert.Equal(t, int64(2), report.Data.MovementCount)
	assert.Equal(t, types.NewQuantityFromInt(70), report.Data.TotalQuantity)
	assert.True(t, report.Data.TotalValue.Equal(types.MustMoney("425.00")))

	byKind := report.Data.ByKind
	require.Contains(t, byKind, entity.MovementIn)
	require.Contains(t, byKind, entity.MovementOut)
	assert.Equal(t, int64(1), byKind[entity.MovementOut].Count)
}

func TestGenerateDailyExistsUnlessForced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	day := time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC)

	f.addMovement(t, entity.MovementIn, 5, "40.00", day.Add(time.Hour))

	_, err := f.service.GenerateDaily(ctx, day, f.actor.ID, false)
	require.NoError(t, err)

	_, err = f.service.GenerateDaily(ctx, day, f.actor.ID, false)
	require.Error(t, err)
	assert.True(t, apperror.IsReportExists(err))

	f.addMovement(t, entity.MovementIn, 3, "24.00", day.Add(2*time.Hour))

	forced, err := f.service.GenerateDaily(ctx, day, f.actor.ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), forced.Data.MovementCount)

	// Replaced, not duplicated.
	stored, err := f.store.Reports().Get(ctx, entity.PeriodDaily, day, f.actor.ID)
	require.NoError(t, err)
	assert.Equal(t, forced.ID, stored.ID)
}

func TestGenerateMonthly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	day1 := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, time.March, 17, 15, 0, 0, 0, time.UTC)
	f.addMovement(t, entity.MovementIn, 100, "800.00", day1)
	f.addMovement(t, entity.MovementOut, 40, "-500.00", day2)

	report, err := f.service.GenerateMonthly(ctx, 2025, time.March, f.actor.ID, false)
	require.NoError(t, err)
	assert.Equal(t, entity.PeriodMonthly, report.PeriodType)
	assert.Equal(t, int64(2), report.Data.MovementCount)
	assert.Equal(t, types.NewQuantityFromInt(60), report.Data.TotalQuantity)
	assert.True(t, report.Data.TotalValue.Equal(types.MustMoney("300.00")))

	// The missing dailies were created along the way, only for days with
	// movements.
	start, end := entity.MonthWindow(2025, time.March)
	dailies, err := f.store.Reports().ListDaily(ctx, start, end, f.actor.ID)
	require.NoError(t, err)
	assert.Len(t, dailies, 2)
}

func TestGenerateMonthlyRefreshesStaleDaily(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	day := time.Date(2025, time.April, 5, 0, 0, 0, 0, time.UTC)
	f.addMovement(t, entity.MovementIn, 10, "80.00", day.Add(9*time.Hour))

	_, err := f.service.GenerateDaily(ctx, day, f.actor.ID, false)
	require.NoError(t, err)

	// A backfill lands after the daily was generated.
	f.addMovement(t, entity.MovementOut, 4, "-50.00", day.Add(16*time.Hour))

	report, err := f.service.GenerateMonthly(ctx, 2025, time.April, f.actor.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Data.MovementCount)
	assert.Equal(t, types.NewQuantityFromInt(6), report.Data.TotalQuantity)

	refreshed, err := f.store.Reports().Get(ctx, entity.PeriodDaily, day, f.actor.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), refreshed.Data.MovementCount)
}

func TestApprove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	day := time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC)

	f.addMovement(t, entity.MovementIn, 1, "8.00", day.Add(time.Hour))

	report, err := f.service.GenerateDaily(ctx, day, f.actor.ID, false)
	require.NoError(t, err)
	assert.Equal(t, entity.ReportPending, report.Status)

	require.NoError(t, f.service.Approve(ctx, entity.PeriodDaily, day, f.actor.ID))

	stored, err := f.store.Reports().Get(ctx, entity.PeriodDaily, day, f.actor.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReportApproved, stored.Status)
}
