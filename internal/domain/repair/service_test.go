package repair_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grainledger/internal/core/actor"
	"grainledger/internal/core/entity"
	"grainledger/internal/core/id"
	"grainledger/internal/core/types"
	"grainledger/internal/domain/ledger"
	"grainledger/internal/domain/repair"
	"grainledger/internal/infrastructure/storage/memory"
)

type fixture struct {
	store     *memory.Store
	recorder  *ledger.Service
	projector *ledger.Projector
	service   *repair.Service
	trail     *trailRecorder
	actor     actor.Actor
}

type trailRecorder struct {
	actions []repair.Action
	targets []id.ID
}

func (r *trailRecorder) Log(_ context.Context, action repair.Action, targetID id.ID, _ any) error {
	r.actions = append(r.actions, action)
	r.targets = append(r.targets, targetID)
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	recorder := ledger.NewService(store.Movements(), store.Products(), memory.TxManager{})
	trail := &trailRecorder{}
	system := actor.System()
	return &fixture{
		store:     store,
		recorder:  recorder,
		projector: ledger.NewProjector(store.Movements()),
		trail:     trail,
		actor:     system,
		service: repair.NewService(
			recorder,
			store.Movements(),
			store.Products(),
			store.Repair(),
			trail,
			memory.TxManager{},
			system,
			nil,
		),
	}
}

func (f *fixture) addProduct(t *testing.T, sku string, quantity int64) *entity.Product {
	t.Helper()
	p := entity.NewProduct(sku, "Sticky Rice", types.MustMoney("6.00"), types.MustMoney("9.00"))
	require.NoError(t, f.store.Products().Create(context.Background(), p))
	if quantity != 0 {
		require.NoError(t, f.store.Products().SetQuantity(context.Background(), p.ID, types.NewQuantityFromInt(quantity)))
	}
	return p
}

func TestBackfillInitialMovements(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.addProduct(t, "RICE-Q", 50)
	f.addProduct(t, "RICE-EMPTY", 0)

	result, err := f.service.BackfillInitialMovements(ctx, false)
	require.NoError(t, err)
	assert.False(t, result.DryRun)
	require.Len(t, result.Created, 1)
	assert.Equal(t, q.ID, result.Created[0].ProductID)
	assert.Equal(t, types.NewQuantityFromInt(50), result.Created[0].Quantity)
	assert.Empty(t, result.Errors)

	movements, err := f.store.Movements().ListByProduct(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	m := movements[0]
	assert.Equal(t, entity.MovementInitial, m.Kind)
	assert.Equal(t, types.Quantity(0), m.StockBefore)
	assert.Equal(t, types.NewQuantityFromInt(50), m.StockAfter)
	assert.True(t, m.Metadata.GetBool("systemGenerated"))
	assert.True(t, m.CreatedAt.Equal(q.CreatedAt.UTC()), "backdated to product creation")

	projection, err := f.projector.Project(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(50), projection.Quantity)

	// Second run is a no-op.
	again, err := f.service.BackfillInitialMovements(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	assert.Equal(t, 1, again.Skipped)

	assert.Equal(t, []repair.Action{repair.ActionBackfillInitial}, f.trail.actions)
}

func TestBackfillInitialDryRunParity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addProduct(t, "RICE-A", 10)
	f.addProduct(t, "RICE-B", 20)

	dry, err := f.service.BackfillInitialMovements(ctx, true)
	require.NoError(t, err)
	assert.True(t, dry.DryRun)

	live, err := f.service.BackfillInitialMovements(ctx, false)
	require.NoError(t, err)

	require.Len(t, live.Created, len(dry.Created))
	for i := range dry.Created {
		assert.Equal(t, dry.Created[i].ProductID, live.Created[i].ProductID)
		assert.Equal(t, dry.Created[i].Quantity, live.Created[i].Quantity)
	}

	// Dry run wrote nothing.
	assert.Empty(t, dry.Errors)
	assert.Equal(t, 0, dry.Skipped)
}

func TestBackfillSaleLineMovements(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-5KG", 0)

	_, err := f.recorder.Record(ctx, ledger.RecordInput{
		ProductID: p.ID, ActorID: f.actor.ID,
		Kind: entity.MovementInitial, Quantity: types.NewQuantityFromInt(100),
	})
	require.NoError(t, err)

	sale := entity.NewSale("S-1001", f.actor.ID)
	line := sale.AddLine(p.ID, types.NewQuantityFromInt(30), types.MustMoney("9.00"))
	require.NoError(t, f.store.Sales().Create(ctx, sale))

	result, err := f.service.BackfillSaleLineMovements(ctx, false)
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, line.ID, result.Created[0].LineID)

	has, err := f.store.Movements().HasReference(ctx, entity.Reference{Kind: entity.ReferenceSaleLine, ID: line.ID})
	require.NoError(t, err)
	assert.True(t, has)

	// The booked movements conserve the line exactly: 30 units out at 9.00.
	qty, value, err := f.store.Movements().SumByReference(ctx, entity.Reference{Kind: entity.ReferenceSaleLine, ID: line.ID})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(30), qty.Neg())
	assert.True(t, value.Neg().Equal(types.MustMoney("270.00")))

	got, err := f.store.Products().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(70), got.Quantity)

	// Second run finds nothing to do.
	again, err := f.service.BackfillSaleLineMovements(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, again.Created)
}

func TestBackfillSaleLineAllowsNegative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-1KG", 0)

	sale := entity.NewSale("S-1002", f.actor.ID)
	sale.AddLine(p.ID, types.NewQuantityFromInt(5), types.MustMoney("3.50"))
	require.NoError(t, f.store.Sales().Create(ctx, sale))

	result, err := f.service.BackfillSaleLineMovements(ctx, false)
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Empty(t, result.Errors)

	got, err := f.store.Products().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(-5), got.Quantity)
}

func TestBackfillSaleLineSkipsZeroQuantity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-2KG", 50)

	sale := entity.NewSale("S-1003", f.actor.ID)
	sale.AddLine(p.ID, 0, types.MustMoney("4.00"))
	require.NoError(t, f.store.Sales().Create(ctx, sale))

	result, err := f.service.BackfillSaleLineMovements(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, result.Created)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.Skipped)
}

func TestReconcileBalances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-DRIFT", 0)

	_, err := f.recorder.Record(ctx, ledger.RecordInput{
		ProductID: p.ID, ActorID: f.actor.ID,
		Kind: entity.MovementInitial, Quantity: types.NewQuantityFromInt(100),
	})
	require.NoError(t, err)
	require.NoError(t, f.store.Products().SetQuantity(ctx, p.ID, types.NewQuantityFromInt(80)))

	dry, err := f.service.ReconcileBalances(ctx, true)
	require.NoError(t, err)
	require.Len(t, dry.Corrected, 1)
	assert.Equal(t, types.NewQuantityFromInt(-20), dry.Corrected[0].Delta)

	live, err := f.service.ReconcileBalances(ctx, false)
	require.NoError(t, err)
	require.Len(t, live.Corrected, 1)
	assert.Equal(t, dry.Corrected[0], live.Corrected[0])

	projection, err := f.projector.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(80), projection.Quantity)

	got, err := f.store.Products().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, projection.Quantity, got.Quantity)

	// Clean after repair: nothing left to correct.
	again, err := f.service.ReconcileBalances(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, again.Corrected)
}

func TestRecalculateStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-CACHE", 0)

	_, err := f.recorder.Record(ctx, ledger.RecordInput{
		ProductID: p.ID, ActorID: f.actor.ID,
		Kind: entity.MovementInitial, Quantity: types.NewQuantityFromInt(40),
	})
	require.NoError(t, err)
	require.NoError(t, f.store.Products().SetQuantity(ctx, p.ID, types.NewQuantityFromInt(33)))

	dry, err := f.service.RecalculateStock(ctx, true)
	require.NoError(t, err)
	require.Len(t, dry.Updated, 1)
	assert.Equal(t, types.NewQuantityFromInt(33), dry.Updated[0].Previous)
	assert.Equal(t, types.NewQuantityFromInt(40), dry.Updated[0].New)

	// Dry run left the cache alone.
	got, err := f.store.Products().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(33), got.Quantity)

	live, err := f.service.RecalculateStock(ctx, false)
	require.NoError(t, err)
	require.Len(t, live.Updated, 1)

	got, err = f.store.Products().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(40), got.Quantity)

	// No movement was recorded, only the cache changed.
	movements, err := f.store.Movements().ListByProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, movements, 1)
}

func TestBackfillInitialFixedAnchor(t *testing.T) {
	ctx := context.Background()
	anchor := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	store := memory.NewStore()
	recorder := ledger.NewService(store.Movements(), store.Products(), memory.TxManager{})
	service := repair.NewService(
		recorder,
		store.Movements(),
		store.Products(),
		store.Repair(),
		nil,
		memory.TxManager{},
		actor.System(),
		repair.AnchorFixed(anchor),
	)

	p := entity.NewProduct("RICE-OLD", "Red Rice", types.MustMoney("4.00"), types.MustMoney("6.00"))
	require.NoError(t, store.Products().Create(ctx, p))
	require.NoError(t, store.Products().SetQuantity(ctx, p.ID, types.NewQuantityFromInt(12)))

	result, err := service.BackfillInitialMovements(ctx, false)
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.True(t, result.Created[0].AnchorAt.Equal(anchor))

	movements, err := store.Movements().ListByProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.True(t, movements[0].CreatedAt.Equal(anchor))
}
