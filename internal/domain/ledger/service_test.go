package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grainledger/internal/core/actor"
	"grainledger/internal/core/apperror"
	"grainledger/internal/core/entity"
	"grainledger/internal/core/types"
	"grainledger/internal/domain/ledger"
	"grainledger/internal/infrastructure/storage/memory"
)

type fixture struct {
	store     *memory.Store
	recorder  *ledger.Service
	projector *ledger.Projector
	actor     actor.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	return &fixture{
		store:     store,
		recorder:  ledger.NewService(store.Movements(), store.Products(), memory.TxManager{}),
		projector: ledger.NewProjector(store.Movements()),
		actor:     actor.System(),
	}
}

func (f *fixture) addProduct(t *testing.T, sku string, cost, price string) *entity.Product {
	t.Helper()
	p := entity.NewProduct(sku, "Jasmine Rice 5kg", types.MustMoney(cost), types.MustMoney(price))
	require.NoError(t, f.store.Products().Create(context.Background(), p))
	return p
}

func TestRecordInitialThenSale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-5KG", "8.00", "12.50")

	first, err := f.recorder.Record(ctx, ledger.RecordInput{
		ProductID: p.ID,
		ActorID:   f.actor.ID,
		Kind:      entity.MovementInitial,
		Quantity:  types.NewQuantityFromInt(100),
	})
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(0), first.StockBefore)
	assert.Equal(t, types.NewQuantityFromInt(100), first.StockAfter)

	second, err := f.recorder.Record(ctx, ledger.RecordInput{
		ProductID: p.ID,
		ActorID:   f.actor.ID,
		Kind:      entity.MovementOut,
		Quantity:  types.NewQuantityFromInt(30),
	})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(100), second.StockBefore)
	assert.Equal(t, types.NewQuantityFromInt(70), second.StockAfter)
	assert.True(t, first.ChainsTo(second))

	got, err := f.store.Products().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(70), got.Quantity)

	projection, err := f.projector.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(70), projection.Quantity)

	breaks, err := f.projector.ReplayChain(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, breaks)
}

func TestRecordCapturesPrices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-1KG", "2.00", "3.50")

	in, err := f.recorder.Record(ctx, ledger.RecordInput{
		ProductID: p.ID,
		ActorID:   f.actor.ID,
		Kind:      entity.MovementIn,
		Quantity:  types.NewQuantityFromInt(10),
	})
	require.NoError(t, err)
	assert.True(t, in.UnitPrice.Equal(types.MustMoney("2.00")), "inflow captures cost")
	assert.True(t, in.TotalValue.Equal(types.MustMoney("20.00")))

	out, err := f.recorder.Record(ctx, ledger.RecordInput{
		ProductID: p.ID,
		ActorID:   f.actor.ID,
		Kind:      entity.MovementOut,
		Quantity:  types.NewQuantityFromInt(4),
	})
	require.NoError(t, err)
	assert.True(t, out.UnitPrice.Equal(types.MustMoney("3.50")), "outflow captures sale price")
	assert.True(t, out.TotalValue.Equal(types.MustMoney("-14.00")))

	override := types.MustMoney("3.00")
	discounted, err := f.recorder.Record(ctx, ledger.RecordInput{
		ProductID: p.ID,
		ActorID:   f.actor.ID,
		Kind:      entity.MovementOut,
		Quantity:  types.NewQuantityFromInt(2),
		UnitPrice: &override,
	})
	require.NoError(t, err)
	assert.True(t, discounted.UnitPrice.Equal(override))
}

func TestRecordInsufficientStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-25KG", "30.00", "42.00")

	_, err := f.recorder.Record(ctx, ledger.RecordInput{
		ProductID: p.ID,
		ActorID:   f.actor.ID,
		Kind:      entity.MovementOut,
		Quantity:  types.NewQuantityFromInt(1),
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	// Nothing was written: ledger and cache both untouched.
	projection, err := f.projector.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(0), projection.Quantity)

	got, err := f.store.Products().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(0), got.Quantity)
}

func TestRecordAllowNegative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-10KG", "15.00", "21.00")

	m, err := f.recorder.Record(ctx, ledger.RecordInput{
		ProductID:     p.ID,
		ActorID:       f.actor.ID,
		Kind:          entity.MovementOut,
		Quantity:      types.NewQuantityFromInt(5),
		AllowNegative: true,
	})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(-5), m.StockAfter)

	got, err := f.store.Products().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(-5), got.Quantity)
}

func TestRecordRejectsMissingActor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-2KG", "3.00", "4.80")

	_, err := f.recorder.Record(ctx, ledger.RecordInput{
		ProductID: p.ID,
		Kind:      entity.MovementIn,
		Quantity:  types.NewQuantityFromInt(1),
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeMissingActor))
}

func TestReconcileClosesDrift(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-BROKEN", "5.00", "7.00")

	_, err := f.recorder.Record(ctx, ledger.RecordInput{
		ProductID: p.ID,
		ActorID:   f.actor.ID,
		Kind:      entity.MovementInitial,
		Quantity:  types.NewQuantityFromInt(100),
	})
	require.NoError(t, err)

	// A legacy write bypassed the recorder: the count says 80.
	require.NoError(t, f.store.Products().SetQuantity(ctx, p.ID, types.NewQuantityFromInt(80)))

	m, err := f.recorder.Reconcile(ctx, p.ID, f.actor.ID, "balance reconciliation")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, entity.MovementCorrection, m.Kind)
	assert.Equal(t, types.NewQuantityFromInt(-20), m.Quantity)
	assert.Equal(t, types.NewQuantityFromInt(100), m.StockBefore)
	assert.Equal(t, types.NewQuantityFromInt(80), m.StockAfter)
	assert.True(t, m.Metadata.GetBool("systemGenerated"))

	projection, err := f.projector.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(80), projection.Quantity)

	breaks, err := f.projector.ReplayChain(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, breaks)

	// No drift, no movement.
	again, err := f.recorder.Reconcile(ctx, p.ID, f.actor.ID, "balance reconciliation")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestReplayChainFlagsBrokenLinks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-GAP", "5.00", "7.00")

	good := entity.NewStockMovement(p.ID, f.actor.ID, entity.MovementInitial, types.NewQuantityFromInt(10))
	good.StockBefore = 0
	good.StockAfter = types.NewQuantityFromInt(10)
	require.NoError(t, f.store.Movements().Create(ctx, good))

	bad := entity.NewStockMovement(p.ID, f.actor.ID, entity.MovementOut, types.NewQuantityFromInt(3))
	bad.StockBefore = types.NewQuantityFromInt(12) // does not continue the chain
	bad.StockAfter = types.NewQuantityFromInt(9)
	require.NoError(t, f.store.Movements().Create(ctx, bad))

	breaks, err := f.projector.ReplayChain(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, breaks, 1)
	assert.Equal(t, bad.ID, breaks[0].MovementID)
	assert.Equal(t, types.NewQuantityFromInt(10), breaks[0].WantBefore)
	assert.Equal(t, types.NewQuantityFromInt(12), breaks[0].GotBefore)
}
