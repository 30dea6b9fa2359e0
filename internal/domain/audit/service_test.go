package audit_test

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
	"grainledger/internal/domain/audit"
	"grainledger/internal/domain/ledger"
	"grainledger/internal/infrastructure/storage/memory"
)

type fixture struct {
	store    *memory.Store
	auditor  *audit.Service
	recorder *ledger.Service
	actor    actor.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	projector := ledger.NewProjector(store.Movements())
	return &fixture{
		store:    store,
		auditor:  audit.NewService(store.Audit(), store.Products(), projector, memory.TxManager{}, types.MustMoney("0.01")),
		recorder: ledger.NewService(store.Movements(), store.Products(), memory.TxManager{}),
		actor:    actor.System(),
	}
}

func (f *fixture) addProduct(t *testing.T, sku string) *entity.Product {
	t.Helper()
	p := entity.NewProduct(sku, "Basmati Rice", types.MustMoney("8.00"), types.MustMoney("12.50"))
	require.NoError(t, f.store.Products().Create(context.Background(), p))
	return p
}

func (f *fixture) record(t *testing.T, in ledger.RecordInput) *entity.StockMovement {
	t.Helper()
	m, err := f.recorder.Record(context.Background(), in)
	require.NoError(t, err)
	return m
}

func TestAuditHealthyDataset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-5KG")

	f.record(t, ledger.RecordInput{
		ProductID: p.ID, ActorID: f.actor.ID,
		Kind: entity.MovementInitial, Quantity: types.NewQuantityFromInt(100),
	})

	sale := entity.NewSale("S-0001", f.actor.ID)
	line := sale.AddLine(p.ID, types.NewQuantityFromInt(30), types.MustMoney("12.50"))
	require.NoError(t, f.store.Sales().Create(ctx, sale))

	price := line.UnitPrice
	f.record(t, ledger.RecordInput{
		ProductID: p.ID, ActorID: f.actor.ID,
		Kind: entity.MovementOut, Quantity: line.Quantity,
		Reference: &entity.Reference{Kind: entity.ReferenceSaleLine, ID: line.ID},
		UnitPrice: &price,
	})

	report, err := f.auditor.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy())
	assert.Zero(t, report.TotalIssues)
	require.Len(t, report.Checks, 7)
	for _, c := range report.Checks {
		assert.Zero(t, c.Count, string(c.Name))
	}
}

func TestAuditFlagsProductWithoutMovements(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-Q")

	// Quantity 50 on the shelf, nothing in the ledger.
	require.NoError(t, f.store.Products().SetQuantity(ctx, p.ID, types.NewQuantityFromInt(50)))

	report, err := f.auditor.Run(ctx)
	require.NoError(t, err)
	assert.False(t, report.Healthy())

	drift := report.Check(audit.CheckBalanceDrift)
	require.NotNil(t, drift)
	assert.Equal(t, int64(1), drift.Count)
	require.Len(t, drift.Samples, 1)
	assert.Equal(t, p.ID, drift.Samples[0].ID)
}

func TestAuditFlagsSaleWithoutMovements(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-1KG")

	sale := entity.NewSale("S-0002", f.actor.ID)
	sale.AddLine(p.ID, types.NewQuantityFromInt(2), types.MustMoney("3.50"))
	sale.AddLine(p.ID, types.NewQuantityFromInt(1), types.MustMoney("3.50"))
	require.NoError(t, f.store.Sales().Create(ctx, sale))

	report, err := f.auditor.Run(ctx)
	require.NoError(t, err)

	sales := report.Check(audit.CheckSalesWithoutMovements)
	require.NotNil(t, sales)
	assert.Equal(t, int64(1), sales.Count)

	lines := report.Check(audit.CheckLinesWithoutMovements)
	require.NotNil(t, lines)
	assert.Equal(t, int64(2), lines.Count)
}

func TestAuditFlagsOrphanReference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-2KG")

	f.record(t, ledger.RecordInput{
		ProductID: p.ID, ActorID: f.actor.ID,
		Kind: entity.MovementInitial, Quantity: types.NewQuantityFromInt(10),
	})
	f.record(t, ledger.RecordInput{
		ProductID: p.ID, ActorID: f.actor.ID,
		Kind: entity.MovementOut, Quantity: types.NewQuantityFromInt(1),
		Reference: &entity.Reference{Kind: entity.ReferenceSaleLine, ID: id.New()},
	})

	report, err := f.auditor.Run(ctx)
	require.NoError(t, err)

	orphans := report.Check(audit.CheckOrphanReferences)
	require.NotNil(t, orphans)
	assert.Equal(t, int64(1), orphans.Count)
}

func TestAuditFlagsLineMismatches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-10KG")

	f.record(t, ledger.RecordInput{
		ProductID: p.ID, ActorID: f.actor.ID,
		Kind: entity.MovementInitial, Quantity: types.NewQuantityFromInt(100),
	})

	sale := entity.NewSale("S-0003", f.actor.ID)
	line := sale.AddLine(p.ID, types.NewQuantityFromInt(10), types.MustMoney("12.50"))
	require.NoError(t, f.store.Sales().Create(ctx, sale))

	// The POS recorded only 7 of the 10 units, at the wrong price.
	price := types.MustMoney("11.00")
	f.record(t, ledger.RecordInput{
		ProductID: p.ID, ActorID: f.actor.ID,
		Kind: entity.MovementOut, Quantity: types.NewQuantityFromInt(7),
		Reference: &entity.Reference{Kind: entity.ReferenceSaleLine, ID: line.ID},
		UnitPrice: &price,
	})

	report, err := f.auditor.Run(ctx)
	require.NoError(t, err)

	qty := report.Check(audit.CheckLineQuantityMismatch)
	require.NotNil(t, qty)
	assert.Equal(t, int64(1), qty.Count)

	value := report.Check(audit.CheckLineValueMismatch)
	require.NotNil(t, value)
	assert.Equal(t, int64(1), value.Count)
}

func TestAuditValueMismatchTolerance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-BULK")

	f.record(t, ledger.RecordInput{
		ProductID: p.ID, ActorID: f.actor.ID,
		Kind: entity.MovementInitial, Quantity: types.NewQuantityFromInt(100),
	})

	sale := entity.NewSale("S-0004", f.actor.ID)
	line := sale.AddLine(p.ID, types.NewQuantityFromInt(3), types.MustMoney("3.333"))
	require.NoError(t, f.store.Sales().Create(ctx, sale))

	// Rounded per-unit price: 9.99 recorded vs 9.999 expected, inside 0.01.
	price := types.MustMoney("3.33")
	f.record(t, ledger.RecordInput{
		ProductID: p.ID, ActorID: f.actor.ID,
		Kind: entity.MovementOut, Quantity: line.Quantity,
		Reference: &entity.Reference{Kind: entity.ReferenceSaleLine, ID: line.ID},
		UnitPrice: &price,
	})

	report, err := f.auditor.Run(ctx)
	require.NoError(t, err)

	value := report.Check(audit.CheckLineValueMismatch)
	require.NotNil(t, value)
	assert.Zero(t, value.Count)
}

func TestAuditFlagsChainBreak(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.addProduct(t, "RICE-CHAIN")

	m := entity.NewStockMovement(p.ID, f.actor.ID, entity.MovementInitial, types.NewQuantityFromInt(10))
	m.StockBefore = types.NewQuantityFromInt(5) // snapshot lies
	m.StockAfter = types.NewQuantityFromInt(10)
	m.CreatedAt = time.Now().UTC()
	require.NoError(t, f.store.Movements().Create(ctx, m))
	require.NoError(t, f.store.Products().SetQuantity(ctx, p.ID, types.NewQuantityFromInt(10)))

	report, err := f.auditor.Run(ctx)
	require.NoError(t, err)

	breaks := report.Check(audit.CheckChainBreaks)
	require.NotNil(t, breaks)
	assert.Equal(t, int64(1), breaks.Count)
}
