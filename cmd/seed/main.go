// Package main provides a CLI tool for seeding the database with demo data.
//
// The base dataset is a small rice-store catalog with opening stock and a
// few linked sales. With SEED_BROKEN_DATA=true it also plants the kinds of
// damage the audit and repair commands exist for: sale lines without
// movements, a product with stock but no opening movement, and a drifted
// quantity cache.
package main

import (
	"context"
	"fmt"
	"os"

	"grainledger/internal/core/actor"
	"grainledger/internal/core/entity"
	"grainledger/internal/core/types"
	"grainledger/internal/domain/ledger"
	"grainledger/internal/domain/sales"
	"grainledger/internal/infrastructure/storage/postgres"
	"grainledger/internal/infrastructure/storage/postgres/catalog_repo"
	"grainledger/internal/infrastructure/storage/postgres/ledger_repo"
	"grainledger/internal/infrastructure/storage/postgres/sales_repo"
	"grainledger/pkg/config"
	"grainledger/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DB.ConnectionString()))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatalw("failed to migrate schema", "error", err)
	}
	log.Info("connected to database")

	ctx = logger.WithLogger(ctx, log)
	system := actor.System()
	ctx = actor.WithActor(ctx, system)

	txManager := postgres.NewTxManager(pool)
	products := catalog_repo.NewProductRepo(txManager)
	movements := ledger_repo.NewMovementRepo(txManager)
	saleRepo := sales_repo.NewSaleRepo(txManager)
	recorder := ledger.NewService(movements, products, txManager)

	catalog, err := seedProducts(ctx, products, log)
	if err != nil {
		log.Fatalw("failed to seed products", "error", err)
	}

	if err := seedOpeningStock(ctx, recorder, movements, catalog, system, log); err != nil {
		log.Fatalw("failed to seed opening stock", "error", err)
	}

	if err := seedSales(ctx, recorder, saleRepo, catalog, system, log); err != nil {
		log.Fatalw("failed to seed sales", "error", err)
	}

	if os.Getenv("SEED_BROKEN_DATA") == "true" {
		if err := seedBrokenData(ctx, products, saleRepo, catalog, system, log); err != nil {
			log.Fatalw("failed to seed broken data", "error", err)
		}
	}

	log.Info("seeding completed successfully")
}

type seedProduct struct {
	sku      string
	name     string
	cost     string
	price    string
	opening  int64
	minStock int64
}

var baseCatalog = []seedProduct{
	{"RICE-PRE-5", "Premium Rice 5kg", "62000", "70000", 120, 20},
	{"RICE-PRE-10", "Premium Rice 10kg", "120000", "135000", 60, 10},
	{"RICE-MED-5", "Medium Rice 5kg", "52000", "58000", 200, 30},
	{"RICE-MED-25", "Medium Rice 25kg sack", "245000", "270000", 40, 5},
	{"RICE-STK-1", "Sticky Rice 1kg", "18000", "21000", 80, 15},
}

// seedProducts inserts the catalog, skipping SKUs that already exist so the
// seeder can be re-run.
func seedProducts(ctx context.Context, repo ledger.ProductRepository, log *logger.Logger) (map[string]*entity.Product, error) {
	existing, err := repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	bySKU := make(map[string]*entity.Product, len(existing))
	for _, p := range existing {
		bySKU[p.SKU] = p
	}

	created := 0
	for _, sp := range baseCatalog {
		if _, ok := bySKU[sp.sku]; ok {
			continue
		}
		p := entity.NewProduct(sp.sku, sp.name, types.MustMoney(sp.cost), types.MustMoney(sp.price))
		p.MinQuantity = types.NewQuantityFromInt(sp.minStock)
		if err := repo.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("create product %s: %w", sp.sku, err)
		}
		bySKU[sp.sku] = p
		created++
	}

	log.Infow("seeded products", "created", created, "total", len(bySKU))
	return bySKU, nil
}

func seedOpeningStock(
	ctx context.Context,
	recorder *ledger.Service,
	movements ledger.MovementRepository,
	catalog map[string]*entity.Product,
	system actor.Actor,
	log *logger.Logger,
) error {
	recorded := 0
	for _, sp := range baseCatalog {
		p := catalog[sp.sku]

		has, err := movements.HasKind(ctx, p.ID, entity.MovementInitial)
		if err != nil {
			return err
		}
		if has {
			continue
		}

		_, err = recorder.Record(ctx, ledger.RecordInput{
			ProductID:   p.ID,
			ActorID:     system.ID,
			Kind:        entity.MovementInitial,
			Quantity:    types.NewQuantityFromInt(sp.opening),
			Description: "opening stock",
		})
		if err != nil {
			return fmt.Errorf("opening stock for %s: %w", sp.sku, err)
		}
		recorded++
	}

	log.Infow("seeded opening stock", "recorded", recorded)
	return nil
}

// seedSales writes two sales and the out movements for every line, the way
// the POS surface would.
func seedSales(
	ctx context.Context,
	recorder *ledger.Service,
	repo sales.Repository,
	catalog map[string]*entity.Product,
	system actor.Actor,
	log *logger.Logger,
) error {
	if existing, err := repo.List(ctx, 1, 0); err != nil {
		return err
	} else if len(existing) > 0 {
		log.Info("sales already seeded, skipping")
		return nil
	}

	type lineSpec struct {
		sku string
		qty int64
	}
	saleSpecs := []struct {
		number string
		lines  []lineSpec
	}{
		{"S-2026-0001", []lineSpec{{"RICE-PRE-5", 2}, {"RICE-MED-5", 5}}},
		{"S-2026-0002", []lineSpec{{"RICE-MED-25", 1}, {"RICE-STK-1", 3}}},
	}

	for _, spec := range saleSpecs {
		sale := entity.NewSale(spec.number, system.ID)
		for _, ls := range spec.lines {
			p := catalog[ls.sku]
			sale.AddLine(p.ID, types.NewQuantityFromInt(ls.qty), p.UnitPrice)
		}
		if err := repo.Create(ctx, sale); err != nil {
			return fmt.Errorf("create sale %s: %w", spec.number, err)
		}

		for i := range sale.Lines {
			line := &sale.Lines[i]
			_, err := recorder.Record(ctx, ledger.RecordInput{
				ProductID:   line.ProductID,
				ActorID:     system.ID,
				Kind:        entity.MovementOut,
				Quantity:    line.Quantity,
				Description: fmt.Sprintf("sale %s", sale.Number),
				Reference:   &entity.Reference{Kind: entity.ReferenceSaleLine, ID: line.ID},
				UnitPrice:   &line.UnitPrice,
			})
			if err != nil {
				return fmt.Errorf("movement for sale %s line %d: %w", sale.Number, line.LineNo, err)
			}
		}
	}

	log.Infow("seeded sales", "count", len(saleSpecs))
	return nil
}

// seedBrokenData plants inconsistencies on purpose. After running it:
//
//	audit                  reports drift, unlinked lines and a missing opening
//	fix-missing-initial    backfills RICE-BRK-1's opening movement
//	fix-missing-movements  backfills the movements for sale S-2026-9999
//	fix-balance            closes the drift on RICE-PRE-5
func seedBrokenData(
	ctx context.Context,
	products ledger.ProductRepository,
	repo sales.Repository,
	catalog map[string]*entity.Product,
	system actor.Actor,
	log *logger.Logger,
) error {
	// A product with cached stock but no movement history at all.
	broken := entity.NewProduct("RICE-BRK-1", "Broken Rice 1kg", types.MustMoney("12000"), types.MustMoney("15000"))
	if err := products.Create(ctx, broken); err != nil {
		return err
	}
	if err := products.SetQuantity(ctx, broken.ID, types.NewQuantityFromInt(35)); err != nil {
		return err
	}

	// A sale whose lines never produced movements.
	sale := entity.NewSale("S-2026-9999", system.ID)
	p := catalog["RICE-MED-5"]
	sale.AddLine(p.ID, types.NewQuantityFromInt(4), p.UnitPrice)
	if err := repo.Create(ctx, sale); err != nil {
		return err
	}

	// A quantity cache that drifted away from the ledger.
	drifted, err := products.GetByID(ctx, catalog["RICE-PRE-5"].ID)
	if err != nil {
		return err
	}
	if err := products.SetQuantity(ctx, drifted.ID, drifted.Quantity-types.NewQuantityFromInt(7)); err != nil {
		return err
	}

	log.Info("seeded broken data for audit and repair demos")
	return nil
}
