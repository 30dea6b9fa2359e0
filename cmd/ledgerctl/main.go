// Package main provides the ledger maintenance CLI.
//
// Usage:
//
//	ledgerctl migrate
//	ledgerctl audit
//	ledgerctl recalculate-stock [--dry-run]
//	ledgerctl fix-missing-initial [--dry-run]
//	ledgerctl fix-missing-movements [--dry-run]
//	ledgerctl fix-balance [--dry-run] [--month M --year Y]
//	ledgerctl report daily --date YYYY-MM-DD [--actor UUID] [--force]
//	ledgerctl report monthly --month M --year Y [--actor UUID] [--force]
//
// Every mutating command supports --dry-run; the dry-run summary has the
// same shape as the live one. Exit code is non-zero only when an
// unrecoverable error occurred or a batch finished with zero successes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"grainledger/internal/core/actor"
	"grainledger/internal/core/id"
	"grainledger/internal/core/types"
	"grainledger/internal/domain/audit"
	"grainledger/internal/domain/ledger"
	"grainledger/internal/domain/repair"
	"grainledger/internal/domain/reports"
	"grainledger/internal/infrastructure/storage/postgres"
	"grainledger/internal/infrastructure/storage/postgres/audit_repo"
	"grainledger/internal/infrastructure/storage/postgres/catalog_repo"
	"grainledger/internal/infrastructure/storage/postgres/ledger_repo"
	"grainledger/internal/infrastructure/storage/postgres/report_repo"
	"grainledger/internal/infrastructure/storage/postgres/sales_repo"
	"grainledger/pkg/config"
	"grainledger/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	if command == "help" || command == "--help" || command == "-h" {
		printUsage()
		return
	}

	ctx := context.Background()

	app, err := newApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx = logger.WithLogger(ctx, app.log)
	ctx = actor.WithActor(ctx, app.actor)

	if err := app.run(ctx, command, os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`grainledger maintenance CLI

Usage:
  ledgerctl <command> [options]

Commands:
  migrate                Create or update the database schema
  audit                  Run the consistency audit (read-only)
  recalculate-stock      Rewrite quantity caches from the ledger
  fix-missing-initial    Backfill opening movements
  fix-missing-movements  Backfill movements for unlinked sale lines
  fix-balance            Full reconciliation, reports included
  report                 Generate a daily or monthly report
  trail                  Show recent repair-trail entries
  help                   Show this help

Configuration comes from GRAINLEDGER_* environment variables or an
optional grainledger.yaml (see pkg/config). The database connection is
GRAINLEDGER_DB_DATABASE_URL or the individual GRAINLEDGER_DB_* settings.`)
}

type app struct {
	cfg       *config.Config
	log       *logger.Logger
	pool      *postgres.Pool
	txManager *postgres.TxManager
	trail     *postgres.RepairTrail
	actor     actor.Actor

	recorder  *ledger.Service
	projector *ledger.Projector
	auditor   *audit.Service
	repairer  *repair.Service
	reporter  *reports.Service
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DB.ConnectionString()))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	txManager := postgres.NewTxManager(pool)

	products := catalog_repo.NewProductRepo(txManager)
	movements := ledger_repo.NewMovementRepo(txManager)
	saleRepo := sales_repo.NewSaleRepo(txManager)
	auditRepo := audit_repo.NewAuditRepo(txManager)
	reportRepo := report_repo.NewReportRepo(txManager)

	trail, err := postgres.NewRepairTrail(txManager)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create repair trail: %w", err)
	}

	epsilon, err := types.NewMoneyFromString(cfg.Ledger.ValueEpsilon)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parse value epsilon: %w", err)
	}

	anchor, err := resolveAnchor(cfg.Ledger.BackfillAnchor)
	if err != nil {
		pool.Close()
		return nil, err
	}

	system := actor.System()
	recorder := ledger.NewService(movements, products, txManager)
	projector := ledger.NewProjector(movements)

	return &app{
		cfg:       cfg,
		log:       log,
		pool:      pool,
		trail:     trail,
		txManager: txManager,
		actor:     system,
		recorder:  recorder,
		projector: projector,
		auditor:   audit.NewService(auditRepo, products, projector, txManager, epsilon),
		repairer:  repair.NewService(recorder, movements, products, saleRepo, trail, txManager, system, anchor),
		reporter:  reports.NewService(reportRepo, movements, txManager),
	}, nil
}

func resolveAnchor(setting string) (repair.AnchorFunc, error) {
	if setting == "" || setting == "product-created" {
		return repair.AnchorProductCreated, nil
	}
	at, err := time.Parse(time.DateOnly, setting)
	if err != nil {
		return nil, fmt.Errorf("parse backfill anchor %q: %w", setting, err)
	}
	return repair.AnchorFixed(at.UTC()), nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "migrate":
		return postgres.Migrate(ctx, a.pool)
	case "audit":
		return a.runAudit(ctx)
	case "recalculate-stock":
		return a.runRecalculate(ctx, args)
	case "fix-missing-initial":
		return a.runFixInitial(ctx, args)
	case "fix-missing-movements":
		return a.runFixMovements(ctx, args)
	case "fix-balance":
		return a.runFixBalance(ctx, args)
	case "report":
		return a.runReport(ctx, args)
	case "trail":
		return a.runTrail(ctx, args)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) runAudit(ctx context.Context) error {
	report, err := a.auditor.Run(ctx)
	if err != nil {
		return err
	}
	printJSON(report)
	if report.Healthy() {
		fmt.Println("audit: no issues found")
	} else {
		fmt.Printf("audit: %d issue(s) found\n", report.TotalIssues)
	}
	return nil
}

func (a *app) runRecalculate(ctx context.Context, args []string) error {
	dryRun := parseDryRun("recalculate-stock", args)
	result, err := a.repairer.RecalculateStock(ctx, dryRun)
	if err != nil {
		return err
	}
	printJSON(result)
	return batchExit("recalculate-stock", len(result.Updated), errStrings(result.Errors))
}

func (a *app) runFixInitial(ctx context.Context, args []string) error {
	dryRun := parseDryRun("fix-missing-initial", args)
	result, err := a.repairer.BackfillInitialMovements(ctx, dryRun)
	if err != nil {
		return err
	}
	printJSON(result)
	return batchExit("fix-missing-initial", len(result.Created), errStrings(result.Errors))
}

func (a *app) runFixMovements(ctx context.Context, args []string) error {
	dryRun := parseDryRun("fix-missing-movements", args)
	result, err := a.repairer.BackfillSaleLineMovements(ctx, dryRun)
	if err != nil {
		return err
	}
	printJSON(result)
	return batchExit("fix-missing-movements", len(result.Created), errStrings(result.Errors))
}

// runFixBalance is the all-in-one repair: backfill opening movements,
// backfill unlinked sale lines, reconcile drift, then regenerate the
// month's reports so they match the repaired ledger.
func (a *app) runFixBalance(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fix-balance", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "plan without writing")
	now := time.Now().UTC()
	month := fs.Int("month", int(now.Month()), "month to regenerate reports for")
	year := fs.Int("year", now.Year(), "year to regenerate reports for")
	_ = fs.Parse(args)

	initial, err := a.repairer.BackfillInitialMovements(ctx, *dryRun)
	if err != nil {
		return err
	}
	printJSON(initial)

	lines, err := a.repairer.BackfillSaleLineMovements(ctx, *dryRun)
	if err != nil {
		return err
	}
	printJSON(lines)

	reconciled, err := a.repairer.ReconcileBalances(ctx, *dryRun)
	if err != nil {
		return err
	}
	printJSON(reconciled)

	if *dryRun {
		// Same output shape as the live run, without generating anything.
		printJSON(map[string]any{
			"dryRun":      true,
			"periodType":  "monthly",
			"periodStart": time.Date(*year, time.Month(*month), 1, 0, 0, 0, 0, time.UTC),
			"actorId":     a.actor.ID,
		})
	} else {
		report, err := a.reporter.GenerateMonthly(ctx, *year, time.Month(*month), a.actor.ID, true)
		if err != nil {
			return fmt.Errorf("regenerate monthly report: %w", err)
		}
		printJSON(report)
	}

	succeeded := len(initial.Created) + len(lines.Created) + len(reconciled.Corrected)
	errs := append(errStrings(initial.Errors), errStrings(lines.Errors)...)
	errs = append(errs, errStrings(reconciled.Errors)...)
	return batchExit("fix-balance", succeeded, errs)
}

func (a *app) runReport(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: report daily|monthly [options]")
	}
	kind := args[0]

	fs := flag.NewFlagSet("report "+kind, flag.ExitOnError)
	now := time.Now().UTC()
	date := fs.String("date", now.Format(time.DateOnly), "day to aggregate (daily)")
	month := fs.Int("month", int(now.Month()), "month to aggregate (monthly)")
	year := fs.Int("year", now.Year(), "year to aggregate (monthly)")
	actorFlag := fs.String("actor", a.actor.ID.String(), "actor the report belongs to")
	force := fs.Bool("force", false, "replace an existing report")
	_ = fs.Parse(args[1:])

	actorID, err := id.Parse(*actorFlag)
	if err != nil {
		return fmt.Errorf("parse actor id: %w", err)
	}

	switch kind {
	case "daily":
		day, err := time.Parse(time.DateOnly, *date)
		if err != nil {
			return fmt.Errorf("parse date: %w", err)
		}
		report, err := a.reporter.GenerateDaily(ctx, day.UTC(), actorID, *force)
		if err != nil {
			return err
		}
		printJSON(report)
		return nil
	case "monthly":
		report, err := a.reporter.GenerateMonthly(ctx, *year, time.Month(*month), actorID, *force)
		if err != nil {
			return err
		}
		printJSON(report)
		return nil
	default:
		return fmt.Errorf("unknown report kind %q", kind)
	}
}

// runTrail prints recent repair-trail entries with their details expanded,
// decompressing payloads that were stored compressed.
func (a *app) runTrail(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("trail", flag.ExitOnError)
	limit := fs.Int("limit", 20, "number of entries to show")
	_ = fs.Parse(args)

	entries, err := a.trail.Recent(ctx, *limit)
	if err != nil {
		return err
	}

	type trailLine struct {
		ID        id.ID           `json:"id"`
		Action    repair.Action   `json:"action"`
		TargetID  id.ID           `json:"targetId"`
		ActorID   *id.ID          `json:"actorId,omitempty"`
		Details   json.RawMessage `json:"details,omitempty"`
		CreatedAt time.Time       `json:"createdAt"`
	}

	lines := make([]trailLine, 0, len(entries))
	for _, e := range entries {
		details, err := a.trail.Decompress(e)
		if err != nil {
			return fmt.Errorf("read trail entry %s: %w", e.ID, err)
		}
		lines = append(lines, trailLine{
			ID:        e.ID,
			Action:    e.Action,
			TargetID:  e.TargetID,
			ActorID:   e.ActorID,
			Details:   details,
			CreatedAt: e.CreatedAt,
		})
	}
	printJSON(lines)
	return nil
}

func parseDryRun(name string, args []string) bool {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "plan without writing")
	_ = fs.Parse(args)
	return *dryRun
}

// batchExit implements the exit policy for batch jobs: per-item errors are
// printed but only an all-failed batch is fatal.
func batchExit(name string, succeeded int, errs []string) error {
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "%s: %s\n", name, e)
	}
	if len(errs) > 0 && succeeded == 0 {
		return fmt.Errorf("%s: all %d item(s) failed", name, len(errs))
	}
	return nil
}

func errStrings(errs []repair.ItemError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, fmt.Sprintf("%s: %s", e.TargetID, e.Err))
	}
	return out
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		return
	}
	fmt.Println(string(data))
}
