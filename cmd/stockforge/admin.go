package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/Strob0t/StockForge/internal/adapter/postgres"
	"github.com/Strob0t/StockForge/internal/config"
	"github.com/Strob0t/StockForge/internal/domain/user"
	"github.com/Strob0t/StockForge/internal/logger"
	"github.com/Strob0t/StockForge/internal/service"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "migrate-status":
		return runAdminMigrateStatus(args[1:])
	case "rollback":
		return runAdminRollback(args[1:])
	case "expire-now":
		return runAdminExpireNow(args[1:])
	case "provision":
		return runAdminProvision(args[1:])
	case "issue-token":
		return runAdminIssueToken(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: stockforge admin <command> [options]

Commands:
  migrate-status   List embedded migrations and whether they are applied
  rollback         Roll back the most recent migrations
  expire-now       Run one reservation expiry pass immediately
  provision        Create zero-quantity stock rows for a SKU at every active location
  issue-token      Mint a bearer token for local testing
  help             Show this help message

Examples:
  stockforge admin migrate-status
  stockforge admin rollback --steps 1
  stockforge admin expire-now
  stockforge admin provision --tenant 3f0c... --sku SKU-123
  stockforge admin issue-token --user ops --tenant 3f0c... --roles seller --ttl 1h
`)
}

// loadAdminConfig loads config and installs the logger; admin output stays on
// stdout, logs go to the configured handler.
func loadAdminConfig() (*config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, closer := logger.New(cfg.Logging)
	slog.SetDefault(log)
	return cfg, closer.Close, nil
}

func requirePostgres(cfg *config.Config) error {
	if cfg.Storage.Driver != "postgres" {
		return fmt.Errorf("command requires storage.driver postgres, got %q", cfg.Storage.Driver)
	}
	return nil
}

func runAdminMigrateStatus(args []string) error {
	fs := flag.NewFlagSet("migrate-status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, done, err := loadAdminConfig()
	if err != nil {
		return err
	}
	defer done()
	if err := requirePostgres(cfg); err != nil {
		return err
	}

	infos, err := postgres.MigrationStatus(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}

	rows := make([][]string, 0, len(infos))
	for _, m := range infos {
		rows = append(rows, []string{strconv.FormatInt(m.Version, 10), filepath.Base(m.Source), strconv.FormatBool(m.Applied)})
	}
	return writeOutput([]string{"VERSION", "SOURCE", "APPLIED"}, rows, infos)
}

func runAdminRollback(args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 1 {
		return errors.New("--steps must be >= 1")
	}

	cfg, done, err := loadAdminConfig()
	if err != nil {
		return err
	}
	defer done()
	if err := requirePostgres(cfg); err != nil {
		return err
	}

	ctx := context.Background()
	if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
		return err
	}
	version, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}

	result := map[string]int64{"rolled_back": int64(*steps), "version": version}
	return writeOutput([]string{"ROLLED_BACK", "VERSION"},
		[][]string{{strconv.Itoa(*steps), strconv.FormatInt(version, 10)}}, result)
}

func runAdminExpireNow(args []string) error {
	fs := flag.NewFlagSet("expire-now", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, done, err := loadAdminConfig()
	if err != nil {
		return err
	}
	defer done()

	ctx := context.Background()
	st, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer st.close()

	// No event publisher: clients learn about the expiry on their next read.
	reservations := service.NewReservationService(st.store, nil, nil, cfg.Sweeper)
	sweeper := service.NewExpirySweeper(reservations, cfg.Sweeper.Interval, nil)
	n, runErr := sweeper.RunOnce(ctx)

	result := map[string]int{"expired": n}
	if err := writeOutput([]string{"EXPIRED"}, [][]string{{strconv.Itoa(n)}}, result); err != nil {
		return err
	}
	return runErr
}

func runAdminProvision(args []string) error {
	fs := flag.NewFlagSet("provision", flag.ContinueOnError)
	tenantID := fs.String("tenant", "", "tenant id (required)")
	sku := fs.String("sku", "", "SKU to provision (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tenantID == "" {
		return errors.New("--tenant is required")
	}
	if *sku == "" {
		return errors.New("--sku is required")
	}

	cfg, done, err := loadAdminConfig()
	if err != nil {
		return err
	}
	defer done()

	ctx := context.Background()
	st, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer st.close()

	locations := service.NewLocationService(st.store, nil, 0)
	provisioning := service.NewProvisioningService(st.store, locations, nil, cfg.Provisioning.Concurrency)
	created, err := provisioning.Provision(ctx, *tenantID, *sku)
	if err != nil {
		return fmt.Errorf("provision: %w", err)
	}

	result := map[string]any{"tenant_id": *tenantID, "sku": *sku, "created": created}
	return writeOutput([]string{"TENANT", "SKU", "CREATED"},
		[][]string{{*tenantID, *sku, strconv.Itoa(created)}}, result)
}

func runAdminIssueToken(args []string) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	userID := fs.String("user", "", "user id (required)")
	tenantID := fs.String("tenant", "", "tenant id (required)")
	roles := fs.String("roles", "", "comma-separated roles: admin, seller, customer")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ttl <= 0 {
		return errors.New("--ttl must be > 0")
	}

	cfg, done, err := loadAdminConfig()
	if err != nil {
		return err
	}
	defer done()
	if !cfg.Auth.Enabled {
		return errors.New("auth is disabled; tokens are not checked")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tokens, err := newTokenService(ctx, cfg.Auth)
	if err != nil {
		return err
	}
	id := user.Identity{UserID: *userID, TenantID: *tenantID, Roles: user.ParseRoles(*roles)}
	tok, err := tokens.Sign(id, *ttl)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	expires := time.Now().Add(*ttl).UTC().Format(time.RFC3339)
	result := map[string]string{"token": tok, "expires_at": expires}
	return writeOutput([]string{"TOKEN", "EXPIRES_AT"}, [][]string{{tok, expires}}, result)
}

// writeOutput prints a tab-aligned table on a terminal and JSON otherwise.
func writeOutput(header []string, rows [][]string, jsonValue any) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec // fd fits in int
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonValue)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	writeRow(w, header)
	for _, row := range rows {
		writeRow(w, row)
	}
	return w.Flush()
}

func writeRow(w *tabwriter.Writer, cols []string) {
	for i, c := range cols {
		if i > 0 {
			_, _ = fmt.Fprint(w, "\t")
		}
		_, _ = fmt.Fprint(w, c)
	}
	_, _ = fmt.Fprintln(w)
}
