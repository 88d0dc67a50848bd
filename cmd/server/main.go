/*
main.go - Application entry point

PURPOSE:
  Starts the points ledger engine: loads configuration, opens the selected
  store, exposes Prometheus metrics, and optionally seeds a demo referral
  tree so the ledger has something to show.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load TOML configuration (defaults when the file is absent)
  3. Open the configured store (sqlite, postgres, or memory)
  4. Start the metrics listener
  5. Optionally run the demo walkthrough
  6. Wait for SIGINT/SIGTERM, then shut down

COMMAND-LINE FLAGS:
  -config  Path to the TOML config file (default: points.toml)
  -db      Override the configured storage DSN
           Use ":memory:" with the sqlite driver for an in-memory database
  -demo    Seed a demo referral tree and print a walkthrough of the
           pricing, reward, transfer, and profit operations

EXAMPLES:
  # Run with file database
  ./server -config=./points.toml

  # Run the demo against an in-memory database
  ./server -db=":memory:" -demo

SEE ALSO:
  - config/config.go: Configuration schema and defaults
  - engine/engine.go: Operation engine
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/warp/points-ledger/config"
	"github.com/warp/points-ledger/engine"
	"github.com/warp/points-ledger/ledger"
	memstore "github.com/warp/points-ledger/ledger/store"
	"github.com/warp/points-ledger/pricing"
	"github.com/warp/points-ledger/store/postgres"
	"github.com/warp/points-ledger/store/sqlite"
)

func main() {
	configPath := flag.String("config", "points.toml", "TOML config file path")
	dbOverride := flag.String("db", "", "override the configured storage DSN")
	demo := flag.Bool("demo", false, "seed a demo referral tree and print a walkthrough")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbOverride != "" {
		cfg.Storage.DSN = *dbOverride
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	eng := engine.New(store, engine.BcryptVerifier{}, nil)

	// Metrics
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:         cfg.Server.MetricsAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		log.Printf("Metrics listening on http://%s/metrics", cfg.Server.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Metrics server failed: %v", err)
		}
	}()

	if *demo {
		if err := runDemo(context.Background(), eng, cfg.PricingConfig()); err != nil {
			log.Fatalf("Demo walkthrough failed: %v", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(ctx); err != nil {
		log.Fatalf("Metrics server forced to shutdown: %v", err)
	}
	log.Println("Stopped")
}

func openStore(cfg config.Config) (ledger.TxStore, func(), error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		s, err := sqlite.New(cfg.Storage.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "postgres":
		s, err := postgres.New(context.Background(), cfg.Storage.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "memory":
		return memstore.NewTxMemory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// =============================================================================
// DEMO WALKTHROUGH
// =============================================================================

// runDemo builds a three-level referral tree, funds it, and exercises every
// engine operation once, logging the resulting ledger state.
func runDemo(ctx context.Context, eng *engine.Engine, cfg pricing.Config) error {
	log.Println("=== demo: registration ===")

	root, err := eng.Register(ctx, engine.RegisterInput{
		Name: "platform", Phone: "10000000000", Role: ledger.RolePlatform,
		PayPassword: "root-pay",
	})
	if err != nil {
		return fmt.Errorf("register platform root: %w", err)
	}

	alice, err := eng.Register(ctx, engine.RegisterInput{
		Name: "alice", Phone: "13800000001", Role: ledger.RoleAgent,
		ParentPromo: root.PromoCode, PayPassword: "alice-pay",
	})
	if err != nil {
		return fmt.Errorf("register alice: %w", err)
	}
	bob, err := eng.Register(ctx, engine.RegisterInput{
		Name: "bob", Phone: "13800000002", Role: ledger.RoleAgent,
		ParentPromo: alice.PromoCode, PayPassword: "bob-pay",
	})
	if err != nil {
		return fmt.Errorf("register bob: %w", err)
	}
	carol, err := eng.Register(ctx, engine.RegisterInput{
		Name: "carol", Phone: "13800000003", Role: ledger.RoleOrdinary,
		ParentPromo: bob.PromoCode, PayPassword: "carol-pay",
	})
	if err != nil {
		return fmt.Errorf("register carol: %w", err)
	}
	log.Printf("upline: carol -> bob(%s) -> alice(%s) -> platform", bob.PromoCode, alice.PromoCode)

	log.Println("=== demo: recharge ===")
	for _, points := range []string{"200", "100"} {
		res, err := eng.Recharge(ctx, cfg, carol.ID, decimal.RequireFromString(points))
		if err != nil {
			return fmt.Errorf("recharge carol: %w", err)
		}
		log.Printf("carol recharged %s points for %s cash", res.Points, res.ActualCash)
	}
	if _, err := eng.Recharge(ctx, cfg, bob.ID, decimal.NewFromInt(500)); err != nil {
		return fmt.Errorf("recharge bob: %w", err)
	}

	log.Println("=== demo: order with override rewards ===")
	order, err := eng.CreateOrder(ctx, cfg, engine.OrderInput{
		AccountID:      carol.ID,
		SettlementDate: time.Now().AddDate(0, 0, 3),
		Quantity:       50,
	})
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	log.Printf("order %s: %d x %s = %s points", order.Order.ID, order.Order.Quantity,
		order.Order.FinalPrice, order.Order.TotalPoints)
	for _, r := range order.Rewards {
		log.Printf("reward to %s: %s (%s)", r.AccountID, r.Delta, r.Description)
	}
	if err := eng.ReviewOrder(ctx, order.Order.ID, true); err != nil {
		return fmt.Errorf("approve order: %w", err)
	}

	log.Println("=== demo: transfer with cost-basis floor ===")
	transfer := engine.TransferInput{
		SenderID:       bob.ID,
		RecipientPhone: carol.Phone,
		Quantity:       decimal.NewFromInt(50),
		UnitPrice:      decimal.RequireFromString("1.2"),
		PayPassword:    "bob-pay",
	}
	result, err := eng.ExecuteTransfer(ctx, cfg, transfer)
	if err != nil {
		var confirm *ledger.ConfirmationRequiredError
		if !errors.As(err, &confirm) {
			return fmt.Errorf("transfer: %w", err)
		}
		log.Printf("price %s is below cost %s, confirming", transfer.UnitPrice, confirm.PurchaseUnitPrice)
		transfer.Confirmed = true
		if result, err = eng.ExecuteTransfer(ctx, cfg, transfer); err != nil {
			return fmt.Errorf("confirmed transfer: %w", err)
		}
	}
	log.Printf("transferred %s points bob -> carol at %s/point", result.Out.Quantity(), transfer.UnitPrice)

	log.Println("=== demo: cash profit replay ===")
	report, err := eng.ComputeCashProfit(ctx, cfg, bob.ID)
	if err != nil {
		return fmt.Errorf("profit report: %w", err)
	}
	for _, tp := range report.Transfers {
		log.Printf("sold %s to %s at %s (cost %s): profit %s",
			tp.Quantity, tp.RecipientName, tp.SaleUnitPrice, tp.PurchaseUnitPrice, tp.Profit)
	}
	log.Printf("total cash profit: %s", report.TotalProfit)

	log.Println("=== demo: statements ===")
	for _, acct := range []ledger.Account{alice, bob, carol} {
		current, err := eng.Account(ctx, acct.ID)
		if err != nil {
			return err
		}
		entries, err := eng.Statement(ctx, acct.ID)
		if err != nil {
			return err
		}
		log.Printf("%s: balance %s across %d entries", current.Name, current.Balance, len(entries))
	}
	return nil
}
