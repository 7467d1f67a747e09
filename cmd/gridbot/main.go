// Command gridbot runs the grid trading engine against a single spot
// market as a long-lived process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"gridtrader/internal/alert"
	"gridtrader/internal/bootstrap"
	"gridtrader/internal/console"
	"gridtrader/internal/core"
	"gridtrader/internal/exchange/binance"
	"gridtrader/internal/exchange/fake"
	"gridtrader/internal/gridengine"
	"gridtrader/internal/ledger"
	"gridtrader/pkg/concurrency"
)

func main() {
	configPath := flag.String("config", "configs/gridbot.yaml", "path to configuration file")
	webhookURL := flag.String("webhook", "", "optional webhook URL for push notifications")
	flag.Parse()

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gridbot: %v\n", err)
		os.Exit(1)
	}

	led, err := ledger.Open(app.Cfg.App.DatabasePath)
	if err != nil {
		app.Logger.Error("failed to open ledger", "error", err)
		os.Exit(1)
	}
	defer led.Close()

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "order_probe",
		MaxWorkers:  app.Cfg.Concurrency.ProbePoolSize,
		MaxCapacity: app.Cfg.Concurrency.ProbePoolBuffer,
	}, app.Logger)
	defer pool.Stop()

	var exch core.IExchange
	switch app.Cfg.Exchange.Name {
	case "binance":
		exch = binance.New(&app.Cfg.Exchange, app.Logger)
	default:
		exch = fake.New(decimal.NewFromInt(0))
	}

	notifier := alert.NewManager(app.Logger)
	notifier.AddChannel(alert.NewLogChannel(app.Logger))
	notifier.AddChannel(alert.NewWebhookChannel(*webhookURL))

	tickInterval := time.Duration(app.Cfg.Timing.MonitorTickSeconds) * time.Second
	engine := gridengine.New(exch, led, app.Logger, notifier, pool, tickInterval, int64(app.Cfg.Timing.ReconciliationEveryTicks))
	csl := console.New(engine, notifier, app.Logger)
	csl.Notify(func(n core.Notification) {
		app.Logger.Info("console notification", "kind", n.Kind, "message", n.Message)
	})

	ctx := context.Background()
	if err := engine.Recover(ctx); err != nil {
		app.Logger.Error("recovery failed", "error", err)
		os.Exit(1)
	}

	gridCfg, err := app.Cfg.Grid.ToGridConfig()
	if err != nil {
		app.Logger.Error("invalid grid configuration", "error", err)
		os.Exit(1)
	}

	if err := csl.Start(ctx, gridCfg); err != nil {
		app.Logger.Error("failed to start grid", "error", err)
		os.Exit(1)
	}

	if err := app.Run(consoleRunner{console: csl}); err != nil {
		os.Exit(1)
	}

	app.Shutdown(10 * time.Second)
}

// consoleRunner adapts the console's lifecycle to bootstrap.Runner: it
// blocks until ctx is canceled, then requests a graceful stop.
type consoleRunner struct {
	console *console.Console
}

func (r consoleRunner) Run(ctx context.Context) error {
	<-ctx.Done()
	r.console.Stop(ctx)
	return nil
}
