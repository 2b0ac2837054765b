package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sebas/regcore/internal/banner"
	"github.com/sebas/regcore/internal/logger"
	"github.com/sebas/regcore/internal/regcore/app"
	"github.com/sebas/regcore/internal/regcore/config"
)

func main() {
	cfg := config.Load()

	logger.InitLogger(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	banner.Print("regcore - S-CSCF Subscriber State Core", []banner.ConfigLine{
		{Label: "S-CSCF URI", Value: cfg.SCSCFURI},
		{Label: "S4 backend", Value: cfg.S4Backend},
		{Label: "HSS endpoint", Value: cfg.HSSEndpoint},
		{Label: "Analytics sink", Value: cfg.AnalyticsSink},
		{Label: "Max retries", Value: fmt.Sprintf("%d", cfg.MaxRetries)},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, err := app.NewCore(ctx, cfg)
	if err != nil {
		slog.Error("failed to build registrar core", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	run(ctx, cancel, core)
}

func run(ctx context.Context, cancel context.CancelFunc, core *app.Core) {
	slog.Info("starting regcore", "bind", "0.0.0.0:5060")

	go func() {
		if err := core.ListenAndServe(ctx, "udp", "0.0.0.0:5060"); err != nil {
			slog.Error("server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)
	cancel()
}
