package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/masquebot/masquebot/internal/config"
	"github.com/masquebot/masquebot/internal/fatherbot"
	"github.com/masquebot/masquebot/internal/groupbot"
	"github.com/masquebot/masquebot/internal/runner"
	"github.com/masquebot/masquebot/internal/store/sqldb"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the father bot and all group bots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch {
	case verbose:
		lvl = slog.LevelDebug
	case level == "debug":
		lvl = slog.LevelDebug
	case level == "warn":
		lvl = slog.LevelWarn
	case level == "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return err
	}

	driver, dsn, err := cfg.DriverDSN()
	if err != nil {
		return err
	}
	db, err := sqldb.Open(driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	stores := sqldb.NewStores(db)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	groups := runner.New(stores, slog.Default(), groupbot.Options{
		OpTimeout:         cfg.Fabric.OpTimeout.Std(),
		MaskTTL:           cfg.Fabric.MaskTTL.Std(),
		Masks:             cfg.Fabric.Masks,
		MessagesPerSecond: cfg.Fabric.MessagesPerSecond,
	})

	father, err := fatherbot.New(stores, groups, slog.Default(), fatherbot.Options{
		Token:             cfg.Father.Token,
		AdminTGID:         cfg.Father.AdminTGID,
		RequireCode:       cfg.Father.RequireCode,
		MessagesPerSecond: cfg.Fabric.MessagesPerSecond,
	})
	if err != nil {
		return err
	}

	if err := father.Start(ctx); err != nil {
		return err
	}
	if err := groups.StartAll(ctx); err != nil {
		slog.Error("starting group bots", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		groups.StopAll(shutdownCtx)
		return father.Stop(shutdownCtx)
	})

	slog.Info("masquebot running", "mode", cfg.Mode)
	return g.Wait()
}
