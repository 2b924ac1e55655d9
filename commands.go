// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielhkuo/kidwa/cliparse"
	"github.com/danielhkuo/kidwa/db"
	"github.com/danielhkuo/kidwa/handlers"
	"github.com/danielhkuo/kidwa/logging"
	"github.com/danielhkuo/kidwa/metrics"
	"github.com/danielhkuo/kidwa/middleware"
	"github.com/danielhkuo/kidwa/realtime"
	"github.com/danielhkuo/kidwa/router"
	"github.com/danielhkuo/kidwa/scheduler"
)

const shutdownTimeout = 10 * time.Second

// runFunc is a command body with configuration, logger and database ready.
type runFunc func(ctx context.Context, cfg cliparse.Config, log *zap.Logger, conn *sql.DB) error

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kidwa",
		Short: "Kidwa prediction poll API server",
		Long: `Kidwa serves the prediction poll API. Without a subcommand it runs the
server. Flags are shared by every command and fall back to the environment
and an optional .env file.`,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE:               withSetup(serve),
	}

	root.AddCommand(
		&cobra.Command{
			Use:                "serve",
			Short:              "Run the API server, realtime hub and expiry worker",
			DisableFlagParsing: true,
			RunE:               withSetup(serve),
		},
		&cobra.Command{
			Use:                "migrate",
			Short:              "Create or update the database schema",
			DisableFlagParsing: true,
			RunE:               withSetup(migrate),
		},
		&cobra.Command{
			Use:                "expire",
			Short:              "Close every poll past its deadline once and exit",
			DisableFlagParsing: true,
			RunE:               withSetup(expire),
		},
		&cobra.Command{
			Use:                "promote <username>",
			Short:              "Grant admin rights to a user",
			DisableFlagParsing: true,
			RunE:               withSetup(promote),
		},
	)
	return root
}

// withSetup parses the shared flags and opens the database before running fn.
func withSetup(fn runFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := cliparse.ParseFlags(args)
		if errors.Is(err, pflag.ErrHelp) {
			return cmd.Help()
		}
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		log, err := logging.New(cfg.LogLevel, cfg.Dev)
		if err != nil {
			return err
		}
		defer log.Sync()

		conn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
		if err != nil {
			log.Error("database connection failed", zap.Error(err))
			return err
		}
		defer conn.Close()

		return fn(cmd.Context(), cfg, log, conn)
	}
}

func serve(ctx context.Context, cfg cliparse.Config, log *zap.Logger, conn *sql.DB) error {
	if err := cfg.RequireSecrets(); err != nil {
		return err
	}
	if err := db.CreateSchema(conn); err != nil {
		log.Error("schema creation failed", zap.Error(err))
		return err
	}
	log.Info("database schema ready", zap.String("driver", cfg.DatabaseType))

	m := metrics.New()
	authMW := middleware.NewAuth(conn, cfg.JWTSecret, log)
	hub := realtime.NewHub(log, m, authMW.UserID)
	expirer := scheduler.NewExpirer(conn, log.Named("expiry"), m, hub, cfg.ExpiryInterval)

	deps := handlers.Deps{DB: conn, Config: cfg, Log: log, Metrics: m, Publisher: hub}
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router.NewRouter(deps, authMW, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return expirer.Run(ctx)
	})
	g.Go(func() error {
		log.Info("listening", zap.Int("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	log.Info("server closed", zap.Error(err))
	return err
}

func migrate(ctx context.Context, cfg cliparse.Config, log *zap.Logger, conn *sql.DB) error {
	if err := db.CreateSchema(conn); err != nil {
		return err
	}
	log.Info("database schema ready", zap.String("driver", cfg.DatabaseType))
	return nil
}

// discard drops realtime events when no hub is running.
type discard struct{}

func (discard) Publish(string, string, any) {}

func expire(ctx context.Context, cfg cliparse.Config, log *zap.Logger, conn *sql.DB) error {
	e := scheduler.NewExpirer(conn, log.Named("expiry"), metrics.New(), discard{}, cfg.ExpiryInterval)
	n, err := e.RunOnce(ctx)
	if err != nil {
		return err
	}
	log.Info("expired polls closed", zap.Int("count", n))
	return nil
}

func promote(ctx context.Context, cfg cliparse.Config, log *zap.Logger, conn *sql.DB) error {
	if len(cfg.Args) != 1 {
		return errors.New("usage: kidwa promote <username> [flags]")
	}
	username := strings.ToLower(cfg.Args[0])

	res, err := conn.ExecContext(ctx, `UPDATE app_user SET is_admin = TRUE WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("failed to promote user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %q not found", username)
	}

	log.Info("user promoted to admin", zap.String("username", username))
	return nil
}
