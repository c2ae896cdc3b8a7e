package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/diarymirror/internal/adapter/driven/diary"
	"github.com/ericfisherdev/diarymirror/internal/adapter/driven/sealer"
	sqliteadapter "github.com/ericfisherdev/diarymirror/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/diarymirror/internal/adapter/driving/http"
	"github.com/ericfisherdev/diarymirror/internal/application"
	"github.com/ericfisherdev/diarymirror/internal/config"
	"github.com/ericfisherdev/diarymirror/internal/logging"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "diarymirror:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat webhook server and the recurring schedule sync",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), runServe)
		},
	}

	rootCmd := &cobra.Command{
		Use:           "diarymirror",
		Short:         "School diary schedule bot with a local encrypted mirror",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveCmd.RunE,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML configuration file")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one fleet-wide sync pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), runSyncOnce)
		},
	}

	var userID int64
	eraseCmd := &cobra.Command{
		Use:   "erase",
		Short: "Delete the stored credential and mirrored schedule of one user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				return a.eraser.Erase(ctx, userID)
			})
		},
	}
	eraseCmd.Flags().Int64Var(&userID, "user", 0, "Chat user ID whose data to delete")
	_ = eraseCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(serveCmd, syncCmd, eraseCmd)
	return rootCmd
}

// app holds the wired components shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	mirror *sqliteadapter.ScheduleRepo
	sync   *application.SyncService
	eraser *application.Eraser
	convs  *application.Conversations
	chat   *application.ChatService
}

// withApp loads configuration, wires the application, runs fn under a
// signal-cancelled context and releases everything afterwards.
func withApp(parent context.Context, fn func(context.Context, *app) error) error {
	if parent == nil {
		parent = context.Background()
	}

	// 1. Load configuration (fail fast on invalid settings).
	cfg, err := config.Load(config.NewViper(), cfgFile)
	if err != nil {
		return err
	}

	// 2. Build the logger.
	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("config loaded",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("db_path", cfg.DBPath),
		zap.String("diary_base_url", cfg.Diary.BaseURL),
		zap.Duration("sync_interval", cfg.Sync.Interval),
		zap.Int("sync_parallelism", cfg.Sync.Parallelism),
		zap.Bool("webhook_secret_set", cfg.Webhook.Secret != ""),
	)

	// 3. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("error closing database", zap.Error(closeErr))
		}
	}()
	logger.Info("database opened", zap.String("path", cfg.DBPath))

	// 5. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	logger.Info("migrations complete")

	// 6. Load or create the vault key.
	key, err := sealer.LoadOrCreateKey(cfg.KeyPath)
	if err != nil {
		return err
	}
	seal, err := sealer.New(key)
	if err != nil {
		return err
	}

	// 7. Wire adapters and services.
	credentialStore := sqliteadapter.NewCredentialRepo(db)
	scheduleStore := sqliteadapter.NewScheduleRepo(db)
	diaryClient := diary.NewClient(diary.Config{
		BaseURL:       cfg.Diary.BaseURL,
		Timeout:       cfg.Diary.Timeout,
		RetryAttempts: cfg.Diary.RetryAttempts,
		RetryDelay:    cfg.Diary.RetryDelay,
	}, logger)

	vault := application.NewTokenVault(seal, credentialStore)
	resolver := application.NewSessionResolver(vault, diaryClient, cfg.Diary.Timeout, logger)
	syncSvc := application.NewSyncService(vault, diaryClient, scheduleStore, application.SyncConfig{
		Interval:    cfg.Sync.Interval,
		UserTimeout: cfg.Sync.UserTimeout,
		Parallelism: cfg.Sync.Parallelism,
	}, logger)
	navigator := application.NewNavigator(resolver, scheduleStore, cfg.Diary.Timeout, logger)
	eraser := application.NewEraser(vault, scheduleStore, logger)
	convs := application.NewConversations(cfg.Conversation.IdleTTL)
	chat := application.NewChatService(convs, resolver, syncSvc, navigator, eraser, logger)

	return fn(ctx, &app{
		cfg:    cfg,
		logger: logger,
		mirror: scheduleStore,
		sync:   syncSvc,
		eraser: eraser,
		convs:  convs,
		chat:   chat,
	})
}

func runServe(ctx context.Context, a *app) error {
	// 8. Start background workers. They are stopped and waited for before
	// returning so the database is not closed under an in-flight sync.
	workerCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	defer func() {
		stopWorkers()
		workers.Wait()
	}()

	workers.Go(func() { a.sync.Start(workerCtx) })
	workers.Go(func() {
		a.convs.RunSweeper(workerCtx, max(a.cfg.Conversation.IdleTTL/4, time.Second), a.logger)
	})

	// 9. Create HTTP handler and start the server.
	h := httphandler.NewHandler(a.chat, a.mirror, a.cfg.Webhook.Secret, a.logger)

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(h, a.logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      2*a.cfg.Diary.Timeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server starting", zap.String("addr", a.cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// 10. Wait for shutdown signal or server failure.
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	// 11. Graceful shutdown with 10s timeout for in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", zap.Error(err))
	}

	stopWorkers()
	workers.Wait()

	a.logger.Info("shutdown complete")
	return nil
}

func runSyncOnce(ctx context.Context, a *app) error {
	report, err := a.sync.SyncAll(ctx)
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("sync pass %s: %d of %d users failed", report.PassID, report.Failed, report.Users)
	}
	return nil
}
