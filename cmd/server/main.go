package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opsdeck/opsdeck/internal/attest"
	"github.com/opsdeck/opsdeck/internal/auth"
	"github.com/opsdeck/opsdeck/internal/identity"
	"github.com/opsdeck/opsdeck/internal/mode"
	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/obs"
	"github.com/opsdeck/opsdeck/internal/rbac"
	"github.com/opsdeck/opsdeck/internal/server"
	"github.com/opsdeck/opsdeck/internal/server/handlers"
	"github.com/opsdeck/opsdeck/internal/server/middleware"
	"github.com/opsdeck/opsdeck/internal/session"
	"github.com/opsdeck/opsdeck/internal/storage"
	"github.com/opsdeck/opsdeck/internal/storage/boltdb"
	"github.com/opsdeck/opsdeck/internal/storage/postgres"
	"github.com/opsdeck/opsdeck/internal/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server exited with error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("OpsDeck Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

func run() error {
	// Missing .env is fine: plain environment variables still apply
	_ = godotenv.Load()

	logger := newLogger(envOrDefault("LOG_LEVEL", "info"))
	slog.SetDefault(logger)

	addr := envOrDefault("OPSDECK_HTTP_ADDR", ":8080")
	dataDir := envOrDefault("OPSDECK_DATA_DIR", "./data")
	sharedDSN := os.Getenv("OPSDECK_SHARED_DSN")

	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	obs.Init()

	// Local embedded stores: always present, authn depends on them
	local, err := sqlite.New(ctx, filepath.Join(dataDir, "opsdeck.db"))
	if err != nil {
		return fmt.Errorf("failed to open local database: %w", err)
	}
	defer local.Close()

	secrets, err := boltdb.New(ctx, filepath.Join(dataDir, "opsdeck.bolt"))
	if err != nil {
		return fmt.Errorf("failed to open secret store: %w", err)
	}
	defer secrets.Close()

	// Shared backend: optional, opened without a ping so a down team
	// database never blocks startup
	var shared *postgres.Storage
	if sharedDSN != "" {
		shared, err = postgres.Open(sharedDSN)
		if err != nil {
			return fmt.Errorf("failed to configure shared backend: %w", err)
		}
		defer shared.Close()
	}

	manager, err := session.NewManager(ctx, logger, local, local)
	if err != nil {
		return fmt.Errorf("failed to initialize session manager: %w", err)
	}

	// The manager supplies TTLs so runtime config changes reach freshly
	// issued tokens without a restart
	codec := auth.NewTokenCodec(local, manager)

	var prober mode.Prober
	if shared != nil {
		prober = shared
	}
	resolver := mode.NewResolver(logger, local, prober)

	localProvider := identity.NewLocalProvider(logger, local, codec, manager)
	var sharedProvider *identity.SharedProvider
	if shared != nil {
		sharedProvider = identity.NewSharedProvider(logger, localProvider, shared)
	}
	provider := identity.NewFacade(resolver, localProvider, sharedProvider)

	var rbacStore storage.RBACStorage = noMembershipStore{}
	if shared != nil {
		rbacStore = shared
	}
	engine := rbac.NewEngine(logger, rbacStore)
	attestSvc := attest.NewService(logger, local, secrets, secrets)

	callerEmail := func(r *http.Request) (string, error) {
		userID, ok := middleware.UserIDFrom(r.Context())
		if !ok {
			return "", errors.New("no authenticated user in context")
		}
		u, err := provider.GetUserByID(r.Context(), userID)
		if err != nil {
			return "", err
		}
		return u.Email, nil
	}

	handler, stopLimiter := server.New(logger, provider, server.Handlers{
		Auth:    handlers.NewAuthHandler(logger, localProvider, provider),
		Session: handlers.NewSessionHandler(logger, manager),
		Mode:    handlers.NewModeHandler(logger, resolver),
		Team:    handlers.NewTeamHandler(logger, attestSvc, engine, callerEmail),
		Health:  handlers.NewHealthHandler(logger, Version),
	})
	defer stopLimiter()

	sweeper := session.NewSweeper(logger, manager)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", addr), slog.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// noMembershipStore backs the RBAC engine when no shared backend is
// configured. Every team is empty, so team-scoped endpoints answer
// "not a member" instead of crashing.
type noMembershipStore struct{}

func (noMembershipStore) GetRolesForUser(ctx context.Context, userID string) ([]string, error) {
	return nil, nil
}

func (noMembershipStore) GetPermissionsForUser(ctx context.Context, userID string) ([]string, error) {
	return nil, nil
}

func (noMembershipStore) GetMemberRole(ctx context.Context, teamID, email string) (*models.TeamMember, error) {
	return nil, storage.ErrMemberNotFound
}

func (noMembershipStore) ListTeamMembers(ctx context.Context, teamID string) ([]*models.TeamMember, error) {
	return nil, nil
}

func (noMembershipStore) UpsertTeamMember(ctx context.Context, member *models.TeamMember) error {
	return storage.ErrMemberNotFound
}

func (noMembershipStore) RemoveTeamMember(ctx context.Context, teamID, email string) error {
	return storage.ErrMemberNotFound
}

func (noMembershipStore) HasPermission(ctx context.Context, teamID, email, resource, action string) (bool, error) {
	return false, nil
}
