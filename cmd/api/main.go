package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/investledger/internal/api"
	"github.com/punchamoorthee/investledger/internal/config"
	"github.com/punchamoorthee/investledger/internal/domain"
	"github.com/punchamoorthee/investledger/internal/identity"
	"github.com/punchamoorthee/investledger/internal/service"
	"github.com/punchamoorthee/investledger/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("unable to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Bootstrap(ctx); err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	// Initialize Layers
	ledger := service.NewLedgerService(st, logger)
	handler := api.NewHandler(ledger, identity.NewTokenAuthenticator(st), logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("server starting", "port", cfg.Port, "env", cfg.Env, "driver", cfg.StoreDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.StoreDriver == config.DriverPostgres {
		return store.NewPostgresStore(ctx, cfg.DBSource, logger)
	}

	mem := store.NewMemoryStore(logger)
	if cfg.BootstrapAdminToken == "" {
		logger.Warn("memory store without BOOTSTRAP_ADMIN_TOKEN: no caller can authenticate")
		return mem, nil
	}
	err := mem.InTx(ctx, func(tx store.Tx) error {
		u, err := tx.CreateUser(ctx, domain.User{Username: "admin", IsAdmin: true})
		if err != nil {
			return err
		}
		return tx.IssueToken(ctx, u.ID, cfg.BootstrapAdminToken)
	})
	return mem, err
}
