package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expense-approval/internal/approval"
	"expense-approval/internal/auth"
	"expense-approval/internal/config"
	"expense-approval/internal/currency"
	"expense-approval/internal/handlers"
	"expense-approval/internal/logging"
	"expense-approval/internal/models"
	"expense-approval/internal/storage"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "server",
		Short: "Expense approval service",
		Long: `Serves the expense approval JSON API: employees submit expense
claims in any supported currency and approvers work through the pending
queue, approving or rejecting each claim.`,
		RunE:          runServer,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.Flags().String("addr", ":8080", "listen address")
	rootCmd.Flags().String("db", "expenses.db", "path to database file")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().String("log-format", "console", "log format (console, json)")
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("received interrupt signal, shutting down")
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	// Explicit flags win over the config file.
	flagOverrides := map[string]*string{
		"addr":       &cfg.Addr,
		"db":         &cfg.DBPath,
		"log-level":  &cfg.LogLevel,
		"log-format": &cfg.LogFormat,
	}
	for name, dst := range flagOverrides {
		if flag := cmd.Flags().Lookup(name); flag != nil && flag.Changed {
			*dst = flag.Value.String()
		}
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	converter, err := currency.NewConverter(cfg.ReportingCurrency, cfg.Rates)
	if err != nil {
		return fmt.Errorf("invalid currency configuration: %w", err)
	}

	db, err := storage.NewDB(cfg.DBPath, converter)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := bootstrapAdmin(db, cfg); err != nil {
		return err
	}
	if err := db.CleanExpiredSessions(); err != nil {
		slog.Warn("failed to clean expired sessions", "error", err)
	}

	engine := approval.NewEngine(db)
	h := handlers.NewHandlers(db, engine, cfg.SessionDuration)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           setupRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("server listening",
			"addr", cfg.Addr,
			"db", cfg.DBPath,
			"reporting_currency", converter.Reporting(),
		)
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-cmd.Context().Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	return nil
}

// setupRouter wires the JSON API. Everything past login/signup requires a
// valid session.
func setupRouter(h *handlers.Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("POST /api/signup", h.Signup)
	mux.HandleFunc("POST /api/login", h.Login)
	// Logout resolves the token itself: a session that is already dead
	// still logs out with 204 instead of failing auth.
	mux.HandleFunc("POST /api/logout", h.Logout)

	authed := func(fn http.HandlerFunc) http.Handler {
		return h.AuthMiddleware(fn)
	}
	mux.Handle("POST /api/expenses", authed(h.CreateExpense))
	mux.Handle("GET /api/expenses", authed(h.ListExpenses))
	mux.Handle("GET /api/expenses/summary", authed(h.Summary))
	mux.Handle("GET /api/expenses/{id}", authed(h.GetExpense))
	mux.Handle("PUT /api/expenses/{id}", authed(h.UpdateExpense))
	mux.Handle("GET /api/approvals", authed(h.ApprovalsQueue))
	mux.Handle("POST /api/expenses/{id}/decision", authed(h.Decide))

	return mux
}

// bootstrapAdmin creates the first approver account when the user table is
// empty, from admin.email / admin.password (EXPENSE_ADMIN_EMAIL and
// EXPENSE_ADMIN_PASSWORD). Without it a fresh deployment would have no one
// able to clear the queue.
func bootstrapAdmin(db *storage.DB, cfg *config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	user, err := db.CreateUser("Admin", cfg.AdminEmail, hash, models.RoleApprover)
	if err != nil {
		return fmt.Errorf("failed to bootstrap approver: %w", err)
	}
	slog.Info("bootstrapped approver account", "user_id", user.ID)
	return nil
}
