package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"task-manager/internal/auth"
	"task-manager/internal/config"
	"task-manager/internal/handlers"
	"task-manager/internal/scheduler"
	"task-manager/internal/session"
	"task-manager/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server: %v", err)
	}
	log.Println("Shutdown complete.")
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	db, err := storage.Open(cfg.DBDriver, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := bootstrapAdmin(ctx, db, cfg); err != nil {
		return err
	}

	sessions := session.NewManager(db, session.Options{TTL: cfg.SessionTTL, SecureCookie: cfg.SecureCookie})
	h := handlers.NewHandlers(db, sessions)

	if cfg.SessionSweep != "" {
		sched := scheduler.New(time.Local)
		if err := scheduleSweep(sched, cfg.SessionSweep, func() { sweepSessions(db) }); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
		log.Printf("Scheduler started with %d jobs", sched.Entries())
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           setupRouter(h, sessions),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Printf("Task manager listening on %s (%s)", srv.Addr, cfg.DBDriver)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// setupRouter wires the API routes behind request logging and session resolution.
func setupRouter(h *handlers.Handlers, sessions *session.Manager) http.Handler {
	router := mux.NewRouter()
	h.Routes(router)
	return handlers.RequestLogger(sessions.Middleware(router))
}

// bootstrapAdmin creates the configured admin account when the database has no users yet.
func bootstrapAdmin(ctx context.Context, db *storage.DB, cfg config.Config) error {
	if cfg.AdminUser == "" {
		return nil
	}
	count, err := db.UserCount(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	user, err := auth.NewCredentials(db).Register(ctx, cfg.AdminUser, cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	log.Printf("Created admin user %s (id %d)", user.Username, user.ID)
	return nil
}

// scheduleSweep registers job on sched. every is a duration such as "30m" or
// a cron spec such as "@hourly".
func scheduleSweep(sched *scheduler.Scheduler, every string, job func()) error {
	if interval, err := time.ParseDuration(every); err == nil {
		_, err := sched.ScheduleInterval(interval, job)
		return err
	}
	_, err := sched.Schedule(every, job)
	return err
}

func sweepSessions(db *storage.DB) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := db.CleanSessions(ctx)
	if err != nil {
		log.Printf("session sweep: %v", err)
		return
	}
	if n > 0 {
		log.Printf("session sweep: removed %d sessions", n)
	}
}
