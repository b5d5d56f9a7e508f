package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/BruksfildServices01/clinic-sync/internal/audit"
	"github.com/BruksfildServices01/clinic-sync/internal/backup"
	"github.com/BruksfildServices01/clinic-sync/internal/config"
	dbpkg "github.com/BruksfildServices01/clinic-sync/internal/db"
	"github.com/BruksfildServices01/clinic-sync/internal/freshness"
	"github.com/BruksfildServices01/clinic-sync/internal/gateway"
	infraRepo "github.com/BruksfildServices01/clinic-sync/internal/infra/repository"
	"github.com/BruksfildServices01/clinic-sync/internal/media"
	"github.com/BruksfildServices01/clinic-sync/internal/routes"
	"github.com/BruksfildServices01/clinic-sync/internal/session"
	"github.com/BruksfildServices01/clinic-sync/internal/stream"
	"github.com/BruksfildServices01/clinic-sync/internal/syncengine"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db := dbpkg.NewDB(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ======================================================
	// LOCAL STORE
	// ======================================================
	appointmentRepo := infraRepo.NewAppointmentGormRepository(db)
	prescriptionRepo := infraRepo.NewPrescriptionGormRepository(db)
	notificationRepo := infraRepo.NewNotificationGormRepository(db)

	auditLogger := audit.New(db)
	auditDispatcher := audit.NewDispatcher(auditLogger)
	defer auditDispatcher.Close()

	// ======================================================
	// REMOTE + SESSION
	// ======================================================
	remote := gateway.New(cfg.RemoteBaseURL, cfg.RemoteTimeout)

	store, err := session.NewFileStore(cfg.SessionFile, cfg.SessionSecret)
	if err != nil {
		log.Fatalf("session store: %v", err)
	}
	sessions := session.NewManager(remote, store)
	remote.SetTokenSource(sessions)
	if err := sessions.Restore(); err != nil {
		log.Printf("session restore: %v", err)
	}

	var fresh freshness.Tracker = freshness.NewMemoryTracker(cfg.FreshnessTTL)
	if cfg.RedisURL != "" {
		rt, err := freshness.NewRedisTrackerFromURL(cfg.RedisURL, cfg.FreshnessTTL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rt.Close()
		fresh = rt
	}

	images, err := media.New(cfg.MediaDir, cfg.MediaMaxPx)
	if err != nil {
		log.Fatalf("media cache: %v", err)
	}

	// ======================================================
	// ENGINE
	// ======================================================
	engine := syncengine.New(syncengine.Config{
		Appointments:  appointmentRepo,
		Prescriptions: prescriptionRepo,
		Remote:        remote,
		Session:       sessions,
		Freshness:     fresh,
		Journal:       auditDispatcher,
		Prefetcher:    images,
		DegradedAfter: cfg.SyncDegradedAfter,
	})
	scheduler := syncengine.NewScheduler(engine, cfg.SyncInterval)

	bridge := stream.New(stream.Config{
		URL:           cfg.StreamURL,
		Engine:        engine,
		Notifications: notificationRepo,
		Session:       sessions,
	})

	var exporter *backup.Exporter
	if cfg.Backup.Enabled() {
		exporter = backup.NewExporter(backup.NewS3Client(cfg.Backup), cfg.Backup.Bucket, appointmentRepo, prescriptionRepo)
	}

	// ======================================================
	// UI API
	// ======================================================
	r := gin.Default()
	routes.RegisterRoutes(r, routes.Deps{
		Engine:        engine,
		Scheduler:     scheduler,
		Sessions:      sessions,
		Freshness:     fresh,
		Journal:       auditLogger,
		Appointments:  appointmentRepo,
		Notifications: notificationRepo,
		Bridge:        bridge,
		Media:         images,
		Exporter:      exporter,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Server running on %s", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return ignoreCancel(scheduler.Start(gctx))
	})

	if cfg.StreamURL != "" {
		g.Go(func() error {
			return ignoreCancel(bridge.Run(gctx))
		})
	}

	if err := g.Wait(); err != nil {
		log.Printf("shutdown: %v", err)
	}
	images.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
