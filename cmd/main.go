package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/secutils-dev/scheduler/config"
	"github.com/secutils-dev/scheduler/internal/cronsched"
	"github.com/secutils-dev/scheduler/internal/database"
	"github.com/secutils-dev/scheduler/internal/fetchworker"
	"github.com/secutils-dev/scheduler/internal/handler"
	"github.com/secutils-dev/scheduler/internal/jobstore"
	"github.com/secutils-dev/scheduler/internal/leaderlock"
	"github.com/secutils-dev/scheduler/internal/model"
	"github.com/secutils-dev/scheduler/internal/notify"
	"github.com/secutils-dev/scheduler/internal/notifystore"
	"github.com/secutils-dev/scheduler/internal/resolver"
	"github.com/secutils-dev/scheduler/internal/retry"
	"github.com/secutils-dev/scheduler/internal/revision"
	"github.com/secutils-dev/scheduler/internal/router"
	"github.com/secutils-dev/scheduler/internal/scraper"
	"github.com/secutils-dev/scheduler/internal/tracker"
	"github.com/secutils-dev/scheduler/internal/triggerjob"
)

// logTransport stands in for the external email transport: it logs what
// would be sent instead of actually dispatching SMTP, matching
// internal/jsrt's approach of leaving the real collaborator outside this
// module's scope.
type logTransport struct{}

func (logTransport) Send(ctx context.Context, n model.Notification) error {
	logrus.WithFields(logrus.Fields{
		"destination": n.Destination,
		"template":    n.Content.Template,
	}).Info("email transport: would deliver notification")
	return nil
}

// wellKnownJobID are the fixed ids for the system-wide jobs (as opposed to
// per-tracker Trigger Jobs, which get a fresh uuid.NewV7 each). Using fixed
// ids lets main.go upsert them idempotently on every boot.
var (
	trackersScheduleJobID  = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	notificationsSendJobID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	retry.DefaultStrategy = model.RetryStrategy{
		InitialInterval: cfg.Scheduler.RetryInitialBackoff,
		Multiplier:      2,
		MaxInterval:     cfg.Scheduler.RetryMaxBackoff,
		MaxAttempts:     cfg.Scheduler.RetryMaxAttempts,
	}

	db, err := database.NewPostgresConnection(&cfg.Postgres)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to database")
	}
	defer database.Close(db)

	jobs := jobstore.New(db)
	notifications := notifystore.New(db)
	trackerStore := tracker.NewStore(db)
	revisions := revision.NewStore(db)

	ctx := context.Background()
	if err := database.AutoMigrate(ctx, jobs, notifications, trackerStore, revisions); err != nil {
		logrus.WithError(err).Fatal("failed to run migrations")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).Fatal("failed to connect to redis")
	}

	workerID := fmt.Sprintf("scheduler-%s", uuid.New().String()[:8])
	lock := leaderlock.New(redisClient, "main", workerID)
	if err := acquireLeadership(ctx, lock, time.Duration(cfg.Scheduler.LockTTLSeconds)*time.Second); err != nil {
		logrus.WithError(err).Fatal("failed to acquire leader lock")
	}
	defer lock.Release(ctx)
	stopRefresh := refreshLeadership(ctx, lock, time.Duration(cfg.Scheduler.LockTTLSeconds)*time.Second)
	defer stopRefresh()

	registry := tracker.NewRegistry(trackerStore, jobs, revisions)
	validator := tracker.NewValidator(resolver.New(nil))
	scraperClient := scraper.New(cfg.Scraper.BaseURL, &http.Client{Timeout: cfg.Scraper.Timeout})

	notifyScheduler := notify.New(notifications, logTransport{})

	fw := fetchworker.New(jobs, trackerStore, revisions, notifyScheduler, scraperClient, fetchworker.Config{
		Concurrency: cfg.Scheduler.FetchConcurrency,
		BatchSize:   cfg.Scheduler.FetchBatchSize,
		Deadline:    cfg.Scheduler.FetchDeadline,
	})

	sched := cronsched.New(jobs)
	sched.Register(model.JobTypeTrackerTrigger, triggerjob.Callback(jobs))
	sched.Register(model.JobTypeTrackersSchedule, func(ctx context.Context, _ model.Job) {
		if err := registry.ReconcileUnscheduled(ctx); err != nil {
			logrus.WithError(err).Error("trackers_schedule: reconcile failed")
		}
	})
	sched.Register(model.JobTypeNotificationsSend, func(ctx context.Context, _ model.Job) {
		notifyScheduler.Drain(ctx)
	})

	if err := bootstrapSystemJob(ctx, jobs, trackersScheduleJobID, model.JobTypeTrackersSchedule, cfg.Scheduler.TrackersScheduleCron); err != nil {
		logrus.WithError(err).Fatal("failed to bootstrap trackers_schedule job")
	}
	if err := bootstrapSystemJob(ctx, jobs, notificationsSendJobID, model.JobTypeNotificationsSend, cfg.Scheduler.NotificationsSendCron); err != nil {
		logrus.WithError(err).Fatal("failed to bootstrap notifications_send job")
	}

	handlers := &router.Handlers{
		Tracker: handler.NewTrackerHandler(registry, validator),
		History: handler.NewHistoryHandler(revisions),
		Health:  handler.NewHealthHandler(db, sched),
	}

	app := fiber.New(fiber.Config{
		AppName:      "Secutils Scheduler",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	})
	router.SetupRouter(app, handlers)

	// Start background loops only after the Job Store is reachable
	// ; stop them before closing it on shutdown.
	sched.Start(ctx)
	fw.Start(ctx)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		logrus.WithField("addr", addr).Info("starting scheduler service")
		if err := app.Listen(addr); err != nil {
			logrus.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("shutting down scheduler service")

	fw.Stop()
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logrus.WithError(err).Error("server shutdown error")
	}

	logrus.Info("scheduler service stopped")
}

// bootstrapSystemJob inserts a system-wide cron job under its fixed id only
// when no job with that id exists yet, so re-running it on every boot is a
// no-op. An existing row is left as it is: a changed schedule in the config
// does not replace the stored one.
func bootstrapSystemJob(ctx context.Context, jobs *jobstore.Store, id uuid.UUID, jobType model.JobType, schedule string) error {
	existing, err := jobs.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return jobs.Upsert(ctx, model.Job{
		ID:       id,
		Kind:     model.JobKindCron,
		JobType:  jobType,
		Schedule: schedule,
	})
}

// acquireLeadership blocks briefly retrying the leader lock so a rolling
// restart of a single-replica deployment does not need manual intervention.
func acquireLeadership(ctx context.Context, lock *leaderlock.Lock, ttl time.Duration) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		ok, err := lock.Acquire(ctx, ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("leaderlock: timed out waiting for leadership")
		}
		time.Sleep(time.Second)
	}
}

// refreshLeadership periodically extends the held lease so a live process
// never loses it to its own TTL; returns a function that stops the loop.
func refreshLeadership(ctx context.Context, lock *leaderlock.Lock, ttl time.Duration) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := lock.Refresh(ctx, ttl); err != nil {
					logrus.WithError(err).Warn("leaderlock: failed to refresh lease")
				}
			}
		}
	}()
	return func() { close(stop) }
}

