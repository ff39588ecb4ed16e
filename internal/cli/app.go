package cli

import (
	"fmt"
	"time"

	"github.com/aimd54/datestreak/internal/cache"
	"github.com/aimd54/datestreak/internal/config"
	scoring "github.com/aimd54/datestreak/internal/game"
	"github.com/aimd54/datestreak/internal/repository"
	"github.com/aimd54/datestreak/internal/service/aggregator"
	"github.com/aimd54/datestreak/internal/service/allocation"
	"github.com/aimd54/datestreak/internal/service/badges"
	"github.com/aimd54/datestreak/internal/service/entitlements"
	gamesvc "github.com/aimd54/datestreak/internal/service/game"
	"github.com/aimd54/datestreak/internal/service/leaderboard"
	"github.com/aimd54/datestreak/internal/service/outbox"
	"github.com/aimd54/datestreak/internal/service/protection"
	"github.com/aimd54/datestreak/internal/service/reconciler"
	"github.com/aimd54/datestreak/internal/service/scheduler"
	"github.com/aimd54/datestreak/internal/service/streak"
	"github.com/aimd54/datestreak/pkg/logger"
)

// app is the wired object graph shared by the commands.
type app struct {
	cfg *config.Config
	log *logger.Logger
	db  *repository.DB

	store    *cache.Cache
	attempts *cache.AttemptCache
	queue    *cache.Outbox

	allocation  *allocation.Service
	streaks     *streak.Service
	protection  *protection.Service
	badges      *badges.Service
	game        *gamesvc.Service
	worker      *outbox.Worker
	aggregator  *aggregator.Service
	scheduler   *scheduler.Service
	leaderboard *leaderboard.Service
}

// loadConfig reads the config and initializes the global logger.
func loadConfig(opts *RootOptions) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	logger.Init(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	return cfg, logger.Get(), nil
}

// openDB connects to the attempt store.
func openDB(cfg *config.Config, log *logger.Logger) (*repository.DB, error) {
	db, err := repository.NewDB(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// newApp connects to the store and Redis and builds every service.
func newApp(opts *RootOptions) (*app, error) {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Game.Location()
	if err != nil {
		return nil, fmt.Errorf("game.timezone: %w", err)
	}
	format, err := scoring.ParseFormat(cfg.Game.DefaultDigitFormat)
	if err != nil {
		return nil, fmt.Errorf("game.default_digit_format: %w", err)
	}

	db, err := openDB(cfg, log)
	if err != nil {
		return nil, err
	}
	store, err := cache.New(&cfg.Database.Redis, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, db: db, store: store}
	a.attempts = cache.NewAttemptCache(store, time.Duration(cfg.Database.Redis.AttemptTTL)*time.Hour)
	a.queue = cache.NewOutbox(store, cfg.Outbox.BaseBackoffDuration(), cfg.Outbox.MaxBackoffDuration())

	attemptRepo := repository.NewAttemptRepository(db)
	puzzleRepo := repository.NewPuzzleRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	protectionRepo := repository.NewProtectionRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)

	a.allocation = allocation.NewService(puzzleRepo, log)
	a.streaks = streak.NewService(attemptRepo, snapshotRepo, protectionRepo, log)
	a.protection = protection.NewService(
		attemptRepo, protectionRepo, a.allocation,
		entitlements.NewProvider(&cfg.Entitlements), a.streaks,
		cfg.Game.LookbackLimit, log,
	)
	a.badges = badges.NewService(badgeRepo, log)

	rec := reconciler.New(attemptRepo, a.attempts, cfg.Game.AllowOfflineFreshStart, log)
	a.game = gamesvc.NewService(
		a.allocation, rec, a.attempts, a.queue,
		a.protection, a.streaks, a.badges,
		gamesvc.Options{MaxGuesses: cfg.Game.MaxGuesses, DefaultFormat: format, Location: loc},
		log,
	)

	a.worker = outbox.NewWorker(a.queue, a.game, cfg.Outbox.BatchSize, cfg.Outbox.RatePerSecond, log)
	a.aggregator = aggregator.NewService(attemptRepo, snapshotRepo, a.streaks, 0, log)
	a.scheduler = scheduler.NewService(cfg, a.worker, a.aggregator, log)
	a.leaderboard = leaderboard.NewService(snapshotRepo, badgeRepo, log)

	return a, nil
}

// Close releases the store and Redis connections.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("Failed to close Redis connection")
	}
	if err := a.db.Close(); err != nil {
		a.log.Error().Err(err).Msg("Failed to close database connection")
	}
}
