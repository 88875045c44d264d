// Package app wires configuration, storage and services together for the
// API gateway and the harvester CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/acoustic-workbench-api/internal/catalog"
	"github.com/noah-isme/acoustic-workbench-api/internal/filter"
	"github.com/noah-isme/acoustic-workbench-api/internal/harvest"
	"github.com/noah-isme/acoustic-workbench-api/internal/models"
	"github.com/noah-isme/acoustic-workbench-api/internal/repository"
	"github.com/noah-isme/acoustic-workbench-api/internal/service"
	"github.com/noah-isme/acoustic-workbench-api/pkg/cache"
	"github.com/noah-isme/acoustic-workbench-api/pkg/config"
	"github.com/noah-isme/acoustic-workbench-api/pkg/database"
	"github.com/noah-isme/acoustic-workbench-api/pkg/jobs"
	"github.com/noah-isme/acoustic-workbench-api/pkg/logger"
	"github.com/noah-isme/acoustic-workbench-api/pkg/storage"
)

const (
	harvestQueueName = "harvest"
	deleteQueueName  = "harvest_delete"
	// delete jobs for items still being harvested are retried for about a day
	deleteMaxRetries = 24
)

// App holds the long lived dependencies of a process.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *sqlx.DB
	Redis     *redis.Client
	Metrics   *service.MetricsService
	Filters   *service.FilterService
	Harvests  *service.HarvestService
	Harvester *harvest.Harvester
	Worker    *service.HarvestWorker

	harvestQueue *jobs.Queue
	deleteQueue  *jobs.Queue
	harvestRepo  *repository.HarvestRepository
	scanner      *harvest.Scanner
	cache        *service.CacheService
}

// New connects to the database (and redis when enabled) and builds every
// service. Queues are created but not started.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a, err := Build(cfg, log, db, redisClient)
	if err != nil {
		_ = db.Close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}
	return a, nil
}

// Build assembles the services on top of existing connections. redisClient
// may be nil, in which case uniqueness locks and the summary cache are held
// in process.
func Build(cfg *config.Config, log *zap.Logger, db *sqlx.DB, redisClient *redis.Client) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: log, DB: db, Redis: redisClient, Metrics: service.NewMetricsService()}

	registry, err := catalog.NewRegistry(cfg.Filter.AssociationCacheSize)
	if err != nil {
		return nil, fmt.Errorf("build filter registry: %w", err)
	}
	builder := filter.NewBuilder(registry, filter.Limits{
		DefaultItems:    cfg.Filter.DefaultItems,
		MaxItems:        cfg.Filter.MaxItems,
		MaxArrayItems:   cfg.Filter.MaxArrayItems,
		MaxStringLength: cfg.Filter.MaxStringLength,
	})
	a.Filters = service.NewFilterService(builder, repository.NewFilterRepository(db), a.Metrics, logger.Component(log, "filter"))

	originals, err := storage.NewLocalStorage(cfg.Harvest.OriginalAudioDir)
	if err != nil {
		return nil, fmt.Errorf("open original audio store: %w", err)
	}

	harvests := repository.NewHarvestRepository(db)
	recordings := repository.NewAudioRecordingRepository(db)
	sites := repository.NewSiteRepository(db, 256, cfg.Harvest.SiteCacheTTL)
	users := repository.NewUserRepository(db)

	reader := harvest.NewAudioFileInfo(cfg.Harvest.FFProbePath, logger.Component(log, "fileinfo"))
	checks := harvest.NewValidator(harvest.ValidationConfig{
		AllowedExtensions:  cfg.Harvest.AllowedExtensions,
		MinDurationSeconds: cfg.Harvest.MinDurationSeconds,
		MaxOverlapSeconds:  cfg.Harvest.MaxOverlapSeconds,
		MaxOverlaps:        cfg.Harvest.MaxOverlaps,
	}, harvests, recordings, sites, users)

	a.Worker = service.NewHarvestWorker(logger.Component(log, "harvest_worker"))
	a.Harvester = harvest.NewHarvester(harvest.HarvesterConfig{
		UploadDir:       cfg.Harvest.UploadDir,
		SidecarFilename: cfg.Harvest.SidecarFilename,
		DeleteAfter:     cfg.Harvest.DeleteAfter,
	}, harvest.HarvesterDeps{
		Items:      harvests,
		Recordings: recordings,
		Reader:     reader,
		Validator:  checks,
		Files:      originals,
		Scheduler:  a.Worker,
		Observer:   a.Metrics,
		Logger:     logger.Component(log, "harvester"),
	})

	var locker jobs.Locker = jobs.NewMemoryLocker()
	if redisClient != nil {
		locker = cache.NewLocker(redisClient, "")
	}
	a.harvestQueue = jobs.NewQueue(harvestQueueName, a.Worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Harvest.WorkerConcurrency,
		MaxRetries: retriesOrDisabled(cfg.Harvest.WorkerRetries),
		LockTTL:    cfg.Harvest.UniquenessTTL,
		Locker:     locker,
		Logger:     logger.Component(log, "queue"),
		OnDepth:    a.Metrics.ObserveQueueDepth,
	})
	a.deleteQueue = jobs.NewQueue(deleteQueueName, a.Worker.HandleDelete, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: deleteMaxRetries,
		RetryDelay: cfg.Harvest.DeleteRetryDelay,
		LockTTL:    cfg.Harvest.DeleteAfter + cfg.Harvest.UniquenessTTL,
		Locker:     locker,
		Logger:     logger.Component(log, "queue"),
		OnDepth:    a.Metrics.ObserveQueueDepth,
	})
	a.Worker.Attach(a.Harvester, a.harvestQueue, a.deleteQueue)

	scanner := harvest.NewScanner(reader, harvest.NewStructValidator(), harvest.ScannerConfig{
		SidecarFilename:   cfg.Harvest.SidecarFilename,
		AllowedExtensions: cfg.Harvest.AllowedExtensions,
		Concurrency:       cfg.Harvest.ScanConcurrency,
	}, logger.Component(log, "scanner"))

	a.harvestRepo, a.scanner = harvests, scanner
	var summaries service.CacheRepository = repository.NewMemoryCacheRepository(cfg.Harvest.SummaryCacheTTL, time.Minute)
	if redisClient != nil {
		summaries = repository.NewCacheRepository(redisClient, repository.DefaultCachePrefix, logger.Component(log, "cache"))
	}
	a.cache = service.NewCacheService(summaries, a.Metrics, cfg.Harvest.SummaryCacheTTL, logger.Component(log, "cache"))
	a.Harvests = service.NewHarvestService(harvests, scanner, a.Harvester, a.Worker, a.cache, cfg.Harvest.SummaryCacheTTL, logger.Component(log, "harvests"))

	return a, nil
}

// InlineHarvests returns a HarvestService that processes items as soon as
// they are queued, in the calling goroutine. The CLI uses it when no
// worker process is running.
func (a *App) InlineHarvests(ctx context.Context) *service.HarvestService {
	inline := service.NewInlineEnqueuer(ctx, a.Harvester, logger.Component(a.Logger, "inline"))
	return service.NewHarvestService(a.harvestRepo, a.scanner, a.Harvester, inline, a.cache, a.Config.Harvest.SummaryCacheTTL, logger.Component(a.Logger, "harvests"))
}

// CleanupOriginals removes the uploaded originals of every completed item
// of a harvest right away and returns how many items were checked.
func (a *App) CleanupOriginals(ctx context.Context, harvestID int64) (int, error) {
	ids, err := a.harvestRepo.ItemIDs(ctx, harvestID, models.HarvestItemStatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("list completed items: %w", err)
	}
	for _, id := range ids {
		if err := a.Harvester.DeleteOriginal(ctx, id); err != nil {
			return 0, fmt.Errorf("delete original of item %d: %w", id, err)
		}
	}
	return len(ids), nil
}

// StartWorkers begins consuming harvest and delete jobs.
func (a *App) StartWorkers(ctx context.Context) {
	a.harvestQueue.Start(ctx)
	a.deleteQueue.Start(ctx)
}

// StopWorkers waits for in-flight jobs to finish. Delayed delete jobs that
// have not fired yet are dropped.
func (a *App) StopWorkers() {
	a.harvestQueue.Stop()
	a.deleteQueue.Stop()
}

// Close releases connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

// retriesOrDisabled maps the configured retry count onto QueueConfig, where
// zero means the default and a negative number disables retries.
func retriesOrDisabled(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}
