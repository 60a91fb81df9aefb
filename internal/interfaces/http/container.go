package http

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	accountUsecases "github.com/codedrop-io/codedrop/internal/application/account/usecases"
	"github.com/codedrop-io/codedrop/internal/application/broadcast"
	claimUsecases "github.com/codedrop-io/codedrop/internal/application/claim/usecases"
	"github.com/codedrop-io/codedrop/internal/application/notification"
	"github.com/codedrop-io/codedrop/internal/domain/account"
	"github.com/codedrop-io/codedrop/internal/domain/claim"
	"github.com/codedrop-io/codedrop/internal/domain/code"
	"github.com/codedrop-io/codedrop/internal/domain/shared"
	"github.com/codedrop-io/codedrop/internal/infrastructure/auth"
	"github.com/codedrop-io/codedrop/internal/infrastructure/cache"
	"github.com/codedrop-io/codedrop/internal/infrastructure/config"
	"github.com/codedrop-io/codedrop/internal/infrastructure/pubsub"
	"github.com/codedrop-io/codedrop/internal/infrastructure/ratelimit"
	"github.com/codedrop-io/codedrop/internal/infrastructure/repository"
	"github.com/codedrop-io/codedrop/internal/infrastructure/scheduler"
	"github.com/codedrop-io/codedrop/internal/infrastructure/services"
	telegramInfra "github.com/codedrop-io/codedrop/internal/infrastructure/telegram"
	accountHandlers "github.com/codedrop-io/codedrop/internal/interfaces/http/handlers/accounts"
	adminHandlers "github.com/codedrop-io/codedrop/internal/interfaces/http/handlers/admin"
	codeHandlers "github.com/codedrop-io/codedrop/internal/interfaces/http/handlers/codes"
	ingestHandlers "github.com/codedrop-io/codedrop/internal/interfaces/http/handlers/ingest"
	liveHandlers "github.com/codedrop-io/codedrop/internal/interfaces/http/handlers/live"
	"github.com/codedrop-io/codedrop/internal/interfaces/http/middleware"
	"github.com/codedrop-io/codedrop/internal/shared/goroutine"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

// Container holds all infrastructure components, use cases, handlers and
// background services. It wires everything together and owns their
// shutdown.
type Container struct {
	// Core infrastructure
	engine *gin.Engine
	db     *gorm.DB
	cfg    *config.Config
	log    logger.Interface
	redis  *redis.Client
	clock  shared.Clock
	launch goroutine.Launcher

	// Core state
	codeCache   *cache.CodeCache
	hub         *services.CodeHub
	coordinator *claim.Coordinator
	turbo       *broadcast.TurboSwitch
	broadcaster *broadcast.Broadcaster
	directory   *cache.CachedDirectory
	accountRepo account.Repository
	dispatcher  *notification.Dispatcher

	// Auth
	accountTokens *auth.AccountTokenService
	feedTokens    *auth.FeedTokenService

	// Use cases
	resolveProfileUC *accountUsecases.ResolveProfileUseCase
	heartbeatUC      *accountUsecases.RecordHeartbeatUseCase
	connectUC        *accountUsecases.ConnectAccountUseCase
	syncNotifyUC     *accountUsecases.SyncNotificationsUseCase
	reportClaimUC    *claimUsecases.ReportClaimResultUseCase

	// Handlers
	codeHandler           *codeHandlers.Handler
	accountHandler        *accountHandlers.Handler
	adminCodeHandler      *adminHandlers.CodeHandler
	adminRateLimitHandler *adminHandlers.RateLimitHandler
	ingestHandler         *ingestHandlers.Handler
	liveHandler           *liveHandlers.Handler

	// Middlewares
	authMiddleware      *middleware.AuthMiddleware
	feedTokenMiddleware *middleware.FeedTokenMiddleware
	rateLimiter         *middleware.RateLimitMiddleware

	// Background services
	schedulerManager *scheduler.SchedulerManager
	ingestBus        *pubsub.RedisIngestBus
	busCancel        context.CancelFunc
	busWG            sync.WaitGroup

	shutdownOnce sync.Once
}

// NewContainer creates a new Container with all dependencies wired together.
// redisClient may be nil, in which case rate limiting, presence cooldowns and
// the ingestion bus are disabled.
func NewContainer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, log logger.Interface) (*Container, error) {
	c := &Container{
		engine: gin.New(),
		db:     db,
		cfg:    cfg,
		log:    log,
		redis:  redisClient,
		clock:  shared.SystemClock,
		launch: goroutine.NewLauncher(log),
	}

	// Section 1: Accounts - directory, profile and heartbeat use cases
	if err := c.initAccounts(); err != nil {
		return nil, err
	}

	// Section 2: Core - cache, registry, coordinator, notifications, broadcaster
	c.initCore()

	// Section 3: Auth & rate limiting
	c.initAuth()

	// Section 4: Handlers
	c.initHandlers()

	// Section 5: Scheduler jobs and the ingestion bus
	if err := c.initBackground(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Container) initAccounts() error {
	repo := repository.NewAccountRepository(c.db, c.log.Named("accounts"))
	dir, err := cache.NewCachedDirectory(repo, c.cfg.Directory.CacheSize, c.cfg.Directory.CacheTTL, c.clock)
	if err != nil {
		return fmt.Errorf("failed to create account directory cache: %w", err)
	}
	c.directory = dir
	c.accountRepo = repo
	c.resolveProfileUC = accountUsecases.NewResolveProfileUseCase(dir, c.log)
	return nil
}

func (c *Container) initCore() {
	c.codeCache = cache.NewCodeCache(c.cfg.Cache.Retention, c.cfg.Cache.MaxEntries, c.clock)
	c.coordinator = claim.NewCoordinator(c.cfg.Claim.LockTTL, c.clock)
	c.hub = services.NewCodeHub(services.CodeHubConfig{
		HeartbeatTimeout: c.cfg.Registry.HeartbeatTimeout,
		GracePeriod:      c.cfg.Registry.GracePeriod,
	}, c.clock, c.log.Named("hub"))

	var notifier telegramInfra.Notifier = telegramInfra.NopNotifier{}
	if c.cfg.Telegram.Enabled && c.cfg.Telegram.BotToken != "" {
		bot := telegramInfra.NewBotService(c.cfg.Telegram)
		notifier = telegramInfra.NewBotNotifier(bot, c.log.Named("telegram"))
		c.log.Infow("telegram notifications enabled", "admin_chat_id", c.cfg.Telegram.AdminChatID)
	} else {
		c.log.Infow("telegram notifications disabled")
	}

	var cooldown notification.PresenceCooldown
	if c.redis != nil {
		cooldown = cache.NewNotifyCooldown(c.redis, cache.DefaultNotifyCooldown)
	}
	c.dispatcher = notification.NewDispatcher(notification.Config{
		Enabled:     c.cfg.Telegram.Enabled,
		AdminChatID: c.cfg.Telegram.AdminChatID,
	}, notifier, cooldown, c.launch, c.log.Named("notification"))

	c.hub.SetOnOnline(func(conn services.Connection) {
		c.dispatcher.NotifyPresence(conn.Profile, true, c.hub.OnlineCount())
	})
	c.hub.SetOnOffline(func(conn services.Connection) {
		c.dispatcher.NotifyPresence(conn.Profile, false, c.hub.OnlineCount())
	})

	c.turbo = broadcast.NewTurboSwitch(c.cfg.Turbo.Enabled, c.cfg.Turbo.TurboInterval, c.cfg.Turbo.NormalInterval)
	c.broadcaster = broadcast.NewBroadcaster(
		c.codeCache,
		c.hub,
		c.dispatcher,
		c.turbo,
		c.clock,
		c.launch,
		c.log.Named("broadcast"),
	)

	c.heartbeatUC = accountUsecases.NewRecordHeartbeatUseCase(c.hub, c.resolveProfileUC, c.log)
	c.reportClaimUC = claimUsecases.NewReportClaimResultUseCase(c.coordinator, c.resolveProfileUC, c.dispatcher, c.log)
}

func (c *Container) initAuth() {
	c.accountTokens = auth.NewAccountTokenService(c.cfg.Auth.JWTSecret, c.cfg.Auth.TokenTTL(), c.clock)
	c.feedTokens = auth.NewFeedTokenService(c.cfg.Ingest.FeedSecret)
	c.authMiddleware = middleware.NewAuthMiddleware(c.accountTokens, c.log)
	c.feedTokenMiddleware = middleware.NewFeedTokenMiddleware(c.feedTokens, c.log)
	c.connectUC = accountUsecases.NewConnectAccountUseCase(c.directory, c.accountTokens, c.log)
	c.syncNotifyUC = accountUsecases.NewSyncNotificationsUseCase(c.accountRepo, c.directory, c.hub, c.clock, c.log)

	if c.cfg.RateLimit.Enabled && c.redis != nil {
		c.rateLimiter = middleware.NewRateLimitMiddleware(ratelimit.NewRedisRateLimiter(c.redis), c.log)
	} else {
		c.log.Warnw("rate limiting disabled")
	}
}

func (c *Container) initHandlers() {
	c.codeHandler = codeHandlers.NewHandler(c.broadcaster, c.heartbeatUC, c.reportClaimUC, c.log.Named("codes"))
	c.accountHandler = accountHandlers.NewHandler(c.connectUC, c.syncNotifyUC, c.log.Named("accounts"))
	c.adminCodeHandler = adminHandlers.NewCodeHandler(c.broadcaster, c.hub, c.clock, c.log.Named("admin"))
	c.adminRateLimitHandler = adminHandlers.NewRateLimitHandler(c.rateLimiter, c.log.Named("admin"))
	c.ingestHandler = ingestHandlers.NewHandler(c.broadcaster, c.log.Named("ingest"))
	c.liveHandler = liveHandlers.NewHandler(
		liveHandlers.Config{
			AllowedOrigins: c.cfg.Server.AllowedOrigins,
			SendQueueSize:  c.cfg.Live.SendQueueSize,
			AuthTimeout:    c.cfg.Live.AuthTimeout,
			WriteWait:      c.cfg.Live.WriteWait,
			PongWait:       c.cfg.Live.PongWait,
			PingPeriod:     c.cfg.Live.PingPeriod,
			MaxMessageSize: c.cfg.Live.MaxMessageSize,
		},
		c.accountTokens,
		c.resolveProfileUC,
		c.hub,
		c.broadcaster,
		c.reportClaimUC,
		c.clock,
		c.log.Named("live"),
	)
}

func (c *Container) initBackground() error {
	sm, err := scheduler.NewSchedulerManager(c.log.Named("scheduler"))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	c.schedulerManager = sm

	jobs := []struct {
		name     string
		register func(scheduler.BatchJob, time.Duration) error
		job      scheduler.BatchJobFunc
		interval time.Duration
	}{
		{"cache eviction", sm.RegisterCacheEviction, func(context.Context) (int, error) {
			return c.codeCache.Evict(), nil
		}, c.cfg.Cache.EvictInterval},
		{"registry sweep", sm.RegisterRegistrySweep, func(context.Context) (int, error) {
			return len(c.hub.Sweep()), nil
		}, c.cfg.Registry.SweepInterval},
		{"session health check", sm.RegisterSessionHealthCheck, func(context.Context) (int, error) {
			return c.hub.HealthSweep(), nil
		}, c.cfg.Live.HealthSweepInterval},
		{"claim lock sweep", sm.RegisterClaimLockSweep, func(context.Context) (int, error) {
			return c.coordinator.SweepExpiredLocks(), nil
		}, c.cfg.Claim.LockSweepInterval},
	}
	for _, j := range jobs {
		if err := j.register(j.job, j.interval); err != nil {
			return fmt.Errorf("failed to register %s job: %w", j.name, err)
		}
	}

	if c.cfg.Ingest.RedisBusEnabled && c.redis != nil {
		c.ingestBus = pubsub.NewRedisIngestBus(c.redis, c.log.Named("ingest-bus"))
	}
	return nil
}

// Start launches the scheduler and the ingestion bus subscriber.
func (c *Container) Start(ctx context.Context) {
	c.schedulerManager.Start()

	if c.ingestBus == nil {
		return
	}
	busCtx, cancel := context.WithCancel(ctx)
	c.busCancel = cancel
	c.busWG.Add(1)
	goroutine.SafeGo(c.log, "ingest-bus-subscriber", func() {
		defer c.busWG.Done()
		err := c.ingestBus.SubscribeFeedMessages(busCtx, func(ctx context.Context, event pubsub.FeedMessageEvent) {
			result, err := c.broadcaster.Ingest(ctx, event.Text, code.SourceIngest)
			if err != nil {
				c.log.Errorw("failed to ingest feed message", "message_id", event.MessageID, "source", event.Source, "error", err)
				return
			}
			if result.Accepted {
				c.log.Infow("code ingested from feed",
					"code", result.Code.Token,
					"feed_source", event.Source,
					"delivered", result.Fanout.Delivered,
				)
			}
		})
		if err != nil && busCtx.Err() == nil {
			c.log.Errorw("ingest bus subscriber stopped", "error", err)
		}
	})
}

// Shutdown stops background services and closes every live session.
func (c *Container) Shutdown() {
	c.shutdownOnce.Do(func() {
		if c.busCancel != nil {
			c.busCancel()
			c.busWG.Wait()
		}
		if c.schedulerManager != nil {
			if err := c.schedulerManager.Stop(); err != nil {
				c.log.Warnw("failed to stop scheduler", "error", err)
			}
		}
		for _, ls := range c.hub.LiveSessions() {
			ls.Session.Close()
		}
		c.log.Infow("container shut down")
	})
}
