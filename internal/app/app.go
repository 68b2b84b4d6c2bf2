package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"qadam_backend/internal/config"
	"qadam_backend/internal/controller"
	"qadam_backend/internal/repository"
	"qadam_backend/internal/service"
	"qadam_backend/pkg/configwatcher"
	"qadam_backend/pkg/database"
	"qadam_backend/pkg/kv"
	"qadam_backend/pkg/logger"
	"qadam_backend/pkg/messaging"
	"qadam_backend/pkg/monitoring"
	"qadam_backend/pkg/security"
	"qadam_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config     *config.Config
	ConfigFile string
	Router     *gin.Engine
	DB         *gorm.DB
	Redis      *redis.Client
	MQ         *messaging.RabbitMQClient

	services        *services
	limiter         *security.Limiter
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user         *repository.UserRepository
	content      *repository.ContentRepository
	attempt      *repository.AttemptRepository
	result       *repository.ResultRepository
	ranking      *repository.RankingRepository
	notification *repository.NotificationRepository
}

type services struct {
	policy       *service.ExamPolicy
	storage      service.StorageProvider
	test         *service.TestService
	attempt      *service.AttemptService
	submission   *service.SubmissionService
	result       *service.ResultService
	ranking      *service.RankingService
	notification *service.NotificationService
}

type controllers struct {
	exam         *controller.ExamController
	result       *controller.ResultController
	ranking      *controller.RankingController
	notification *controller.NotificationController
	health       *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:         repository.NewUserRepository(db),
		content:      repository.NewContentRepository(db),
		attempt:      repository.NewAttemptRepository(db),
		result:       repository.NewResultRepository(db),
		ranking:      repository.NewRankingRepository(db, rdb),
		notification: repository.NewNotificationRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.policy = service.NewExamPolicy(cfg.Exam)
	a.RegisterConfigCallback(func(c *config.Config) {
		s.policy.Update(c.Exam)
		logger.Log.Info("exam policy updated",
			zap.Int("timeBudgetMinutes", c.Exam.TimeBudgetMinutes),
			zap.Float64("achievementThreshold", c.Exam.AchievementThreshold),
			zap.Float64("congratsThreshold", c.Exam.CongratsThreshold))
	})

	storage, err := service.NewStorageProvider(&cfg.Storage)
	if err != nil {
		logger.Log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	s.storage = storage

	var cache kv.Store
	if rdb != nil {
		cache = kv.NewRedisStore(rdb, "qadam")
	}

	// 未启用 RabbitMQ 时通知只入库
	var publisher service.EventPublisher
	if a.MQ != nil {
		publisher = a.MQ
	}
	s.notification = service.NewNotificationService(repos.notification, publisher, cfg.RabbitMQ.NotificationQueue)

	s.test = service.NewTestService(repos.content, cache, s.storage, s.policy)
	s.attempt = service.NewAttemptService(repos.attempt, repos.content, s.policy)
	s.submission = service.NewSubmissionService(repos.content, repos.attempt, repos.result, repos.ranking, s.notification, s.policy)
	s.result = service.NewResultService(repos.result, repos.content, s.storage)
	s.ranking = service.NewRankingService(repos.ranking, repos.user)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		exam:         controller.NewExamController(s.test, s.attempt),
		result:       controller.NewResultController(s.submission, s.result),
		ranking:      controller.NewRankingController(s.ranking),
		notification: controller.NewNotificationController(s.notification),
		health:       controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	a.limiter = security.NewLimiter(cfg.RateLimit.MaxRequests, window)

	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(a.limiter))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(ctx context.Context) {
	go a.limiter.Run(ctx)

	sweep := time.Duration(a.Config.Exam.DraftSweepMinutes) * time.Minute
	go a.services.attempt.RunSweeper(ctx, sweep)

	if a.ConfigFile != "" {
		go func() {
			if err := configwatcher.WatchConfig(ctx, a.ConfigFile, nil, a.applyConfig); err != nil {
				logger.Log.Error("config watcher stopped", zap.Error(err))
			}
		}()
	}
}

// NewApp 初始化依赖；configDir 为配置目录，用于热更新
func NewApp(cfg *config.Config, configDir string) *App {
	logger.InitLogger(logger.Options{Mode: cfg.Server.Mode})
	logger.Log.Info("Logger initialized successfully")

	gin.SetMode(cfg.Server.Mode)

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	if cfg.ForceMigrate || cfg.Server.Mode != "release" {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	app := &App{
		Config:     cfg,
		ConfigFile: filepath.Join(configDir, "config.yaml"),
		DB:         db,
	}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}
	app.Redis = rdb

	if cfg.RabbitMQ.Enabled {
		mq, err := messaging.NewRabbitMQClient(&cfg.RabbitMQ)
		if err != nil {
			logger.Log.Warn("RabbitMQ unavailable, notifications will only be stored", zap.Error(err))
		} else {
			app.MQ = mq
		}
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("qadam-exam", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	repos := app.initRepositories(db, rdb)
	app.services = app.initServices(repos, cfg, rdb)
	controllers := app.initControllers(app.services, db, rdb)

	// 监控初始化
	monitoring.Init()

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app
}

func (a *App) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	a.startBackgroundTasks(ctx)

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	<-ctx.Done()
	logger.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	a.Close(shutdownCtx)
	logger.Log.Info("Server exiting")
}

// Close 释放外部连接
func (a *App) Close(ctx context.Context) {
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.MQ != nil {
		a.MQ.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	logger.Log.Sync()
}

