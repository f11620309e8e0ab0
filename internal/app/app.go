package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"skillset_backend/internal/config"
	"skillset_backend/internal/controller"
	"skillset_backend/internal/repository"
	"skillset_backend/internal/service"
	"skillset_backend/internal/util"
	"skillset_backend/pkg/configwatcher"
	"skillset_backend/pkg/database"
	"skillset_backend/pkg/logger"
	"skillset_backend/pkg/monitoring"
	"skillset_backend/pkg/security"
	"skillset_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 报告补生成的扫描间隔与单批数量
const (
	reportRetryInterval = time.Minute
	reportRetryBatch    = 50
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type services struct {
	settings    *service.Settings
	storage     *service.StorageService
	auth        *service.AuthService
	report      *service.ReportService
	attempt     *service.AttemptService
	progression *service.ProgressionService
	admin       *service.AdminService
}

type controllers struct {
	auth    *controller.AuthController
	student *controller.StudentController
	teacher *controller.TeacherController
	report  *controller.ReportController
	admin   *controller.AdminController
	health  *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initServices(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}
	clock := util.SystemClock{}

	s.settings = service.NewSettings(cfg.Assessment)
	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repository.NewUserRepository(db), cfg)

	renderer := service.NewPDFRenderer(s.storage, s.settings, clock)
	notifier := service.NewMailNotifier(cfg.SMTP)
	s.report = service.NewReportService(db, s.storage, renderer, notifier, s.settings)

	lock := service.NewAttemptLock(rdb, time.Duration(s.settings.Get().StartLockSeconds)*time.Second)
	s.attempt = service.NewAttemptService(db, s.report, lock, s.settings, clock)
	s.progression = service.NewProgressionService(db, s.storage, s.settings, clock)
	s.admin = service.NewAdminService(db, clock)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:    controller.NewAuthController(s.auth),
		student: controller.NewStudentController(s.attempt),
		teacher: controller.NewTeacherController(s.progression),
		report:  controller.NewReportController(s.report),
		admin:   controller.NewAdminController(s.admin),
		health:  controller.NewHealthController(db, a.Redis),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) rateLimit(cfg *config.Config) gin.HandlerFunc {
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	return security.RateLimiter(cfg.RateLimit.MaxRequests, window, security.ByUserOrIP)
}

// startBackgroundTasks 定期补生成提交时失败的报告
func (a *App) startBackgroundTasks(ctx context.Context, s *services) {
	go func() {
		ticker := time.NewTicker(reportRetryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.report.RetryPending(ctx, reportRetryBatch)
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Log.Error("report retry error", zap.Error(err))
				}
				if n > 0 {
					logger.Log.Info("reports regenerated", zap.Int("count", n))
				}
			}
		}
	}()
}

// NewApp 连接数据库与 Redis 并装配全部组件，migrate 为 true 时先执行自动迁移
func NewApp(cfg *config.Config, migrate bool) (*App, error) {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, migrate)
	if err != nil {
		logger.Log.Error("Failed to initialize database", zap.Error(err))
		return nil, err
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Error("Failed to initialize redis", zap.Error(err))
		return nil, err
	}

	app := newApp(cfg, db, rdb)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("skillset-assessment", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Error("Failed to initialize tracing", zap.Error(err))
			return nil, err
		}
		app.tracer = tp
	}

	return app, nil
}

// newApp 装配服务、控制器与路由，不做任何外部连接
func newApp(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *App {
	gin.SetMode(cfg.Server.Mode)

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	s := app.initServices(cfg, db, rdb)
	app.services = s
	c := app.initControllers(s, db)

	app.RegisterConfigCallback(func(newCfg *config.Config) {
		s.settings.Set(newCfg.Assessment)
	})
	app.RegisterConfigCallback(logger.SetLevel)

	// 监控初始化
	monitoring.Init()

	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, c, cfg)

	if cfg.Storage.Type == util.StorageLocal {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app
}

func (a *App) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.Config.ConfigDir != "" {
		if err := configwatcher.Watch(ctx, a.Config.ConfigDir, a.applyConfig); err != nil {
			logger.Log.Warn("Config hot reload disabled", zap.Error(err))
		}
	}
	a.startBackgroundTasks(ctx, a.services)

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("listen", zap.Error(err))
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

	if a.tracer != nil {
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Log.Info("Server exiting")
	_ = logger.Log.Sync()
}

// RetryReports 手动触发一轮报告补生成
func (a *App) RetryReports(ctx context.Context, limit int) (int, error) {
	return a.services.report.RetryPending(ctx, limit)
}
