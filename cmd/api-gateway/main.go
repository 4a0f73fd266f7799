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

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/olympiad-registration-api/api/swagger"
	"github.com/noah-isme/olympiad-registration-api/internal/eligibility"
	"github.com/noah-isme/olympiad-registration-api/internal/handler"
	"github.com/noah-isme/olympiad-registration-api/internal/middleware"
	"github.com/noah-isme/olympiad-registration-api/internal/models"
	"github.com/noah-isme/olympiad-registration-api/internal/reconcile"
	"github.com/noah-isme/olympiad-registration-api/internal/registration"
	"github.com/noah-isme/olympiad-registration-api/internal/repository"
	"github.com/noah-isme/olympiad-registration-api/internal/service"
	"github.com/noah-isme/olympiad-registration-api/pkg/cache"
	"github.com/noah-isme/olympiad-registration-api/pkg/config"
	"github.com/noah-isme/olympiad-registration-api/pkg/database"
	"github.com/noah-isme/olympiad-registration-api/pkg/jobs"
	"github.com/noah-isme/olympiad-registration-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/olympiad-registration-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/olympiad-registration-api/pkg/middleware/requestid"
)

// @title Olympiad Registration API
// @version 1.0.0
// @description Student registration for academic olympiad calls: area selection, payment orders and record reconciliation.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type handlers struct {
	auth           *handler.AuthHandler
	calls          *handler.CallHandler
	schools        *handler.SchoolHandler
	students       *handler.StudentHandler
	registrations  *handler.RegistrationHandler
	reconciliation *handler.ReconciliationHandler
	exports        *handler.ExportHandler
	users          *handler.UserHandler
	metrics        *handler.MetricsHandler
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		migrator, err := database.NewMigrator(db.DB, cfg.Database.MigrationsDir, logr)
		if err != nil {
			return err
		}
		if err := migrator.Up(ctx); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, call cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	table, err := eligibility.LoadTable(cfg.Registration.EligibilityTablePath)
	if err != nil {
		return err
	}
	checker := eligibility.NewChecker(table)
	policy := registration.OrderPolicy{
		IndividualTTL: cfg.Registration.IndividualOrderTTL,
		GroupTTL:      cfg.Registration.GroupOrderTTL,
	}

	callRepo := repository.NewCallRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	schoolRepo := repository.NewSchoolRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := service.NewValidator()
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.CallTTL, logr, cfg.Cache.Enabled && redisClient != nil)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	callSvc := service.NewCallService(callRepo, cacheSvc, checker, validate, logr)
	schoolSvc := service.NewSchoolService(schoolRepo, validate)
	studentSvc := service.NewStudentService(studentRepo, schoolRepo, validate, logr)
	registrationSvc := service.NewRegistrationService(registrationRepo, studentRepo, callSvc, checker, policy, metricsSvc, validate, logr)
	reconciler := reconcile.New(reconcile.Options{Orders: policy, Logger: logr})
	reconcileSvc := service.NewReconciliationService(registrationRepo, callRepo, reconciler, cfg.Registration.DefaultCallID, metricsSvc, logr)
	exportSvc := service.NewExportService(registrationRepo, studentRepo, schoolRepo, validate, logr)
	userSvc := service.NewUserService(userRepo, studentRepo, validate, logr)

	queue := jobs.NewQueue("reconciliation", reconcileSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Reconciliation.Workers,
		MaxRetries: cfg.Reconciliation.Retries,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()
	reconcileSvc.AttachQueue(queue)

	if cfg.Reconciliation.OnStartup {
		if _, err := queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: service.JobTypeReconcile, Key: service.JobTypeReconcile}); err != nil {
			logr.Warn("failed to queue startup reconciliation", zap.Error(err))
		}
	}

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = cacheRepo.Ping
	}

	router := newRouter(cfg, logr, metricsSvc, authSvc, handlers{
		auth:           handler.NewAuthHandler(authSvc),
		calls:          handler.NewCallHandler(callSvc),
		schools:        handler.NewSchoolHandler(schoolSvc),
		students:       handler.NewStudentHandler(studentSvc),
		registrations:  handler.NewRegistrationHandler(registrationSvc),
		reconciliation: handler.NewReconciliationHandler(reconcileSvc),
		exports:        handler.NewExportHandler(exportSvc),
		users:          handler.NewUserHandler(userSvc),
		metrics:        handler.NewMetricsHandler(metricsSvc, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logr.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newRouter(cfg *config.Config, logr *zap.Logger, metricsSvc *service.MetricsService, authSvc *service.AuthService, h handlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", h.auth.Login)

	api.GET("/calls", h.calls.List)
	api.GET("/calls/:id", h.calls.Get)
	api.GET("/calls/:id/eligible-areas", h.calls.EligibleAreas)
	api.GET("/schools", h.schools.List)

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))

	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTutor)

	secured.POST("/calls", admin, h.calls.Create)
	secured.PUT("/calls/:id", admin, h.calls.Update)
	secured.PUT("/calls/:id/areas", admin, h.calls.ReplaceAreas)
	secured.POST("/schools", admin, h.schools.Create)

	secured.GET("/students", h.students.List)
	secured.GET("/students/:id", h.students.Get)
	secured.POST("/students", staff, h.students.Create)

	secured.POST("/registrations/quote", h.registrations.Quote)
	secured.POST("/registrations", h.registrations.Submit)
	secured.GET("/registrations/:id", h.registrations.Get)
	secured.DELETE("/registrations/:id", h.registrations.Cancel)
	secured.PUT("/registrations/:id/payment", admin, h.registrations.UpdatePayment)

	secured.POST("/admin/reconciliations", admin, h.reconciliation.Run)
	secured.GET("/admin/reconciliations/latest", admin, h.reconciliation.Latest)
	secured.GET("/admin/registrations/export", admin, h.exports.Registrations)
	secured.POST("/users", admin, h.users.Create)
	secured.GET("/users/:id", admin, h.users.Get)

	return r
}
