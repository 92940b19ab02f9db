package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/casebeam/caseload-api/api/swagger"
	"github.com/casebeam/caseload-api/internal/handler"
	"github.com/casebeam/caseload-api/internal/middleware"
	"github.com/casebeam/caseload-api/internal/models"
	"github.com/casebeam/caseload-api/internal/repository"
	"github.com/casebeam/caseload-api/internal/scheduling"
	"github.com/casebeam/caseload-api/internal/service"
	"github.com/casebeam/caseload-api/pkg/cache"
	"github.com/casebeam/caseload-api/pkg/config"
	"github.com/casebeam/caseload-api/pkg/database"
	"github.com/casebeam/caseload-api/pkg/jobs"
	"github.com/casebeam/caseload-api/pkg/logger"
	corsmiddleware "github.com/casebeam/caseload-api/pkg/middleware/cors"
	reqidmiddleware "github.com/casebeam/caseload-api/pkg/middleware/requestid"
)

// @title Caseload API
// @version 1.0.0
// @description Scheduling and caseload management for special-education service providers
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var cacheRepo service.CacheRepository
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	} else {
		repo := repository.NewCacheRepository(redisClient, logr)
		defer repo.Close()
		cacheRepo = repo
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	bellRepo := repository.NewBellScheduleRepository(db)
	activityRepo := repository.NewSpecialActivityRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	schoolRepo := repository.NewSchoolRepository(db)
	schedulingStore := repository.NewSchedulingStore(db)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.DefaultTTL, logr, cfg.Cache.Enabled)

	authSvc := service.NewAuthService(userRepo, studentRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "caseload-api",
	})
	userSvc := service.NewUserService(userRepo, studentRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	bellSvc := service.NewBellScheduleService(bellRepo, validate, logr)
	activitySvc := service.NewSpecialActivityService(activityRepo, validate, logr)
	availabilitySvc := service.NewAvailabilityService(availabilityRepo, validate, logr)
	schoolSvc := service.NewSchoolService(schoolRepo, validate, logr)

	distCfg := scheduling.DistributionConfig{
		Strategy:             scheduling.Strategy(cfg.Scheduling.Strategy),
		MaxSessionsPerSlot:   cfg.Scheduling.MaxSessionsPerSlot,
		MaxSessionsPerDay:    cfg.Scheduling.MaxSessionsPerDay,
		SlotIncrementMinutes: cfg.Scheduling.SlotIncrementMinutes,
		GradeGroupingEnabled: cfg.Scheduling.GradeGrouping,
		TwoPassEnabled:       cfg.Scheduling.TwoPass,
		FirstPassLimit:       cfg.Scheduling.FirstPassLimit,
		SecondPassLimit:      cfg.Scheduling.SecondPassLimit,
		MinBreakMinutes:      cfg.Scheduling.MinBreakMinutes,
		MaxConsecutiveMin:    cfg.Scheduling.MaxConsecutiveMin,
	}
	managerCfg := scheduling.DataManagerConfig{
		RetryAttempts: cfg.Scheduling.RetryAttempts,
		RetryDelay:    cfg.Scheduling.RetryDelay,
	}

	instanceSvc := service.NewInstanceService(sessionRepo, metricsSvc, logr)

	queue := jobs.NewQueue("instance-generation", func(ctx context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(service.InstanceGenerationPayload)
		if !ok {
			logr.Warn("dropping job with unexpected payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
			return nil
		}
		weeks := payload.WeeksAhead
		if weeks <= 0 {
			weeks = cfg.Instances.WeeksAhead
		}
		results := instanceSvc.GenerateForTemplates(ctx, payload.TemplateIDs, weeks)
		for _, result := range results {
			if result.Error != "" {
				logr.Warn("instance generation failed for template",
					zap.String("template_id", result.TemplateID),
					zap.String("error", result.Error))
			}
		}
		return nil
	}, jobs.QueueConfig{
		Workers:    cfg.Instances.QueueWorkers,
		BufferSize: cfg.Instances.QueueBufferSize,
		MaxRetries: cfg.Instances.QueueRetries,
		RetryDelay: cfg.Instances.QueueRetryDelay,
		Logger:     logr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	queue.Start(ctx)
	defer queue.Stop()

	schedulingSvc := service.NewSchedulingService(studentRepo, sessionRepo, schedulingStore, cacheSvc, metricsSvc, queue, distCfg, managerCfg, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, studentRepo, schedulingStore, cacheSvc, metricsSvc, distCfg, managerCfg, cfg.Cache.WeekTTL, validate, logr)
	exportSvc := service.NewExportService(studentRepo, sessionRepo, nil, nil, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), routeDeps{
		auth:         handler.NewAuthHandler(authSvc),
		users:        handler.NewUserHandler(userSvc),
		students:     handler.NewStudentHandler(studentSvc),
		sessions:     handler.NewSessionHandler(sessionSvc),
		schedule:     handler.NewScheduleHandler(schedulingSvc),
		instances:    handler.NewInstanceHandler(instanceSvc),
		bells:        handler.NewBellScheduleHandler(bellSvc),
		activities:   handler.NewSpecialActivityHandler(activitySvc),
		availability: handler.NewAvailabilityHandler(availabilitySvc),
		schools:      handler.NewSchoolHandler(schoolSvc),
		exports:      handler.NewExportHandler(exportSvc),
		metrics:      metricsHandler,
		authSvc:      authSvc,
		userRepo:     userRepo,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("forced shutdown", zap.Error(err))
	}
}

type routeDeps struct {
	auth         *handler.AuthHandler
	users        *handler.UserHandler
	students     *handler.StudentHandler
	sessions     *handler.SessionHandler
	schedule     *handler.ScheduleHandler
	instances    *handler.InstanceHandler
	bells        *handler.BellScheduleHandler
	activities   *handler.SpecialActivityHandler
	availability *handler.AvailabilityHandler
	schools      *handler.SchoolHandler
	exports      *handler.ExportHandler
	metrics      *handler.MetricsHandler
	authSvc      *service.AuthService
	userRepo     *repository.UserRepository
}

func registerRoutes(api *gin.RouterGroup, deps routeDeps) {
	api.POST("/auth/login", deps.auth.Login)
	api.POST("/auth/refresh", deps.auth.Refresh)
	api.POST("/auth/forgot-password", deps.auth.ForgotPassword)
	api.POST("/auth/reset-password", deps.auth.ResetPassword)

	authed := api.Group("")
	authed.Use(middleware.JWT(deps.authSvc))

	authed.POST("/auth/logout", deps.auth.Logout)
	authed.GET("/auth/me", deps.auth.Me)
	authed.POST("/auth/change-password", deps.auth.ChangePassword)

	providers := append([]models.UserRole{models.RoleAdmin}, models.ProviderRoles...)
	everyone := append(append([]models.UserRole{}, providers...), models.RoleSEA)

	users := authed.Group("/users")
	users.GET("", middleware.RequireRoles(models.RoleAdmin), deps.users.List)
	users.POST("", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(deps.userRepo, models.AuditActionUserCreate, "users"), deps.users.Create)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), deps.users.Get)
	users.PUT("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), middleware.Audit(deps.userRepo, models.AuditActionUserUpdate, "users"), deps.users.Update)
	users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(deps.userRepo, models.AuditActionUserDelete, "users"), deps.users.Delete)

	students := authed.Group("/students")
	students.GET("", middleware.RequireRoles(everyone...), deps.students.List)
	students.GET("/:id", middleware.RequireRoles(everyone...), deps.students.Get)
	students.POST("", middleware.RequireRoles(providers...), deps.students.Create)
	students.PUT("/:id", middleware.RequireRoles(providers...), deps.students.Update)
	students.DELETE("/:id", middleware.RequireRoles(providers...), deps.students.Delete)

	sessions := authed.Group("/sessions")
	sessions.GET("", middleware.RequireRoles(everyone...), deps.sessions.List)
	sessions.GET("/week", middleware.RequireRoles(everyone...), deps.sessions.Week)
	sessions.GET("/:id", middleware.RequireRoles(everyone...), deps.sessions.Get)
	sessions.POST("", middleware.RequireRoles(providers...), deps.sessions.Create)
	sessions.PUT("/:id/move", middleware.RequireRoles(providers...), deps.sessions.Move)
	sessions.PUT("/:id/status", middleware.RequireRoles(everyone...), deps.sessions.UpdateStatus)
	sessions.DELETE("/:id", middleware.RequireRoles(providers...), deps.sessions.Delete)

	schedule := authed.Group("/schedule", middleware.RequireRoles(providers...))
	schedule.POST("/distribute", deps.schedule.Distribute)
	schedule.POST("/distribute-batch", deps.schedule.DistributeBatch)
	schedule.POST("/validate", deps.schedule.ValidatePlacement)

	authed.POST("/instances/generate", middleware.RequireRoles(providers...), deps.instances.Generate)

	bells := authed.Group("/bell-schedules")
	bells.GET("", middleware.RequireRoles(everyone...), deps.bells.List)
	bells.POST("", middleware.RequireRoles(providers...), deps.bells.Create)
	bells.PUT("/:id", middleware.RequireRoles(providers...), deps.bells.Update)
	bells.DELETE("/:id", middleware.RequireRoles(providers...), deps.bells.Delete)

	activities := authed.Group("/special-activities")
	activities.GET("", middleware.RequireRoles(everyone...), deps.activities.List)
	activities.POST("", middleware.RequireRoles(providers...), deps.activities.Create)
	activities.PUT("/:id", middleware.RequireRoles(providers...), deps.activities.Update)
	activities.DELETE("/:id", middleware.RequireRoles(providers...), deps.activities.Delete)

	availability := authed.Group("/availability", middleware.RequireRoles(providers...))
	availability.GET("", deps.availability.List)
	availability.PUT("", deps.availability.Set)

	schools := authed.Group("/schools")
	schools.GET("", middleware.RequireRoles(everyone...), deps.schools.List)
	schools.GET("/hours", middleware.RequireRoles(everyone...), deps.schools.Hours)
	schools.PUT("/hours", middleware.RequireRoles(models.RoleAdmin), deps.schools.SetHours)
	schools.GET("/:id", middleware.RequireRoles(everyone...), deps.schools.Get)
	schools.POST("", middleware.RequireRoles(models.RoleAdmin), deps.schools.Create)

	exports := authed.Group("/exports", middleware.RequireRoles(providers...))
	exports.GET("/caseload", deps.exports.CaseloadCSV)
	exports.GET("/week", deps.exports.WeekPDF)

	admin := authed.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/instances/generate-all", deps.instances.GenerateAll)
	admin.GET("/metrics", deps.metrics.Snapshot)
}
