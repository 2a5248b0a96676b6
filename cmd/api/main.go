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

	"dashboard-api/internal/config"
	"dashboard-api/internal/database"
	"dashboard-api/internal/domain"
	"dashboard-api/internal/handler"
	"dashboard-api/internal/logger"
	"dashboard-api/internal/middleware"
	"dashboard-api/internal/security"
	"dashboard-api/internal/service"
	"dashboard-api/internal/storage"
)

// dataLayer agrupa os colaboradores de dados e o encerramento
type dataLayer struct {
	data     domain.DataService
	activity domain.ActivityService
	close    func()
}

func main() {
	// Carregar configurações
	configLoader := config.NewConfigLoader()
	cfg, err := configLoader.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Inicializar logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)

	policies, err := config.BuildPolicies(cfg, logger.WithComponent(appLogger, "config"))
	if err != nil {
		appLogger.Error("Failed to build security policies", err, nil)
		os.Exit(1)
	}

	appLogger.Info("Starting Dashboard API", map[string]interface{}{
		"version":     "1.0.0",
		"log_level":   cfg.LogLevel,
		"port":        cfg.ServerPort,
		"environment": cfg.Environment,
		"https_only":  cfg.HTTPSOnly,
	})
	if sl, ok := appLogger.(*logger.StructuredLogger); ok {
		sl.LogConfigEvent("policies_loaded", map[string]interface{}{
			"presets_file":  cfg.SecurityConfigFile,
			"user_origins":  policies.User.AllowedOrigins.Len(),
			"admin_origins": policies.Admin.AllowedOrigins.Len(),
			"trusted_proxy": len(cfg.TrustedProxies),
		})
	}

	// Inicializar storage do rate limit
	backend, err := storage.ParseBackend(cfg.StorageType)
	if err != nil {
		appLogger.Error("Invalid STORAGE_TYPE", err, nil)
		os.Exit(1)
	}
	rateLimiterStorage, err := storage.Open(storage.Deployment{
		Backend:  backend,
		Replicas: cfg.APIReplicas,
		Redis: storage.RedisSettings{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
	}, logger.WithComponent(appLogger, "storage"))
	if err != nil {
		appLogger.Error("Failed to create rate limit storage", err, nil)
		os.Exit(1)
	}
	defer rateLimiterStorage.Close()

	rateLimiterService := service.NewRateLimiterService(rateLimiterStorage, logger.WithComponent(appLogger, "rate_limiter"))
	rateLimiterService.TrackPolicies(policies)

	// Inicializar verificação de identidade
	resolver, err := security.NewJWTResolver(security.JWTConfig{
		Secret:       cfg.JWTSecret,
		PublicKeyPEM: cfg.JWTPublicKey,
		Issuer:       cfg.JWTIssuer,
		Audience:     cfg.JWTAudience,
		Leeway:       30 * time.Second,
	}, security.NewStaticAdminDirectory(cfg.AdminUserIDs), logger.WithComponent(appLogger, "identity"))
	if err != nil {
		appLogger.Error("Failed to create identity resolver", err, nil)
		os.Exit(1)
	}

	proxyTrust, err := security.NewProxyTrust(cfg.TrustedProxies)
	if err != nil {
		appLogger.Error("Invalid TRUSTED_PROXIES", err, nil)
		os.Exit(1)
	}

	guard := middleware.NewGuard(rateLimiterService, resolver, proxyTrust, logger.WithComponent(appLogger, "guard"),
		middleware.WithHTTPSRedirect(redirectHost(cfg)),
	)

	// Inicializar camada de dados
	layer, err := newDataLayer(context.Background(), cfg, logger.WithComponent(appLogger, "database"))
	if err != nil {
		appLogger.Error("Failed to initialize data layer", err, nil)
		os.Exit(1)
	}
	defer layer.close()

	handlers := handler.NewHandlers(handler.Dependencies{
		Guard:         guard,
		Data:          layer.data,
		Activity:      layer.activity,
		Limiter:       rateLimiterService,
		LimiterHealth: rateLimiterService,
		Policies:      policies,
		Environment:   cfg.Environment,
		Logger:        logger.WithComponent(appLogger, "handler"),
	})

	// Configurar Gin
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router, err := newRouter(handlers, proxyTrust, appLogger)
	if err != nil {
		appLogger.Error("Failed to configure routes", err, nil)
		os.Exit(1)
	}

	// Configurar servidor HTTP
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Iniciar servidor em goroutine
	go func() {
		appLogger.Info("Starting HTTP server", map[string]interface{}{
			"port": cfg.ServerPort,
			"addr": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Failed to start server", err, nil)
			os.Exit(1)
		}
	}()

	// Aguardar sinais de interrupção
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	appLogger.Info("Dashboard API is running", map[string]interface{}{
		"port":     cfg.ServerPort,
		"storage":  cfg.StorageType,
		"replicas": cfg.APIReplicas,
		"database": cfg.DatabaseDriver,
		"rate_limits": map[string]interface{}{
			"user":     cfg.UserRateLimit,
			"user_ip":  cfg.UserIPRateLimit,
			"admin":    cfg.AdminRateLimit,
			"admin_ip": cfg.AdminIPRateLimit,
			"window":   cfg.RateWindow,
		},
	})

	// Bloquear até receber sinal
	<-quit
	appLogger.Info("Shutting down server...", nil)

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", err, nil)
		return
	}

	appLogger.Info("Server stopped gracefully", nil)
}

// redirectHost retorna o host canônico quando o redirect HTTPS está ativo
func redirectHost(cfg *config.Config) string {
	if !cfg.HTTPSRedirect {
		return ""
	}
	return cfg.HTTPSRedirectHost
}

// newRouter cria o engine com recovery JSON, log de acesso e proxies confiáveis
func newRouter(handlers *handler.Handlers, proxyTrust *security.ProxyTrust, appLogger domain.Logger) (*gin.Engine, error) {
	router := gin.New()

	// gin confia em todos os proxies por padrão
	if err := router.SetTrustedProxies(proxyTrust.Proxies()); err != nil {
		return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
	}

	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		appLogger.Error("Recovered from panic", fmt.Errorf("%v", recovered), map[string]interface{}{
			"path": c.Request.URL.Path,
		})
		middleware.WriteError(c, domain.NewInternalFaultError())
	}))

	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		requestID, _ := param.Keys[middleware.ContextKeyRequestID].(string)
		return fmt.Sprintf("[%s] \"%s %s %s %d %s \"%s\" %s\" request_id=%s\n",
			param.TimeStamp.Format("2006/01/02 - 15:04:05"),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
			requestID,
		)
	}))

	if err := handlers.SetupRoutes(router); err != nil {
		return nil, err
	}
	return router, nil
}

// newDataLayer escolhe o store conforme DATABASE_DRIVER
func newDataLayer(ctx context.Context, cfg *config.Config, appLogger domain.Logger) (*dataLayer, error) {
	if cfg.DatabaseDriver != config.DatabasePostgres {
		appLogger.Warn("Using in-memory data store with development dataset", nil)
		store := database.NewMemoryStore()
		return &dataLayer{data: store, activity: store, close: func() {}}, nil
	}

	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, appLogger)
	if err != nil {
		return nil, err
	}
	store := database.NewPostgresStore(pool, appLogger)

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	if cfg.DatabaseSeed {
		subreddits, opportunities := database.DefaultDataset(time.Now())
		if err := store.Seed(ctx, subreddits, opportunities); err != nil {
			store.Close()
			return nil, err
		}
		appLogger.Info("Development dataset seeded", nil)
	}

	appLogger.Info("Using PostgreSQL data store", nil)
	return &dataLayer{data: store, activity: store, close: store.Close}, nil
}
