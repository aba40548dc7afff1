package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"github.com/practiceperfect/api/internal/auth"
	"github.com/practiceperfect/api/internal/config"
	"github.com/practiceperfect/api/internal/database"
	"github.com/practiceperfect/api/internal/email"
	httpServer "github.com/practiceperfect/api/internal/http"
	"github.com/practiceperfect/api/internal/logging"
	"github.com/practiceperfect/api/internal/ratelimit"
	"github.com/practiceperfect/api/internal/user"
)

// How often expired login tokens are swept. Consume queries never match
// expired rows, so the sweep is housekeeping, not a security boundary.
const loginTokenSweepInterval = time.Hour

// @title           Practice Perfect API
// @version         1.0
// @description     Passwordless authentication API for the Practice Perfect app: magic-link and one-time-code login with cookie sessions.

// @contact.name   API Support
// @contact.email  support@practiceperfect.app

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
	)

	db, err := initDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	redisClient, err := initRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisClient.Close()

	// Initialize repositories
	userRepo := user.NewRepository(db)
	loginTokenRepo := auth.NewRepository(db)

	rateLimiter := ratelimit.NewLimiter(redisClient)

	sessionService, err := auth.NewSessionService(cfg.Auth.SessionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize session service: %w", err)
	}

	emailService := email.NewService(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.SMTPUser,
		cfg.Email.SMTPPassword,
		cfg.Email.AppURL,
	)

	authService := auth.NewService(
		loginTokenRepo,
		userRepo,
		sessionService,
		emailService,
		logger,
		cfg.Auth.LoginTokenTTL,
		cfg.Auth.SessionDuration,
		cfg.Auth.LoginCodeLength,
	)

	authHandler := auth.NewHandler(
		authService,
		rateLimiter,
		logger,
		!cfg.Server.IsDevelopment(), // isProduction
		cfg.Auth.SessionDuration,
	)
	authMiddleware := auth.NewMiddleware(sessionService)

	router := httpServer.NewRouter(cfg, authHandler, authMiddleware, logger)

	serverAddr := ":" + cfg.Server.Port
	server := httpServer.NewServer(
		serverAddr,
		router,
		logger,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
	)

	// Best-effort sweep of expired login tokens
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepExpiredLoginTokens(sweepCtx, loginTokenRepo, logger)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received shutdown signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// sweepExpiredLoginTokens periodically deletes expired login artifacts
func sweepExpiredLoginTokens(ctx context.Context, repo *auth.Repository, logger *logging.Logger) {
	ticker := time.NewTicker(loginTokenSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := repo.DeleteExpired(ctx)
			if err != nil {
				logger.Warn("failed to sweep expired login tokens", "error", err.Error())
				continue
			}
			if deleted > 0 {
				logger.Info("swept expired login tokens", "deleted", deleted)
			}
		}
	}
}

// initDB initializes the database connection and returns a Bun DB instance
func initDB(cfg config.DatabaseConfig) (*bun.DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := database.RunMigrations(context.Background(), sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return database.NewBunDB(sqlDB), nil
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
