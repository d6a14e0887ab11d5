package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NagallaThanvi/unilink/api"
	"github.com/NagallaThanvi/unilink/config"
	"github.com/NagallaThanvi/unilink/database"
	"github.com/NagallaThanvi/unilink/handlers"
	auth_handlers "github.com/NagallaThanvi/unilink/handlers/auth"
	"github.com/NagallaThanvi/unilink/router"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/services/chain"
	"github.com/NagallaThanvi/unilink/services/cron"
	"github.com/NagallaThanvi/unilink/services/mirror"
	"github.com/NagallaThanvi/unilink/services/outbox"
	"github.com/NagallaThanvi/unilink/services/search"
	"github.com/NagallaThanvi/unilink/services/storage"
	"github.com/NagallaThanvi/unilink/utils/auth"
	"github.com/NagallaThanvi/unilink/utils/cache"
	"github.com/NagallaThanvi/unilink/utils/metrics"
	"github.com/NagallaThanvi/unilink/utils/middleware"
)

func SetupAndRunServer() error {

	// Load ENV
	if err := config.LoadENV(); err != nil {
		return err
	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}
	if getEnv.JWT_SECRET == "" {
		return errors.New("JWT_SECRET environment variable is not set")
	}

	// Initialize GORM database connection
	store, err := database.StartGORM()
	if err != nil {
		print("Check whether the Postgres is running or not\n")
		print("If not running, run the following command:\n")
		print("  make docker-up   (for Docker setup)\n")
		print("  make db-up       (for local PostgreSQL)\n")
		return err
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		print("Failed to initialize database tables\n")
		print("Error running migrations:\n")
		return err
	}

	db := store.GetDB()

	// Achievements and default settings are required at runtime
	seeder := database.NewSeeder(db)
	if err := seeder.SeedAchievements(); err != nil {
		return fmt.Errorf("seed achievements: %w", err)
	}
	if err := seeder.SeedAppSettings(); err != nil {
		return fmt.Errorf("seed app settings: %w", err)
	}

	metrics.Register()

	ctx := context.Background()
	checks := []handlers.HealthCheck{
		{Name: "database", Check: func(context.Context) error { return store.HealthCheck() }},
	}

	// Redis is optional; lockouts, leaderboards and stats caching fall back without it
	var (
		bruteForce *middleware.BruteForceProtection
		board      services.LeaderboardStore
		statsCache services.StatsCache
	)
	if getEnv.REDIS_URL != "" {
		redisCache, err := cache.NewRedisCache(getEnv.REDIS_URL)
		if err != nil {
			log.Printf("Warning: Failed to connect to Redis: %v. Brute force protection will be disabled.", err)
		} else {
			defer redisCache.Close()
			bruteForce = middleware.NewBruteForceProtection(redisCache)
			board = redisCache
			statsCache = redisCache
			checks = append(checks, handlers.HealthCheck{Name: "redis", Optional: true, Check: redisCache.Ping})
		}
	}

	// Document mirror
	var mirrorStore mirror.Store
	if getEnv.MONGO_URI != "" {
		mongoStore, err := mirror.Connect(ctx, getEnv.MONGO_URI, getEnv.MONGO_DATABASE)
		if err != nil {
			log.Printf("Warning: %v. Mirror endpoints will be unavailable.", err)
		} else {
			defer mongoStore.Close(context.Background())
			if err := mongoStore.EnsureIndexes(ctx); err != nil {
				log.Printf("Warning: Failed to create mirror indexes: %v", err)
			}
			mirrorStore = mongoStore
			checks = append(checks, handlers.HealthCheck{Name: "mongo", Optional: true, Check: mongoStore.Ping})
		}
	}

	// Search index
	var searchEngine search.Engine
	if getEnv.ELASTICSEARCH_URL != "" {
		elastic, err := search.NewElasticEngine(search.ElasticConfig{
			URL:      getEnv.ELASTICSEARCH_URL,
			Username: getEnv.ELASTICSEARCH_USERNAME,
			Password: getEnv.ELASTICSEARCH_PASSWORD,
		})
		if err != nil {
			log.Printf("Warning: %v. Search will be unavailable.", err)
		} else {
			if err := elastic.EnsureIndexes(ctx); err != nil {
				log.Printf("Warning: Failed to create search indexes: %v", err)
			}
			searchEngine = elastic
			checks = append(checks, handlers.HealthCheck{Name: "elasticsearch", Optional: true, Check: elastic.Ping})
		}
	}

	// Object storage for avatars, credential documents and metadata
	var objects storage.ObjectStore
	if getEnv.S3_BUCKET != "" {
		s3Store, err := storage.NewS3Store(storage.S3Config{
			AccessKey:     getEnv.S3_ACCESS_KEY,
			SecretKey:     getEnv.S3_SECRET_KEY,
			Bucket:        getEnv.S3_BUCKET,
			Region:        getEnv.S3_REGION,
			Endpoint:      getEnv.S3_ENDPOINT,
			PublicBaseURL: getEnv.S3_PUBLIC_BASE_URL,
		})
		if err != nil {
			log.Printf("Warning: Failed to initialise object storage: %v. Uploads will be unavailable.", err)
		} else {
			objects = s3Store
		}
	}

	// Credential registry contract
	var registry chain.Registry
	if getEnv.CHAIN_RPC_URL != "" {
		client, err := chain.Dial(ctx, chain.Config{
			RPCURL:          getEnv.CHAIN_RPC_URL,
			ChainID:         getEnv.CHAIN_ID,
			ContractAddress: getEnv.CHAIN_CONTRACT_ADDRESS,
			IssuerKey:       getEnv.CHAIN_ISSUER_KEY,
			IssuerAddress:   getEnv.CHAIN_ISSUER_ADDRESS,
		})
		if err != nil {
			log.Printf("Warning: %v. Credential issuance and verification will be unavailable.", err)
		} else {
			defer client.Close()
			registry = client
		}
	}

	// SMTP
	var (
		mailer      services.Mailer
		resetMailer auth_handlers.ResetMailer
	)
	emailService := services.NewEmailService(services.EmailConfig{
		Host:     getEnv.SMTP_HOST,
		Port:     getEnv.SMTP_PORT,
		Username: getEnv.SMTP_USERNAME,
		Password: getEnv.SMTP_PASSWORD,
		From:     getEnv.SMTP_FROM,
		AppURL:   getEnv.FRONTEND_URL,
	})
	if emailService.IsConfigured() {
		mailer = emailService
		resetMailer = emailService
	} else {
		log.Println("Warning: SMTP is not configured. Emails will not be sent.")
	}

	notificationService := services.NewNotificationService(db)
	gamificationService := services.NewGamificationService(db, board)
	credentialService := services.NewCredentialService(db, registry, objects, gamificationService, notificationService)
	newsletterService := services.NewNewsletterService(db, mailer, getEnv.FRONTEND_URL)
	outboxWorker := outbox.NewWorker(db, mirrorStore, searchEngine)
	analyticsService := services.NewAnalyticsService(db)
	if statsCache != nil {
		analyticsService.WithCache(statsCache)
	}

	// Initialize Cron Manager (only if enabled via environment variable)
	var cronManager *cron.CronManager
	if getEnv.CRON_ENABLED {
		cronManager = cron.NewCronManager(db, cron.Dependencies{
			Outbox:        outboxWorker,
			Credentials:   credentialService,
			Newsletters:   newsletterService,
			Notifications: notificationService,
		})
		if err := cronManager.Start(); err != nil {
			print("Warning: Failed to start cron jobs\n")
			print("Error: ", err.Error(), "\n")
			// Don't fail the app, just log the warning
			cronManager = nil
		}
	}
	defer func() {
		if cronManager != nil {
			cronManager.Stop()
		}
	}()

	// Init API
	server := api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT))
	app := server.GetEngine()

	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		Secret:        getEnv.JWT_SECRET,
		Expiry:        24 * time.Hour,     // Access token expires in 24 hours
		RefreshExpiry: 7 * 24 * time.Hour, // Refresh token expires in 7 days
		Issuer:        getEnv.JWT_ISSUER,
	})

	deps := router.Dependencies{
		DB:             db,
		JWT:            jwtManager,
		BruteForce:     bruteForce,
		ResetMailer:    resetMailer,
		Objects:        objects,
		Mirror:         mirrorStore,
		Search:         searchEngine,
		Outbox:         outboxWorker,
		Notifications:  notificationService,
		Gamification:   gamificationService,
		Connections:    services.NewConnectionService(db, notificationService, gamificationService),
		Credentials:    credentialService,
		Newsletters:    newsletterService,
		Analytics:      analyticsService,
		HealthChecks:   checks,
		AllowedOrigins: getEnv.ALLOWED_ORIGINS,
	}

	// Setup Routes
	router.SetupRoutes(app, deps)

	// Stop gracefully on SIGINT / SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("Shutting down API Server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	// Get the PORT & Start the Server
	return server.Run()
}
