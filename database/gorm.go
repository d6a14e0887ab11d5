package database

import (
	"fmt"
	"log"
	"time"

	"github.com/NagallaThanvi/unilink/config"
	"github.com/NagallaThanvi/unilink/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GORMStore struct {
	db *gorm.DB
}

// StartGORM initializes a GORM connection to PostgreSQL
func StartGORM() (*GORMStore, error) {
	getEnv, err := config.Get()
	if err != nil {
		return nil, err
	}

	// Build DSN (Data Source Name)
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		getEnv.DB_HOST,
		getEnv.DB_USER_NAME,
		getEnv.DB_PASSWORD,
		getEnv.DB_NAME,
		getEnv.DB_PORT,
		getEnv.DB_SSL_MODE,
	)

	// Configure GORM logger
	gormLogger := logger.Default.LogMode(logger.Info)
	if getEnv.GO_ENV == "production" {
		gormLogger = logger.Default.LogMode(logger.Error)
	}

	// Open GORM connection
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		PrepareStmt:    true, // Prepare statements for better performance
		TranslateError: true, // Surface unique violations as gorm.ErrDuplicatedKey
	})
	if err != nil {
		log.Println("Unable to connect to PostgreSQL with GORM:", err)
		return nil, err
	}

	// Get underlying *sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("Successfully connected to PostgreSQL Database with GORM.")

	return &GORMStore{db: db}, nil
}

// OpenSQLite opens a SQLite database. Used for local development and tests;
// pass a name such as "file:test1?mode=memory&cache=shared" for an isolated
// in-memory database.
func OpenSQLite(dsn string) (*GORMStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers; a single connection avoids "database is locked"
	sqlDB.SetMaxOpenConns(1)

	return &GORMStore{db: db}, nil
}

// NewGORMStore wraps an existing connection, e.g. one backed by sqlmock
func NewGORMStore(db *gorm.DB) *GORMStore {
	return &GORMStore{db: db}
}

// Models lists every table managed by AutoMigrate, in dependency order
func Models() []interface{} {
	return []interface{}{
		// Tenants & identity
		&model.University{},
		&model.User{},
		&model.Profile{},

		// Network
		&model.Connection{},
		&model.Conversation{},
		&model.ConversationParticipant{},
		&model.Message{},

		// Opportunities
		&model.JobPosting{},
		&model.JobApplication{},
		&model.Scholarship{},
		&model.ScholarshipApplication{},
		&model.Event{},
		&model.EventRegistration{},

		// Academic records
		&model.Credential{},
		&model.CurriculumFeedback{},

		// Communication
		&model.Newsletter{},
		&model.NewsletterSubscription{},
		&model.UserNotification{},

		// Gamification
		&model.PointTransaction{},
		&model.Achievement{},
		&model.UserAchievement{},

		// Application settings & security
		&model.AppSetting{},
		&model.JWTTokenBlacklist{},
		&model.PasswordResetToken{},

		// Audit, logging & sync
		&model.CronJobLog{},
		&model.AdminAuditLog{},
		&model.UserActivity{},
		&model.OutboxEvent{},
		&model.OutboxDeadLetter{},
	}
}

// Init runs the AutoMigrate to create/update tables
func (s *GORMStore) Init() error {
	log.Println("Running GORM AutoMigrate for all models...")

	if err := s.db.AutoMigrate(Models()...); err != nil {
		log.Println("Error running AutoMigrate:", err)
		return err
	}

	if err := ApplyConstraints(s.db); err != nil {
		log.Println("Error applying database constraints:", err)
		return err
	}

	log.Println("GORM AutoMigrate completed successfully!")
	return nil
}

// Close closes the database connection
func (s *GORMStore) Close() error {
	log.Println("Closing GORM database connection...")
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the GORM DB instance for use in handlers and services
func (s *GORMStore) GetDB() *gorm.DB {
	return s.db
}

// HealthCheck verifies the database connection is alive
func (s *GORMStore) HealthCheck() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
