package database

import (
	"fmt"
	"log"
	"os"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/utils/auth"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// SeedAll runs all seed functions
func (s *Seeder) SeedAll() error {
	log.Println("🌱 Starting database seeding...")

	// Run seeds in order (respecting foreign key constraints)
	if err := s.SeedUniversities(); err != nil {
		return fmt.Errorf("failed to seed universities: %w", err)
	}

	if err := s.SeedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if err := s.SeedAchievements(); err != nil {
		return fmt.Errorf("failed to seed achievements: %w", err)
	}

	if err := s.SeedAppSettings(); err != nil {
		return fmt.Errorf("failed to seed app settings: %w", err)
	}

	log.Println("✅ Database seeding completed successfully!")
	return nil
}

// SeedAdminUser creates the platform admin from ADMIN_EMAIL / ADMIN_PASSWORD
func (s *Seeder) SeedAdminUser() error {
	var count int64
	if err := s.db.Model(&model.User{}).Where("role = ?", model.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Admin user already exists, skipping...")
		return nil
	}

	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		log.Println("⚠️  ADMIN_EMAIL and ADMIN_PASSWORD environment variables not set, skipping admin user creation")
		return nil
	}

	passwordHash, err := auth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &model.User{
		Email:        adminEmail,
		PasswordHash: passwordHash,
		Name:         "Platform Administrator",
		Role:         model.RoleAdmin,
		IsActive:     true,
	}

	if err := s.db.Create(admin).Error; err != nil {
		return err
	}

	log.Printf("✅ Created admin user: %s\n", admin.Email)
	return nil
}

// SeedUniversities creates a handful of demo tenants
func (s *Seeder) SeedUniversities() error {
	var count int64
	if err := s.db.Model(&model.University{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Universities already exist, skipping...")
		return nil
	}

	universities := []model.University{
		{
			Name:     "Massachusetts Institute of Technology",
			Code:     "MIT",
			Domain:   "mit.edu",
			Location: "Cambridge, MA",
			Website:  "https://www.mit.edu",
			IsActive: true,
		},
		{
			Name:     "Stanford University",
			Code:     "STANFORD",
			Domain:   "stanford.edu",
			Location: "Stanford, CA",
			Website:  "https://www.stanford.edu",
			IsActive: true,
		},
		{
			Name:     "Indian Institute of Technology Bombay",
			Code:     "IITB",
			Domain:   "iitb.ac.in",
			Location: "Mumbai, Maharashtra",
			Website:  "https://www.iitb.ac.in",
			IsActive: true,
		},
	}

	if err := s.db.Create(&universities).Error; err != nil {
		return err
	}

	log.Printf("✅ Created %d universities\n", len(universities))
	return nil
}

// DefaultAchievements are the badges unlocked by cumulative points
var DefaultAchievements = []model.Achievement{
	{Code: "first_steps", Name: "First Steps", Description: "Earned your first points", Icon: "footprints", Threshold: 1},
	{Code: "networker", Name: "Networker", Description: "Reached 100 points", Icon: "users", Threshold: 100},
	{Code: "connector", Name: "Connector", Description: "Reached 500 points", Icon: "link", Threshold: 500},
	{Code: "ambassador", Name: "Ambassador", Description: "Reached 1000 points", Icon: "award", Threshold: 1000},
	{Code: "legend", Name: "Alumni Legend", Description: "Reached 5000 points", Icon: "crown", Threshold: 5000},
}

// SeedAchievements creates the default achievement catalogue
func (s *Seeder) SeedAchievements() error {
	var count int64
	if err := s.db.Model(&model.Achievement{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Achievements already exist, skipping...")
		return nil
	}

	achievements := make([]model.Achievement, len(DefaultAchievements))
	copy(achievements, DefaultAchievements)
	if err := s.db.Create(&achievements).Error; err != nil {
		return err
	}

	log.Printf("✅ Created %d achievements\n", len(achievements))
	return nil
}

// SeedAppSettings creates the default runtime settings
func (s *Seeder) SeedAppSettings() error {
	var count int64
	if err := s.db.Model(&model.AppSetting{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  App settings already exist, skipping...")
		return nil
	}

	settings := []model.AppSetting{
		{Key: "system.name", Value: "UniLink", Type: model.SettingTypeString, Description: "Application name", IsPublic: true, Category: "system"},
		{Key: "system.maintenance_mode", Value: "false", Type: model.SettingTypeBool, Description: "Restrict access during maintenance", IsPublic: true, Category: "system"},
		{Key: "gamification.points.connection_accepted", Value: "10", Type: model.SettingTypeInt, Description: "Points for an accepted connection", Category: "gamification"},
		{Key: "gamification.points.job_application", Value: "5", Type: model.SettingTypeInt, Description: "Points for applying to a job", Category: "gamification"},
		{Key: "gamification.points.event_registration", Value: "15", Type: model.SettingTypeInt, Description: "Points for registering for an event", Category: "gamification"},
		{Key: "gamification.points.credential_issued", Value: "50", Type: model.SettingTypeInt, Description: "Points when a credential is issued on-chain", Category: "gamification"},
		{Key: "gamification.points.feedback_submitted", Value: "5", Type: model.SettingTypeInt, Description: "Points for curriculum feedback", Category: "gamification"},
		{Key: "gamification.points.message_sent", Value: "1", Type: model.SettingTypeInt, Description: "Points per message sent", Category: "gamification"},
		{Key: "newsletter.default_period_days", Value: "30", Type: model.SettingTypeInt, Description: "Look-back window for generated newsletters", Category: "newsletter"},
		{Key: "sync.max_dead_letter_attempts", Value: "5", Type: model.SettingTypeInt, Description: "Retries before a dead letter is left for manual action", Category: "sync"},
	}

	if err := s.db.Create(&settings).Error; err != nil {
		return err
	}

	log.Printf("✅ Created %d app settings\n", len(settings))
	return nil
}

// RunSeeds is a convenience function to run all seeds
func RunSeeds(db *gorm.DB) error {
	seeder := NewSeeder(db)
	return seeder.SeedAll()
}
