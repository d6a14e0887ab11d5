package database

import (
	"fmt"
	"log"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// constraint is a Postgres-only rule AutoMigrate cannot express through tags
type constraint struct {
	name  string
	table string
	ddl   string // %s receives the quoted constraint name, %s the quoted table
}

var postgresConstraints = []constraint{
	{
		// One connection per unordered pair, whichever side sent it
		name:  "idx_connections_unordered_pair",
		table: "connections",
		ddl:   "CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (LEAST(requester_id, recipient_id), GREATEST(requester_id, recipient_id))",
	},
	{
		name:  "chk_connections_not_self",
		table: "connections",
		ddl:   "ALTER TABLE %[2]s ADD CONSTRAINT %[1]s CHECK (requester_id <> recipient_id)",
	},
	{
		name:  "chk_events_capacity",
		table: "events",
		ddl:   "ALTER TABLE %[2]s ADD CONSTRAINT %[1]s CHECK (capacity = 0 OR attendee_count <= capacity)",
	},
	{
		name:  "chk_curriculum_feedback_rating",
		table: "curriculum_feedback",
		ddl:   "ALTER TABLE %[2]s ADD CONSTRAINT %[1]s CHECK (rating BETWEEN 1 AND 5)",
	},
	{
		name:  "chk_job_postings_application_count",
		table: "job_postings",
		ddl:   "ALTER TABLE %[2]s ADD CONSTRAINT %[1]s CHECK (application_count >= 0)",
	},
}

// ApplyConstraints installs the Postgres-only indexes and CHECK constraints.
// Other dialects rely on the handler-level checks alone.
func ApplyConstraints(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}

	for _, c := range postgresConstraints {
		exists, err := constraintExists(db, c.name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		stmt := fmt.Sprintf(c.ddl, pq.QuoteIdentifier(c.name), pq.QuoteIdentifier(c.table))
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply %s: %w", c.name, err)
		}
		log.Printf("Applied constraint %s on %s", c.name, c.table)
	}
	return nil
}

func constraintExists(db *gorm.DB, name string) (bool, error) {
	var count int64
	err := db.Raw(`
		SELECT COUNT(*) FROM (
			SELECT conname AS name FROM pg_constraint
			UNION ALL
			SELECT indexname AS name FROM pg_indexes
		) existing WHERE name = ?`, name).Scan(&count).Error
	return count > 0, err
}
