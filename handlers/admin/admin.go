package admin

import (
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/services/outbox"
	"github.com/NagallaThanvi/unilink/utils/validation"
	"gorm.io/gorm"
)

// AdminHandler serves the platform administration API. Every route is
// mounted behind RequireAdmin.
type AdminHandler struct {
	db        *gorm.DB
	analytics *services.AnalyticsService
	sync      *outbox.Worker
	validator *validation.Validator
}

// NewAdminHandler creates a new admin handler. sync is the outbox worker used
// for dead letter retries.
func NewAdminHandler(db *gorm.DB, analytics *services.AnalyticsService, sync *outbox.Worker) *AdminHandler {
	return &AdminHandler{
		db:        db,
		analytics: analytics,
		sync:      sync,
		validator: validation.NewValidator(),
	}
}
