package analytics

import (
	"errors"
	"log"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/query"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AnalyticsHandler handles analytics and reporting requests
type AnalyticsHandler struct {
	db               *gorm.DB
	analyticsService *services.AnalyticsService
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(db *gorm.DB, analyticsService *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{
		db:               db,
		analyticsService: analyticsService,
	}
}

// GetMyStats handles GET /api/analytics/me
func (h *AnalyticsHandler) GetMyStats(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	stats, err := h.analyticsService.GetUserStats(c.UserContext(), userID)
	if err != nil {
		log.Printf("[ANALYTICS] user %d: %v", userID, err)
		return response.InternalServerError(c, "Failed to fetch your stats")
	}

	return response.Success(c, stats)
}

// GetUniversityStats handles GET /api/analytics/universities/:id
// Authorization: members of the university, its admins, or admin
func (h *AnalyticsHandler) GetUniversityStats(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	universityID, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}

	if !user.IsAdmin() && (user.UniversityID == nil || *user.UniversityID != universityID) {
		return response.Forbidden(c, "You can only view statistics for your own university")
	}

	var university model.University
	if err := h.db.WithContext(c.UserContext()).Select("id").First(&university, universityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "University not found")
		}
		return response.InternalServerError(c, "Failed to fetch university")
	}

	stats, err := h.analyticsService.GetUniversityStats(c.UserContext(), universityID)
	if err != nil {
		log.Printf("[ANALYTICS] university %d: %v", universityID, err)
		return response.InternalServerError(c, "Failed to fetch university stats")
	}

	return response.Success(c, stats)
}

// GetActivityTimeSeries handles GET /api/admin/analytics/activity
func (h *AnalyticsHandler) GetActivityTimeSeries(c *fiber.Ctx) error {
	days, err := query.Int(c, "days")
	if err != nil {
		return query.Reject(c, err)
	}
	window := 30
	if days != nil && *days >= 1 && *days <= 365 {
		window = *days
	}

	activityType, err := query.OneOf(c, "type",
		string(model.ActivityTypeLogin), string(model.ActivityTypeLogout),
		string(model.ActivityTypeProfileView), string(model.ActivityTypeProfileUpdate),
		string(model.ActivityTypeJobView), string(model.ActivityTypeEventView),
		string(model.ActivityTypeCredentialCheck), string(model.ActivityTypeSearch))
	if err != nil {
		return query.Reject(c, err)
	}

	series, err := h.analyticsService.GetActivityTimeSeries(c.UserContext(), window, model.ActivityType(activityType))
	if err != nil {
		log.Printf("[ANALYTICS] activity series: %v", err)
		return response.InternalServerError(c, "Failed to fetch activity time series")
	}

	return response.Success(c, series)
}
