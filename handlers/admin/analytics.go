package admin

import (
	"log"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/gofiber/fiber/v2"
)

// Dashboard is the admin landing page payload
type Dashboard struct {
	*services.DashboardStats
	UsersByRole       []RoleCount                `json:"users_by_role"`
	UserGrowth        []services.TimeSeriesPoint `json:"user_growth"`
	TopUniversities   []UniversityCount          `json:"top_universities"`
	RecentAdminAction []model.AdminAuditLog      `json:"recent_admin_actions"`
}

// UniversityCount is the number of members per university
type UniversityCount struct {
	UniversityID uint   `json:"university_id"`
	Name         string `json:"name"`
	Members      int64  `json:"members"`
}

// GetDashboard handles GET /api/admin/dashboard
func (h *AdminHandler) GetDashboard(c *fiber.Ctx) error {
	ctx := c.UserContext()

	stats, err := h.analytics.GetDashboardStats(ctx)
	if err != nil {
		log.Printf("[ADMIN] dashboard stats: %v", err)
		return response.InternalServerError(c, "Failed to fetch dashboard stats")
	}

	db := h.db.WithContext(ctx)
	dashboard := Dashboard{DashboardStats: stats}

	if err := db.Model(&model.User{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Order("role ASC").
		Scan(&dashboard.UsersByRole).Error; err != nil {
		return response.InternalServerError(c, "Failed to group users")
	}

	// Signups per day over the last 30 days
	if err := db.Model(&model.User{}).
		Select("DATE(created_at) AS date, COUNT(*) AS count").
		Where("created_at >= ?", time.Now().AddDate(0, 0, -30)).
		Group("DATE(created_at)").
		Order("date ASC").
		Scan(&dashboard.UserGrowth).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch user growth")
	}

	if err := db.Table("universities").
		Select("universities.id AS university_id, universities.name AS name, COUNT(users.id) AS members").
		Joins("LEFT JOIN users ON users.university_id = universities.id AND users.deleted_at IS NULL").
		Where("universities.deleted_at IS NULL").
		Group("universities.id, universities.name").
		Order("members DESC, universities.id ASC").
		Limit(5).
		Scan(&dashboard.TopUniversities).Error; err != nil {
		return response.InternalServerError(c, "Failed to rank universities")
	}

	if err := db.Preload("Admin").Order("created_at DESC, id DESC").Limit(10).
		Find(&dashboard.RecentAdminAction).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch recent admin actions")
	}

	return response.Success(c, dashboard)
}
