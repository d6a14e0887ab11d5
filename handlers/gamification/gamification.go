package gamification

import (
	"log"

	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/query"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/gofiber/fiber/v2"
)

// GamificationHandler serves points, levels and leaderboards
type GamificationHandler struct {
	gamification *services.GamificationService
}

// NewGamificationHandler creates a new gamification handler
func NewGamificationHandler(gamification *services.GamificationService) *GamificationHandler {
	return &GamificationHandler{gamification: gamification}
}

// GetMine handles GET /api/gamification/me
func (h *GamificationHandler) GetMine(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	summary, err := h.gamification.Summary(c.UserContext(), userID)
	if err != nil {
		log.Printf("[GAMIFICATION] summary for %d: %v", userID, err)
		return response.InternalServerError(c, "Failed to fetch points")
	}
	return response.Success(c, summary)
}

// GetLeaderboard handles GET /api/gamification/leaderboard
func (h *GamificationHandler) GetLeaderboard(c *fiber.Ctx) error {
	params, err := query.ParseList(c, nil, "")
	if err != nil {
		return query.Reject(c, err)
	}
	universityID, err := query.Uint(c, "university_id")
	if err != nil {
		return query.Reject(c, err)
	}

	entries, err := h.gamification.Leaderboard(c.UserContext(), universityID, params.Limit, params.Offset)
	if err != nil {
		log.Printf("[GAMIFICATION] leaderboard: %v", err)
		return response.InternalServerError(c, "Failed to fetch leaderboard")
	}
	return response.Success(c, entries)
}

// ListAchievements handles GET /api/gamification/achievements. Signed-in
// callers see which achievements they hold.
func (h *GamificationHandler) ListAchievements(c *fiber.Ctx) error {
	userID, _ := middleware.GetUserID(c)

	achievements, err := h.gamification.Achievements(c.UserContext(), userID)
	if err != nil {
		log.Printf("[GAMIFICATION] achievements: %v", err)
		return response.InternalServerError(c, "Failed to fetch achievements")
	}
	return response.Success(c, achievements)
}
