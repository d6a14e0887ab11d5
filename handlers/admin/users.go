package admin

import (
	"errors"
	"log"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services/outbox"
	"github.com/NagallaThanvi/unilink/utils/auth"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/query"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/NagallaThanvi/unilink/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var userSortable = query.Sortable{
	"created_at":    "created_at",
	"name":          "name",
	"email":         "email",
	"last_login_at": "last_login_at",
}

// UpdateUserRequest represents the request body for updating a user
type UpdateUserRequest struct {
	Name         *string `json:"name" validate:"omitempty,min=2,max=100"`
	Email        *string `json:"email" validate:"omitempty,email"`
	Role         *string `json:"role" validate:"omitempty,oneof=student alumni faculty university_admin admin"`
	UniversityID *uint   `json:"university_id"`
	// ClearUniversity detaches the user from their university
	ClearUniversity bool  `json:"clear_university"`
	IsActive        *bool `json:"is_active"`
}

// ResetPasswordRequest represents the request for admin password reset
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// UserDetail is a user with their activity counts
type UserDetail struct {
	model.User
	Stats UserActivityCounts `json:"stats"`
}

// UserActivityCounts summarises what a user has done on the platform
type UserActivityCounts struct {
	Connections        int64 `json:"connections"`
	Credentials        int64 `json:"credentials"`
	JobApplications    int64 `json:"job_applications"`
	EventRegistrations int64 `json:"event_registrations"`
	MessagesSent       int64 `json:"messages_sent"`
	Points             int64 `json:"points"`
}

// ListUsers handles GET /api/admin/users
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	params, err := query.ParseList(c, userSortable, "created_at")
	if err != nil {
		return query.Reject(c, err)
	}
	if params.ID != nil {
		return h.respondWithUser(c, *params.ID)
	}

	role, err := query.OneOf(c, "role", model.ValidRoles...)
	if err != nil {
		return query.Reject(c, err)
	}
	universityID, err := query.Uint(c, "university_id")
	if err != nil {
		return query.Reject(c, err)
	}
	active, err := query.Bool(c, "is_active")
	if err != nil {
		return query.Reject(c, err)
	}

	db := h.db.WithContext(c.UserContext()).Model(&model.User{})
	if role != "" {
		db = db.Where("role = ?", role)
	}
	if universityID != nil {
		db = db.Where("university_id = ?", *universityID)
	}
	if active != nil {
		db = db.Where("is_active = ?", *active)
	}
	db = query.Search(db, params.Search, "name", "email")

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count users")
	}

	var users []model.User
	if err := params.Page(db, userSortable).Preload("University").Find(&users).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch users")
	}

	return response.Paginated(c, users, response.CalculatePagination(params.Offset, params.Limit, total))
}

// GetUser handles GET /api/admin/users/:id
func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	return h.respondWithUser(c, id)
}

func (h *AdminHandler) respondWithUser(c *fiber.Ctx, id uint) error {
	db := h.db.WithContext(c.UserContext())

	var user model.User
	if err := db.Preload("University").First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "User not found")
		}
		return response.InternalServerError(c, "Failed to fetch user")
	}

	detail := UserDetail{User: user}
	counts := []struct {
		dst   *int64
		table interface{}
		where string
		args  []interface{}
	}{
		{&detail.Stats.Connections, &model.Connection{}, "(requester_id = ? OR recipient_id = ?) AND status = ?", []interface{}{id, id, model.ConnectionStatusAccepted}},
		{&detail.Stats.Credentials, &model.Credential{}, "user_id = ?", []interface{}{id}},
		{&detail.Stats.JobApplications, &model.JobApplication{}, "applicant_id = ?", []interface{}{id}},
		{&detail.Stats.EventRegistrations, &model.EventRegistration{}, "user_id = ?", []interface{}{id}},
		{&detail.Stats.MessagesSent, &model.Message{}, "sender_id = ?", []interface{}{id}},
	}
	for _, q := range counts {
		if err := db.Model(q.table).Where(q.where, q.args...).Count(q.dst).Error; err != nil {
			return response.InternalServerError(c, "Failed to fetch user statistics")
		}
	}
	if err := db.Model(&model.PointTransaction{}).Where("user_id = ?", id).
		Select("COALESCE(SUM(points), 0)").Scan(&detail.Stats.Points).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch user statistics")
	}

	return response.Success(c, detail)
}

// UpdateUser handles PUT /api/admin/users/:id. Changing the role or
// deactivating the account invalidates the user's tokens.
func (h *AdminHandler) UpdateUser(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}

	var req UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.Name != nil {
		*req.Name = validation.SanitizeString(*req.Name)
	}
	if req.Email != nil {
		*req.Email = validation.NormalizeEmail(*req.Email)
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	adminID, _ := middleware.GetUserID(c)
	if adminID == id && ((req.IsActive != nil && !*req.IsActive) || (req.Role != nil && *req.Role != model.RoleAdmin)) {
		return response.BadRequest(c, "You cannot demote or deactivate your own account")
	}

	db := h.db.WithContext(c.UserContext())

	var user model.User
	if err := db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "User not found")
		}
		return response.InternalServerError(c, "Failed to fetch user")
	}

	updates := map[string]interface{}{}
	revoke := false
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Email != nil && *req.Email != user.Email {
		var taken int64
		if err := db.Model(&model.User{}).Where("email = ? AND id <> ?", *req.Email, id).Count(&taken).Error; err != nil {
			return response.InternalServerError(c, "Failed to check email")
		}
		if taken > 0 {
			return response.ConflictWithCode(c, "EMAIL_EXISTS", "Email already in use")
		}
		updates["email"] = *req.Email
	}
	if req.Role != nil && *req.Role != user.Role {
		updates["role"] = *req.Role
		revoke = true
	}
	switch {
	case req.ClearUniversity:
		updates["university_id"] = nil
	case req.UniversityID != nil:
		var count int64
		if err := db.Model(&model.University{}).Where("id = ?", *req.UniversityID).Count(&count).Error; err != nil {
			return response.InternalServerError(c, "Failed to fetch university")
		}
		if count == 0 {
			return response.Error(c, fiber.StatusBadRequest, "University not found", "UNIVERSITY_NOT_FOUND")
		}
		updates["university_id"] = *req.UniversityID
	}
	if req.IsActive != nil && *req.IsActive != user.IsActive {
		updates["is_active"] = *req.IsActive
		if !*req.IsActive {
			revoke = true
		}
	}

	role := user.Role
	if r, ok := updates["role"].(string); ok {
		role = r
	}
	hasUniversity := user.UniversityID != nil
	if v, ok := updates["university_id"]; ok {
		hasUniversity = v != nil
	}
	if role == model.RoleUniversityAdmin && !hasUniversity {
		return response.Error(c, fiber.StatusBadRequest, "A university admin must belong to a university", "UNIVERSITY_REQUIRED")
	}

	if len(updates) > 0 {
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&user).Updates(updates).Error; err != nil {
				return err
			}
			if revoke {
				if err := auth.NewBlacklistService(tx).RevokeAllUserTokens(c.UserContext(), user.ID); err != nil {
					return err
				}
			}
			return outbox.Add(tx, model.OutboxEntityUser, user.ID, model.OutboxOpUpsert, nil)
		})
		if err != nil {
			log.Printf("[ADMIN] update user %d: %v", id, err)
			return response.InternalServerError(c, "Failed to update user")
		}
	}

	if err := db.Preload("University").First(&user, id).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch updated user")
	}
	return response.SuccessWithMessage(c, "User updated successfully", user)
}

// DeleteUser handles DELETE /api/admin/users/:id (soft delete)
func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}

	if adminID, _ := middleware.GetUserID(c); adminID == id {
		return response.BadRequest(c, "Cannot delete your own account")
	}

	db := h.db.WithContext(c.UserContext())

	var user model.User
	if err := db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "User not found")
		}
		return response.InternalServerError(c, "Failed to fetch user")
	}

	var profileID uint
	db.Model(&model.Profile{}).Where("user_id = ?", id).Select("id").Scan(&profileID)

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&user).Error; err != nil {
			return err
		}
		if err := outbox.Add(tx, model.OutboxEntityUser, user.ID, model.OutboxOpDelete, nil); err != nil {
			return err
		}
		if profileID != 0 {
			return outbox.Add(tx, model.OutboxEntityProfile, profileID, model.OutboxOpDelete, nil)
		}
		return nil
	})
	if err != nil {
		log.Printf("[ADMIN] delete user %d: %v", id, err)
		return response.InternalServerError(c, "Failed to delete user")
	}

	return response.SuccessWithMessage(c, "User deleted successfully", user)
}

// ResetUserPassword handles POST /api/admin/users/:id/reset-password
func (h *AdminHandler) ResetUserPassword(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}

	var req ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}
	if ok, problems := validation.ValidatePassword(req.NewPassword); !ok {
		return response.ErrorWithDetails(c, fiber.StatusBadRequest, "Password is too weak", "WEAK_PASSWORD", problems)
	}

	db := h.db.WithContext(c.UserContext())

	var user model.User
	if err := db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "User not found")
		}
		return response.InternalServerError(c, "Failed to fetch user")
	}

	hashedPassword, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return response.InternalServerError(c, "Failed to hash password")
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user).Update("password_hash", hashedPassword).Error; err != nil {
			return err
		}
		return auth.NewBlacklistService(tx).RevokeAllUserTokens(c.UserContext(), user.ID)
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to update password")
	}

	return response.SuccessWithMessage(c, "Password reset successfully", fiber.Map{
		"user_id": id,
		"message": "All user sessions have been invalidated",
	})
}

// RoleCount is the number of users holding a role
type RoleCount struct {
	Role  string `json:"role"`
	Count int64  `json:"count"`
}

// UserStats is the user population summary
type UserStats struct {
	TotalUsers     int64       `json:"total_users"`
	InactiveUsers  int64       `json:"inactive_users"`
	ByRole         []RoleCount `json:"by_role"`
	ActiveToday    int64       `json:"active_today"`
	ActiveThisWeek int64       `json:"active_this_week"`
	NewThisWeek    int64       `json:"new_this_week"`
}

// GetUserStats handles GET /api/admin/users/stats
func (h *AdminHandler) GetUserStats(c *fiber.Ctx) error {
	db := h.db.WithContext(c.UserContext())
	now := time.Now()
	var stats UserStats

	if err := db.Model(&model.User{}).Count(&stats.TotalUsers).Error; err != nil {
		return response.InternalServerError(c, "Failed to count users")
	}
	if err := db.Model(&model.User{}).Where("is_active = ?", false).Count(&stats.InactiveUsers).Error; err != nil {
		return response.InternalServerError(c, "Failed to count users")
	}
	if err := db.Model(&model.User{}).Where("created_at >= ?", now.AddDate(0, 0, -7)).Count(&stats.NewThisWeek).Error; err != nil {
		return response.InternalServerError(c, "Failed to count users")
	}
	if err := db.Model(&model.User{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Order("role ASC").
		Scan(&stats.ByRole).Error; err != nil {
		return response.InternalServerError(c, "Failed to group users")
	}

	if err := db.Model(&model.UserActivity{}).
		Where("created_at >= ?", now.Add(-24*time.Hour)).
		Distinct("user_id").
		Count(&stats.ActiveToday).Error; err != nil {
		return response.InternalServerError(c, "Failed to count active users")
	}
	if err := db.Model(&model.UserActivity{}).
		Where("created_at >= ?", now.AddDate(0, 0, -7)).
		Distinct("user_id").
		Count(&stats.ActiveThisWeek).Error; err != nil {
		return response.InternalServerError(c, "Failed to count active users")
	}

	return response.Success(c, stats)
}
