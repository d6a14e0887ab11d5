package profile

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/services/outbox"
	"github.com/NagallaThanvi/unilink/services/storage"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/query"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/NagallaThanvi/unilink/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxAvatarSize = 5 * 1024 * 1024 // 5MB

// ProfileHandler handles alumni profile requests
type ProfileHandler struct {
	db        *gorm.DB
	store     storage.ObjectStore
	analytics *services.AnalyticsService
	validator *validation.Validator
}

// NewProfileHandler creates a new profile handler. store may be nil, which
// disables avatar uploads.
func NewProfileHandler(db *gorm.DB, store storage.ObjectStore) *ProfileHandler {
	return &ProfileHandler{
		db:        db,
		store:     store,
		analytics: services.NewAnalyticsService(db),
		validator: validation.NewValidator(),
	}
}

var sortable = query.Sortable{
	"created_at":      "profiles.created_at",
	"updated_at":      "profiles.updated_at",
	"graduation_year": "profiles.graduation_year",
	"name":            "users.name",
}

// CreateProfileRequest represents the request body for creating a profile
type CreateProfileRequest struct {
	UniversityID   *uint             `json:"university_id"`
	Headline       string            `json:"headline" validate:"max=255"`
	Bio            string            `json:"bio" validate:"max=5000"`
	GraduationYear int               `json:"graduation_year" validate:"omitempty,min=1900,max=2100"`
	Degree         string            `json:"degree" validate:"max=100"`
	Major          string            `json:"major" validate:"max=150"`
	Company        string            `json:"company" validate:"max=150"`
	JobTitle       string            `json:"job_title" validate:"max=150"`
	Location       string            `json:"location" validate:"max=255"`
	Skills         []string          `json:"skills" validate:"max=50,dive,min=1,max=50"`
	SocialLinks    map[string]string `json:"social_links" validate:"omitempty,dive,url"`
	Visibility     string            `json:"visibility" validate:"omitempty,oneof=public connections private"`
	IsMentor       bool              `json:"is_mentor"`
}

// UpdateProfileRequest represents a partial profile update
type UpdateProfileRequest struct {
	Headline       *string            `json:"headline" validate:"omitempty,max=255"`
	Bio            *string            `json:"bio" validate:"omitempty,max=5000"`
	GraduationYear *int               `json:"graduation_year" validate:"omitempty,min=1900,max=2100"`
	Degree         *string            `json:"degree" validate:"omitempty,max=100"`
	Major          *string            `json:"major" validate:"omitempty,max=150"`
	Company        *string            `json:"company" validate:"omitempty,max=150"`
	JobTitle       *string            `json:"job_title" validate:"omitempty,max=150"`
	Location       *string            `json:"location" validate:"omitempty,max=255"`
	Skills         *[]string          `json:"skills" validate:"omitempty,max=50,dive,min=1,max=50"`
	SocialLinks    *map[string]string `json:"social_links" validate:"omitempty,dive,url"`
	Visibility     *string            `json:"visibility" validate:"omitempty,oneof=public connections private"`
	IsMentor       *bool              `json:"is_mentor"`
}

// ListProfiles handles GET /api/profiles
func (h *ProfileHandler) ListProfiles(c *fiber.Ctx) error {
	params, err := query.ParseList(c, sortable, "created_at")
	if err != nil {
		return query.Reject(c, err)
	}
	if params.ID != nil {
		return h.respondWith(c, *params.ID)
	}

	universityID, err := query.Uint(c, "university_id")
	if err != nil {
		return query.Reject(c, err)
	}
	graduationYear, err := query.Int(c, "graduation_year")
	if err != nil {
		return query.Reject(c, err)
	}
	isMentor, err := query.Bool(c, "is_mentor")
	if err != nil {
		return query.Reject(c, err)
	}

	db := h.db.WithContext(c.UserContext()).Model(&model.Profile{}).
		Joins("JOIN users ON users.id = profiles.user_id AND users.deleted_at IS NULL")

	db, err = h.visible(c, db)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch profiles")
	}

	if universityID != nil {
		db = db.Where("profiles.university_id = ?", *universityID)
	}
	if graduationYear != nil {
		db = db.Where("profiles.graduation_year = ?", *graduationYear)
	}
	if isMentor != nil {
		db = db.Where("profiles.is_mentor = ?", *isMentor)
	}
	if major := strings.TrimSpace(c.Query("major")); major != "" {
		db = db.Where("LOWER(profiles.major) = ?", strings.ToLower(major))
	}
	if company := strings.TrimSpace(c.Query("company")); company != "" {
		db = db.Where("LOWER(profiles.company) LIKE ?", "%"+strings.ToLower(company)+"%")
	}
	if skill := strings.TrimSpace(c.Query("skill")); skill != "" {
		db = db.Where("LOWER(CAST(profiles.skills AS TEXT)) LIKE ?", `%"`+strings.ToLower(skill)+`"%`)
	}
	db = query.Search(db, params.Search, "users.name", "profiles.headline", "profiles.company")

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count profiles")
	}

	var profiles []model.Profile
	if err := params.Page(db, sortable).Preload("User").Select("profiles.*").Find(&profiles).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch profiles")
	}

	if params.Search != "" {
		if uid, ok := middleware.GetUserID(c); ok {
			_ = h.analytics.LogActivity(c.UserContext(), uid, model.ActivityTypeSearch, "profile", 0, c.IP(), c.Get(fiber.HeaderUserAgent))
		}
	}

	return response.Paginated(c, profiles, response.CalculatePagination(params.Offset, params.Limit, total))
}

// visible restricts a profile query to what the caller may see: public
// profiles, their own, and connections-only profiles of their connections.
func (h *ProfileHandler) visible(c *fiber.Ctx, db *gorm.DB) (*gorm.DB, error) {
	user, ok := middleware.GetUser(c)
	if !ok {
		return db.Where("profiles.visibility = ?", model.VisibilityPublic), nil
	}
	if user.IsAdmin() {
		return db, nil
	}

	connected, err := services.ConnectedUserIDs(c.UserContext(), h.db, user.ID)
	if err != nil {
		return nil, err
	}
	if len(connected) == 0 {
		return db.Where("profiles.visibility = ? OR profiles.user_id = ?", model.VisibilityPublic, user.ID), nil
	}
	return db.Where("profiles.visibility = ? OR profiles.user_id = ? OR (profiles.visibility = ? AND profiles.user_id IN ?)",
		model.VisibilityPublic, user.ID, model.VisibilityConnections, connected), nil
}

// canView applies the same rule as visible to a single profile
func (h *ProfileHandler) canView(c *fiber.Ctx, p *model.Profile) (bool, error) {
	if p.Visibility == model.VisibilityPublic {
		return true, nil
	}
	user, ok := middleware.GetUser(c)
	if !ok {
		return false, nil
	}
	if user.IsAdmin() || user.ID == p.UserID {
		return true, nil
	}
	if p.Visibility != model.VisibilityConnections {
		return false, nil
	}
	return services.AreConnected(c.UserContext(), h.db, user.ID, p.UserID)
}

// GetProfile handles GET /api/profiles/:id
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	return h.respondWith(c, id)
}

func (h *ProfileHandler) respondWith(c *fiber.Ctx, id uint) error {
	var profile model.Profile
	if err := h.db.WithContext(c.UserContext()).Preload("User").Preload("University").First(&profile, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Profile not found")
		}
		return response.InternalServerError(c, "Failed to fetch profile")
	}

	ok, err := h.canView(c, &profile)
	if err != nil {
		return response.InternalServerError(c, "Failed to check profile visibility")
	}
	if !ok {
		return response.Error(c, fiber.StatusForbidden, "This profile is not visible to you", "PROFILE_HIDDEN")
	}

	if uid, ok := middleware.GetUserID(c); ok && uid != profile.UserID {
		if err := h.analytics.LogActivity(c.UserContext(), uid, model.ActivityTypeProfileView, "profile", profile.ID, c.IP(), c.Get(fiber.HeaderUserAgent)); err != nil {
			log.Printf("[PROFILE] failed to log view of %d: %v", profile.ID, err)
		}
	}

	return response.Success(c, profile)
}

// CreateProfile handles POST /api/profiles. Every user has at most one.
func (h *ProfileHandler) CreateProfile(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	universityID := req.UniversityID
	if universityID == nil {
		universityID = user.UniversityID
	}
	if universityID == nil {
		return response.Error(c, fiber.StatusBadRequest, "university_id is required", "UNIVERSITY_REQUIRED")
	}

	var count int64
	if err := h.db.WithContext(c.UserContext()).Model(&model.University{}).Where("id = ?", *universityID).Count(&count).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch university")
	}
	if count == 0 {
		return response.Error(c, fiber.StatusBadRequest, "University not found", "UNIVERSITY_NOT_FOUND")
	}

	if err := h.db.WithContext(c.UserContext()).Model(&model.Profile{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		return response.InternalServerError(c, "Failed to check existing profile")
	}
	if count > 0 {
		return response.ConflictWithCode(c, "PROFILE_EXISTS", "You already have a profile")
	}

	profile := model.Profile{
		UserID:         user.ID,
		UniversityID:   *universityID,
		Headline:       validation.SanitizeString(req.Headline),
		Bio:            strings.TrimSpace(req.Bio),
		GraduationYear: req.GraduationYear,
		Degree:         validation.SanitizeString(req.Degree),
		Major:          validation.SanitizeString(req.Major),
		Company:        validation.SanitizeString(req.Company),
		JobTitle:       validation.SanitizeString(req.JobTitle),
		Location:       validation.SanitizeString(req.Location),
		Skills:         normalizeSkills(req.Skills),
		Visibility:     req.Visibility,
		IsMentor:       req.IsMentor,
	}
	if profile.Visibility == "" {
		profile.Visibility = model.VisibilityPublic
	}
	if req.SocialLinks != nil {
		raw, _ := json.Marshal(req.SocialLinks)
		profile.SocialLinks = datatypes.JSON(raw)
	}

	err := h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&profile).Error; err != nil {
			return err
		}
		return outbox.Add(tx, model.OutboxEntityProfile, profile.ID, model.OutboxOpUpsert, nil)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return response.ConflictWithCode(c, "PROFILE_EXISTS", "You already have a profile")
		}
		log.Printf("[PROFILE] create for user %d: %v", user.ID, err)
		return response.InternalServerError(c, "Failed to create profile")
	}

	return response.Created(c, profile)
}

// UpdateProfile handles PUT /api/profiles/:id
func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	profile, ok, err := h.loadOwned(c)
	if !ok {
		return err
	}

	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	updates := map[string]interface{}{}
	setString := func(col string, v *string) {
		if v != nil {
			updates[col] = validation.SanitizeString(*v)
		}
	}
	setString("headline", req.Headline)
	setString("degree", req.Degree)
	setString("major", req.Major)
	setString("company", req.Company)
	setString("job_title", req.JobTitle)
	setString("location", req.Location)
	setString("visibility", req.Visibility)
	if req.Bio != nil {
		updates["bio"] = strings.TrimSpace(*req.Bio)
	}
	if req.GraduationYear != nil {
		updates["graduation_year"] = *req.GraduationYear
	}
	if req.Skills != nil {
		updates["skills"] = normalizeSkills(*req.Skills)
	}
	if req.SocialLinks != nil {
		raw, _ := json.Marshal(*req.SocialLinks)
		updates["social_links"] = datatypes.JSON(raw)
	}
	if req.IsMentor != nil {
		updates["is_mentor"] = *req.IsMentor
	}

	if len(updates) > 0 {
		if err := h.save(c, profile, updates); err != nil {
			log.Printf("[PROFILE] update %d: %v", profile.ID, err)
			return response.InternalServerError(c, "Failed to update profile")
		}
		if uid, ok := middleware.GetUserID(c); ok {
			_ = h.analytics.LogActivity(c.UserContext(), uid, model.ActivityTypeProfileUpdate, "profile", profile.ID, c.IP(), c.Get(fiber.HeaderUserAgent))
		}
	}

	if err := h.db.WithContext(c.UserContext()).Preload("User").First(profile, profile.ID).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch profile")
	}
	return response.Success(c, profile)
}

// DeleteProfile handles DELETE /api/profiles/:id
func (h *ProfileHandler) DeleteProfile(c *fiber.Ctx) error {
	profile, ok, err := h.loadOwned(c)
	if !ok {
		return err
	}

	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(profile).Error; err != nil {
			return err
		}
		return outbox.Add(tx, model.OutboxEntityProfile, profile.ID, model.OutboxOpDelete, nil)
	})
	if err != nil {
		log.Printf("[PROFILE] delete %d: %v", profile.ID, err)
		return response.InternalServerError(c, "Failed to delete profile")
	}

	return response.SuccessWithMessage(c, "Profile deleted successfully", profile)
}

// UploadAvatar handles POST /api/profiles/:id/avatar. The image is cropped to
// a square thumbnail and stored under its content hash.
func (h *ProfileHandler) UploadAvatar(c *fiber.Ctx) error {
	if h.store == nil {
		return response.ServiceUnavailable(c, "Object storage is not configured")
	}

	profile, ok, err := h.loadOwned(c)
	if !ok {
		return err
	}

	file, err := c.FormFile("avatar")
	if err != nil {
		return response.BadRequest(c, "avatar file is required")
	}
	if file.Size > maxAvatarSize {
		return response.BadRequest(c, "Avatar exceeds maximum allowed size of 5MB")
	}

	f, err := file.Open()
	if err != nil {
		return response.InternalServerError(c, "Failed to open file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxAvatarSize+1))
	if err != nil {
		return response.InternalServerError(c, "Failed to read file")
	}

	thumb, err := storage.MakeThumbnail(data, storage.ThumbnailSize)
	if err != nil {
		return response.Error(c, fiber.StatusBadRequest, "File is not a supported image", "INVALID_IMAGE")
	}

	url, err := storage.PutContentAddressed(c.UserContext(), h.store, "avatars", thumb, ".jpg", "image/jpeg")
	if err != nil {
		log.Printf("[PROFILE] avatar upload for %d: %v", profile.ID, err)
		return response.BadGateway(c, "Failed to store avatar")
	}

	if err := h.save(c, profile, map[string]interface{}{"avatar_url": url}); err != nil {
		return response.InternalServerError(c, "Failed to update profile")
	}
	profile.AvatarURL = url

	return response.Success(c, profile)
}

// loadOwned fetches the profile in the path for its owner or an admin. When
// ok is false the response has already been written and err must be returned.
func (h *ProfileHandler) loadOwned(c *fiber.Ctx) (*model.Profile, bool, error) {
	user, ok := middleware.GetUser(c)
	if !ok {
		return nil, false, response.Unauthorized(c, "User not authenticated")
	}
	id, err := query.PathID(c, "id")
	if err != nil {
		return nil, false, response.InvalidID(c)
	}

	var profile model.Profile
	if err := h.db.WithContext(c.UserContext()).First(&profile, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, response.NotFound(c, "Profile not found")
		}
		return nil, false, response.InternalServerError(c, "Failed to fetch profile")
	}
	if profile.UserID != user.ID && !user.IsAdmin() {
		return nil, false, response.Forbidden(c, "You can only modify your own profile")
	}
	return &profile, true, nil
}

func (h *ProfileHandler) save(c *fiber.Ctx, profile *model.Profile, updates map[string]interface{}) error {
	return h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(profile).Updates(updates).Error; err != nil {
			return err
		}
		return outbox.Add(tx, model.OutboxEntityProfile, profile.ID, model.OutboxOpUpsert, nil)
	})
}

// normalizeSkills trims, drops empties and removes case-insensitive duplicates
func normalizeSkills(skills []string) datatypes.JSONSlice[string] {
	seen := make(map[string]bool, len(skills))
	out := make(datatypes.JSONSlice[string], 0, len(skills))
	for _, s := range skills {
		s = validation.SanitizeString(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
