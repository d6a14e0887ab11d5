package credential

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/query"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/NagallaThanvi/unilink/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxDocumentSize = 10 * 1024 * 1024 // 10MB

// CredentialHandler handles credential requests
type CredentialHandler struct {
	db          *gorm.DB
	credentials *services.CredentialService
	analytics   *services.AnalyticsService
	validator   *validation.Validator
}

// NewCredentialHandler creates a new credential handler
func NewCredentialHandler(db *gorm.DB, credentials *services.CredentialService) *CredentialHandler {
	return &CredentialHandler{
		db:          db,
		credentials: credentials,
		analytics:   services.NewAnalyticsService(db),
		validator:   validation.NewValidator(),
	}
}

var sortable = query.Sortable{
	"created_at": "created_at",
	"issue_date": "issue_date",
	"title":      "title",
}

var credentialTypes = []string{
	string(model.CredentialTypeDegree),
	string(model.CredentialTypeCertificate),
	string(model.CredentialTypeTranscript),
	string(model.CredentialTypeAward),
	string(model.CredentialTypeCourse),
}

var chainStatuses = []string{
	string(model.ChainStatusNotIssued),
	string(model.ChainStatusPending),
	string(model.ChainStatusIssued),
	string(model.ChainStatusFailed),
	string(model.ChainStatusRevoked),
}

// CreateCredentialRequest represents the request body for creating a credential
type CreateCredentialRequest struct {
	UserID        uint                   `json:"user_id" validate:"required"`
	UniversityID  uint                   `json:"university_id" validate:"required"`
	Title         string                 `json:"title" validate:"required,min=2,max=255"`
	Type          string                 `json:"type" validate:"required,oneof=degree certificate transcript award course"`
	Description   string                 `json:"description" validate:"max=5000"`
	IssueDate     time.Time              `json:"issue_date" validate:"required"`
	ExpiryDate    *time.Time             `json:"expiry_date"`
	Metadata      map[string]interface{} `json:"metadata"`
	HolderAddress string                 `json:"holder_address" validate:"omitempty,eth_addr"`
}

// UpdateCredentialRequest represents a partial credential update. All of
// these fields feed the credential hash.
type UpdateCredentialRequest struct {
	Title         *string                 `json:"title" validate:"omitempty,min=2,max=255"`
	Type          *string                 `json:"type" validate:"omitempty,oneof=degree certificate transcript award course"`
	Description   *string                 `json:"description" validate:"omitempty,max=5000"`
	IssueDate     *time.Time              `json:"issue_date"`
	ExpiryDate    *time.Time              `json:"expiry_date"`
	Metadata      *map[string]interface{} `json:"metadata"`
	HolderAddress *string                 `json:"holder_address" validate:"omitempty,eth_addr"`
}

// VerifyRequest is the body of POST /api/credentials/verify
type VerifyRequest struct {
	TxHash       string `json:"tx_hash" validate:"required,startswith=0x,len=66,hexadecimal"`
	CredentialID *uint  `json:"credential_id"`
}

// ListCredentials handles GET /api/credentials
func (h *CredentialHandler) ListCredentials(c *fiber.Ctx) error {
	params, err := query.ParseList(c, sortable, "created_at")
	if err != nil {
		return query.Reject(c, err)
	}
	if params.ID != nil {
		return h.respondWith(c, *params.ID)
	}

	userID, err := query.Uint(c, "user_id")
	if err != nil {
		return query.Reject(c, err)
	}
	universityID, err := query.Uint(c, "university_id")
	if err != nil {
		return query.Reject(c, err)
	}
	credType, err := query.OneOf(c, "type", credentialTypes...)
	if err != nil {
		return query.Reject(c, err)
	}
	chainStatus, err := query.OneOf(c, "chain_status", chainStatuses...)
	if err != nil {
		return query.Reject(c, err)
	}

	db := h.db.WithContext(c.UserContext()).Model(&model.Credential{})
	if userID != nil {
		db = db.Where("user_id = ?", *userID)
	}
	if universityID != nil {
		db = db.Where("university_id = ?", *universityID)
	}
	if credType != "" {
		db = db.Where("type = ?", credType)
	}
	if chainStatus != "" {
		db = db.Where("chain_status = ?", chainStatus)
	}
	db = query.Search(db, params.Search, "title", "description")

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count credentials")
	}

	var credentials []model.Credential
	if err := params.Page(db, sortable).Preload("University").Find(&credentials).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch credentials")
	}

	return response.Paginated(c, credentials, response.CalculatePagination(params.Offset, params.Limit, total))
}

// GetCredential handles GET /api/credentials/:id
func (h *CredentialHandler) GetCredential(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	return h.respondWith(c, id)
}

func (h *CredentialHandler) respondWith(c *fiber.Ctx, id uint) error {
	var cred model.Credential
	if err := h.db.WithContext(c.UserContext()).Preload("University").First(&cred, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Credential not found")
		}
		return response.InternalServerError(c, "Failed to fetch credential")
	}
	return response.Success(c, cred)
}

// CreateCredential handles POST /api/credentials
func (h *CredentialHandler) CreateCredential(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateCredentialRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Title = validation.SanitizeString(req.Title)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	// Authorization: Admin or the issuing university's admin
	if !user.ManagesUniversity(req.UniversityID) {
		return response.Forbidden(c, "Only the issuing university can create credentials")
	}

	if req.ExpiryDate != nil && !req.ExpiryDate.After(req.IssueDate) {
		return response.Error(c, fiber.StatusBadRequest, "expiry_date must be after issue_date", "INVALID_DATES")
	}

	var count int64
	if err := h.db.WithContext(c.UserContext()).Model(&model.University{}).Where("id = ?", req.UniversityID).Count(&count).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch university")
	}
	if count == 0 {
		return response.Error(c, fiber.StatusBadRequest, "University not found", "UNIVERSITY_NOT_FOUND")
	}
	if err := h.db.WithContext(c.UserContext()).Model(&model.User{}).Where("id = ?", req.UserID).Count(&count).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch holder")
	}
	if count == 0 {
		return response.Error(c, fiber.StatusBadRequest, "Holder not found", "USER_NOT_FOUND")
	}

	cred := model.Credential{
		UserID:        req.UserID,
		UniversityID:  req.UniversityID,
		IssuedBy:      user.ID,
		Title:         req.Title,
		Type:          model.CredentialType(req.Type),
		Description:   req.Description,
		IssueDate:     req.IssueDate,
		ExpiryDate:    req.ExpiryDate,
		HolderAddress: req.HolderAddress,
		ChainStatus:   model.ChainStatusNotIssued,
	}
	if req.Metadata != nil {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return response.BadRequest(c, "Invalid metadata")
		}
		cred.Metadata = datatypes.JSON(raw)
	}

	if err := h.db.WithContext(c.UserContext()).Create(&cred).Error; err != nil {
		log.Printf("[CREDENTIAL] create: %v", err)
		return response.InternalServerError(c, "Failed to create credential")
	}

	return response.Created(c, cred)
}

// UpdateCredential handles PUT /api/credentials/:id. Once a credential is
// pending or issued its hashed fields are frozen.
func (h *CredentialHandler) UpdateCredential(c *fiber.Ctx) error {
	cred, ok, err := h.loadManaged(c)
	if !ok {
		return err
	}

	var req UpdateCredentialRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = validation.SanitizeString(*req.Title)
	}
	if req.Type != nil {
		updates["type"] = *req.Type
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.IssueDate != nil {
		updates["issue_date"] = *req.IssueDate
	}
	if req.ExpiryDate != nil {
		updates["expiry_date"] = *req.ExpiryDate
	}
	if req.HolderAddress != nil {
		updates["holder_address"] = *req.HolderAddress
	}
	if req.Metadata != nil {
		raw, err := json.Marshal(*req.Metadata)
		if err != nil {
			return response.BadRequest(c, "Invalid metadata")
		}
		updates["metadata"] = datatypes.JSON(raw)
	}

	if len(updates) > 0 && cred.IsLocked() {
		return response.ConflictWithCode(c, "CREDENTIAL_LOCKED", "Credential is on chain and can no longer be edited")
	}

	if len(updates) > 0 {
		if err := h.db.WithContext(c.UserContext()).Model(cred).Updates(updates).Error; err != nil {
			log.Printf("[CREDENTIAL] update %d: %v", cred.ID, err)
			return response.InternalServerError(c, "Failed to update credential")
		}
	}

	return h.respondWith(c, cred.ID)
}

// DeleteCredential handles DELETE /api/credentials/:id
func (h *CredentialHandler) DeleteCredential(c *fiber.Ctx) error {
	cred, ok, err := h.loadManaged(c)
	if !ok {
		return err
	}
	if cred.IsLocked() {
		return response.ConflictWithCode(c, "CREDENTIAL_LOCKED", "Issued credentials must be revoked, not deleted")
	}

	if err := h.db.WithContext(c.UserContext()).Delete(cred).Error; err != nil {
		return response.InternalServerError(c, "Failed to delete credential")
	}
	return response.SuccessWithMessage(c, "Credential deleted successfully", cred)
}

// IssueCredential handles POST /api/credentials/:id/issue
func (h *CredentialHandler) IssueCredential(c *fiber.Ctx) error {
	cred, ok, err := h.loadManaged(c)
	if !ok {
		return err
	}

	issued, err := h.credentials.Issue(c.UserContext(), cred.ID)
	if err != nil {
		return h.serviceError(c, err)
	}
	return response.Accepted(c, "Credential issuance submitted", issued)
}

// RevokeCredential handles POST /api/credentials/:id/revoke
func (h *CredentialHandler) RevokeCredential(c *fiber.Ctx) error {
	cred, ok, err := h.loadManaged(c)
	if !ok {
		return err
	}

	revoked, err := h.credentials.Revoke(c.UserContext(), cred.ID)
	if err != nil {
		return h.serviceError(c, err)
	}
	return response.SuccessWithMessage(c, "Credential revoked", revoked)
}

// VerifyCredential handles POST /api/credentials/verify. A failed check is
// still a 200; the result carries ok=false and the reason.
func (h *CredentialHandler) VerifyCredential(c *fiber.Ctx) error {
	var req VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	result, err := h.credentials.Verify(c.UserContext(), req.TxHash, req.CredentialID)
	if err != nil {
		return h.serviceError(c, err)
	}

	if uid, ok := middleware.GetUserID(c); ok {
		var ref uint
		if req.CredentialID != nil {
			ref = *req.CredentialID
		}
		_ = h.analytics.LogActivity(c.UserContext(), uid, model.ActivityTypeCredentialCheck, "credential", ref, c.IP(), c.Get(fiber.HeaderUserAgent))
	}

	return response.Success(c, result)
}

// UploadDocument handles POST /api/credentials/:id/document
func (h *CredentialHandler) UploadDocument(c *fiber.Ctx) error {
	cred, ok, err := h.loadManaged(c)
	if !ok {
		return err
	}

	file, err := c.FormFile("document")
	if err != nil {
		return response.BadRequest(c, "document file is required")
	}
	if file.Size > maxDocumentSize {
		return response.BadRequest(c, "Document exceeds maximum allowed size of 10MB")
	}

	f, err := file.Open()
	if err != nil {
		return response.InternalServerError(c, "Failed to open file")
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxDocumentSize+1))
	if err != nil {
		return response.InternalServerError(c, "Failed to read file")
	}

	updated, result, err := h.credentials.AttachDocument(c.UserContext(), cred.ID, file.Filename, content)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentialFile) && result != nil {
			return response.ErrorWithDetails(c, fiber.StatusBadRequest, result.Error, "INVALID_DOCUMENT", fiber.Map{
				"file_size":  result.FileSize,
				"page_count": result.PageCount,
			})
		}
		return h.serviceError(c, err)
	}

	return response.Success(c, fiber.Map{
		"credential": updated,
		"document": fiber.Map{
			"page_count": result.PageCount,
			"file_size":  result.FileSize,
			"preview":    result.Preview,
		},
	})
}

// loadManaged fetches the credential in the path for an admin of its issuer
func (h *CredentialHandler) loadManaged(c *fiber.Ctx) (*model.Credential, bool, error) {
	user, ok := middleware.GetUser(c)
	if !ok {
		return nil, false, response.Unauthorized(c, "User not authenticated")
	}
	id, err := query.PathID(c, "id")
	if err != nil {
		return nil, false, response.InvalidID(c)
	}

	var cred model.Credential
	if err := h.db.WithContext(c.UserContext()).First(&cred, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, response.NotFound(c, "Credential not found")
		}
		return nil, false, response.InternalServerError(c, "Failed to fetch credential")
	}
	if !user.ManagesUniversity(cred.UniversityID) {
		return nil, false, response.Forbidden(c, "Only the issuing university can manage this credential")
	}
	return &cred, true, nil
}

func (h *CredentialHandler) serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrCredentialNotFound):
		return response.NotFound(c, "Credential not found")
	case errors.Is(err, services.ErrCredentialLocked):
		return response.ConflictWithCode(c, "CREDENTIAL_LOCKED", "Credential is already pending or issued")
	case errors.Is(err, services.ErrCredentialNotIssued):
		return response.ConflictWithCode(c, "CREDENTIAL_NOT_ISSUED", "Credential has not been issued on chain")
	case errors.Is(err, services.ErrHolderAddressRequired):
		return response.Error(c, fiber.StatusBadRequest, "Credential needs a valid holder_address before issuing", "HOLDER_ADDRESS_REQUIRED")
	case errors.Is(err, services.ErrChainUnavailable):
		return response.Error(c, fiber.StatusServiceUnavailable, "Credential registry is not configured", "CHAIN_UNAVAILABLE")
	case errors.Is(err, services.ErrStorageUnavailable):
		return response.Error(c, fiber.StatusServiceUnavailable, "Object storage is not configured", "STORAGE_UNAVAILABLE")
	}
	log.Printf("[CREDENTIAL] %s %s: %v", c.Method(), c.Path(), err)
	return response.BadGateway(c, "Credential registry request failed")
}
