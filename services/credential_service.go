package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services/chain"
	"github.com/NagallaThanvi/unilink/services/storage"
	"github.com/NagallaThanvi/unilink/utils/crypto"
	"github.com/NagallaThanvi/unilink/utils/metrics"
	"github.com/NagallaThanvi/unilink/utils/pdfvalidation"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

var (
	ErrCredentialNotFound    = errors.New("credential not found")
	ErrCredentialLocked      = errors.New("credential is already on chain")
	ErrChainUnavailable      = errors.New("credential registry is not configured")
	ErrStorageUnavailable    = errors.New("object storage is not configured")
	ErrHolderAddressRequired = errors.New("credential has no valid holder address")
	ErrCredentialNotIssued   = errors.New("credential has not been issued on chain")
	ErrInvalidCredentialFile = errors.New("invalid credential document")
)

// ReasonCredentialNotIssued is reported when verifying against a credential
// that has no on-chain hash yet
const ReasonCredentialNotIssued = "credential_not_issued"

// CanonicalCredential is the document hashed and published for a credential.
// Field names are part of the on-chain hash and must not change.
type CanonicalCredential struct {
	Version        int             `json:"version"`
	CredentialID   uint            `json:"credential_id"`
	Type           string          `json:"type"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	HolderUserID   uint            `json:"holder_user_id"`
	HolderAddress  string          `json:"holder_address"`
	UniversityID   uint            `json:"university_id"`
	UniversityCode string          `json:"university_code"`
	IssueDate      string          `json:"issue_date"`
	ExpiryDate     string          `json:"expiry_date,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// BuildCanonicalCredential expects University to be loaded
func BuildCanonicalCredential(c *model.Credential) CanonicalCredential {
	doc := CanonicalCredential{
		Version:        1,
		CredentialID:   c.ID,
		Type:           string(c.Type),
		Title:          c.Title,
		Description:    c.Description,
		HolderUserID:   c.UserID,
		HolderAddress:  strings.ToLower(c.HolderAddress),
		UniversityID:   c.UniversityID,
		UniversityCode: c.University.Code,
		IssueDate:      c.IssueDate.UTC().Format("2006-01-02"),
	}
	if c.ExpiryDate != nil {
		doc.ExpiryDate = c.ExpiryDate.UTC().Format("2006-01-02")
	}
	if len(c.Metadata) > 0 && json.Valid(c.Metadata) {
		doc.Metadata = json.RawMessage(c.Metadata)
	}
	return doc
}

// CredentialService runs the on-chain lifecycle of credentials. registry and
// store may be nil when the integrations are not configured.
type CredentialService struct {
	db            *gorm.DB
	registry      chain.Registry
	store         storage.ObjectStore
	gamification  *GamificationService
	notifications *NotificationService
	now           func() time.Time
}

func NewCredentialService(db *gorm.DB, registry chain.Registry, store storage.ObjectStore, gamification *GamificationService, notifications *NotificationService) *CredentialService {
	return &CredentialService{
		db:            db,
		registry:      registry,
		store:         store,
		gamification:  gamification,
		notifications: notifications,
		now:           time.Now,
	}
}

// ChainEnabled reports whether issuance and verification are available
func (s *CredentialService) ChainEnabled() bool {
	return s.registry != nil
}

func (s *CredentialService) load(ctx context.Context, id uint) (*model.Credential, error) {
	var cred model.Credential
	if err := s.db.WithContext(ctx).Preload("University").First(&cred, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return &cred, nil
}

// Hash returns the canonical document and its keccak-256 hash
func (s *CredentialService) Hash(cred *model.Credential) (common.Hash, []byte, error) {
	sum, canonical, err := crypto.HashCanonical(BuildCanonicalCredential(cred))
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("failed to hash credential: %w", err)
	}
	return common.Hash(sum), canonical, nil
}

// Issue publishes the credential metadata and submits the issuance
// transaction. The credential moves to pending; ConfirmPending settles it.
func (s *CredentialService) Issue(ctx context.Context, id uint) (*model.Credential, error) {
	if s.registry == nil {
		return nil, ErrChainUnavailable
	}
	if s.store == nil {
		return nil, ErrStorageUnavailable
	}

	cred, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(cred.HolderAddress) {
		return nil, ErrHolderAddressRequired
	}

	// claim the credential so concurrent issue calls send one transaction
	claim := s.db.WithContext(ctx).Model(&model.Credential{}).
		Where("id = ? AND chain_status IN ?", id, []model.ChainStatus{model.ChainStatusNotIssued, model.ChainStatusFailed}).
		Update("chain_status", model.ChainStatusPending)
	if claim.Error != nil {
		return nil, claim.Error
	}
	if claim.RowsAffected == 0 {
		return nil, ErrCredentialLocked
	}

	fail := func(cause error) (*model.Credential, error) {
		if err := s.db.WithContext(ctx).Model(&model.Credential{}).Where("id = ?", id).
			Update("chain_status", model.ChainStatusFailed).Error; err != nil {
			log.Printf("[CHAIN] failed to mark credential %d failed: %v", id, err)
		}
		return nil, cause
	}

	hash, canonical, err := s.Hash(cred)
	if err != nil {
		return fail(err)
	}
	uri, err := storage.UploadMetadata(ctx, s.store, canonical)
	if err != nil {
		return fail(fmt.Errorf("failed to upload credential metadata: %w", err))
	}

	txHash, err := s.registry.Issue(ctx, common.HexToAddress(cred.HolderAddress), hash, uri)
	if err != nil {
		return fail(fmt.Errorf("failed to submit issuance: %w", err))
	}
	metrics.CredentialsIssued.Inc()
	log.Printf("[CHAIN] credential %d submitted tx=%s", id, txHash.Hex())

	if err := s.db.WithContext(ctx).Model(&model.Credential{}).Where("id = ?", id).Updates(map[string]interface{}{
		"credential_hash": hash.Hex(),
		"metadata_uri":    uri,
		"tx_hash":         txHash.Hex(),
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to record issuance: %w", err)
	}
	return s.load(ctx, id)
}

// Revoke submits a revocation for an issued credential
func (s *CredentialService) Revoke(ctx context.Context, id uint) (*model.Credential, error) {
	if s.registry == nil {
		return nil, ErrChainUnavailable
	}
	cred, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cred.ChainStatus != model.ChainStatusIssued {
		return nil, ErrCredentialNotIssued
	}

	txHash, err := s.registry.Revoke(ctx, common.HexToHash(cred.CredentialHash))
	if err != nil {
		return nil, fmt.Errorf("failed to submit revocation: %w", err)
	}
	log.Printf("[CHAIN] credential %d revoked tx=%s", id, txHash.Hex())

	if err := s.db.WithContext(ctx).Model(cred).Update("chain_status", model.ChainStatusRevoked).Error; err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// ConfirmPending checks the receipts of pending issuances and returns how
// many were settled as issued or failed.
func (s *CredentialService) ConfirmPending(ctx context.Context, limit int) (int, error) {
	if s.registry == nil {
		return 0, nil
	}

	var pending []model.Credential
	if err := s.db.WithContext(ctx).
		Where("chain_status = ? AND tx_hash <> ''", model.ChainStatusPending).
		Order("id ASC").Limit(limit).Find(&pending).Error; err != nil {
		return 0, fmt.Errorf("failed to load pending credentials: %w", err)
	}

	settled := 0
	for _, cred := range pending {
		res, err := s.registry.Confirm(ctx, common.HexToHash(cred.TxHash))
		if err != nil {
			log.Printf("[CHAIN] confirm credential %d: %v", cred.ID, err)
			continue
		}
		if !res.Mined {
			continue
		}

		updates := map[string]interface{}{"block_number": res.BlockNumber}
		if res.Success {
			now := s.now()
			updates["chain_status"] = model.ChainStatusIssued
			updates["issued_at"] = now
		} else {
			updates["chain_status"] = model.ChainStatusFailed
		}
		if err := s.db.WithContext(ctx).Model(&model.Credential{}).Where("id = ?", cred.ID).Updates(updates).Error; err != nil {
			log.Printf("[CHAIN] update credential %d: %v", cred.ID, err)
			continue
		}
		settled++

		if !res.Success {
			log.Printf("[CHAIN] credential %d transaction reverted", cred.ID)
			continue
		}

		if s.notifications != nil {
			s.notifications.Notify(ctx, CreateNotificationRequest{
				UserID:   cred.UserID,
				Type:     model.NotificationTypeSuccess,
				Category: model.NotificationCategoryCredential,
				Title:    "Credential issued",
				Message:  fmt.Sprintf("%q is now recorded on chain.", cred.Title),
				Link:     fmt.Sprintf("/credentials/%d", cred.ID),
			})
		}
		if s.gamification != nil {
			uni := cred.UniversityID
			s.gamification.AwardQuietly(ctx, AwardRequest{
				UserID:        cred.UserID,
				UniversityID:  &uni,
				Action:        model.PointActionCredentialIssued,
				ReferenceType: "credential",
				ReferenceID:   cred.ID,
			})
		}
	}
	return settled, nil
}

// Verify checks a transaction against the registry. With a credential id the
// credential's stored hash must appear in the transaction's issuance event.
func (s *CredentialService) Verify(ctx context.Context, txHash string, credentialID *uint) (*chain.VerifyResult, error) {
	if s.registry == nil {
		return nil, ErrChainUnavailable
	}

	req := chain.VerifyRequest{TxHash: txHash}
	if credentialID != nil {
		cred, err := s.load(ctx, *credentialID)
		if err != nil {
			return nil, err
		}
		if cred.CredentialHash == "" {
			metrics.CredentialVerifications.WithLabelValues(ReasonCredentialNotIssued).Inc()
			return &chain.VerifyResult{TxHash: txHash, Reason: ReasonCredentialNotIssued}, nil
		}
		expected := common.HexToHash(cred.CredentialHash)
		req.ExpectedHash = &expected
	}

	res, err := s.registry.Verify(ctx, req)
	if err != nil {
		metrics.CredentialVerifications.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.CredentialVerifications.WithLabelValues(res.Reason).Inc()
	return res, nil
}

// AttachDocument validates a PDF and stores it as the credential's document
func (s *CredentialService) AttachDocument(ctx context.Context, id uint, filename string, content []byte) (*model.Credential, *pdfvalidation.ValidationResult, error) {
	if s.store == nil {
		return nil, nil, ErrStorageUnavailable
	}
	if _, err := s.load(ctx, id); err != nil {
		return nil, nil, err
	}

	result, err := pdfvalidation.ValidatePDFBytes(content, pdfvalidation.CredentialDocumentLimits)
	if err != nil {
		return nil, nil, err
	}
	if !result.Valid {
		return nil, result, fmt.Errorf("%w: %s", ErrInvalidCredentialFile, result.Error)
	}

	key := storage.GenerateKey(fmt.Sprintf("credentials/documents/%d", id), filename)
	url, err := s.store.Put(ctx, key, content, "application/pdf")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to store document: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&model.Credential{}).Where("id = ?", id).Updates(map[string]interface{}{
		"document_url":   url,
		"document_pages": result.PageCount,
	}).Error; err != nil {
		return nil, nil, err
	}

	cred, err := s.load(ctx, id)
	return cred, result, err
}
