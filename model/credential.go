package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CredentialType is the kind of academic record
type CredentialType string

const (
	CredentialTypeDegree      CredentialType = "degree"
	CredentialTypeCertificate CredentialType = "certificate"
	CredentialTypeTranscript  CredentialType = "transcript"
	CredentialTypeAward       CredentialType = "award"
	CredentialTypeCourse      CredentialType = "course"
)

// ChainStatus tracks a credential's on-chain lifecycle
type ChainStatus string

const (
	ChainStatusNotIssued ChainStatus = "not_issued"
	ChainStatusPending   ChainStatus = "pending"
	ChainStatusIssued    ChainStatus = "issued"
	ChainStatusFailed    ChainStatus = "failed"
	ChainStatusRevoked   ChainStatus = "revoked"
)

// Credential is an academic record issued by a university to one of its users
type Credential struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UserID         uint           `gorm:"index;not null" json:"user_id"`
	UniversityID   uint           `gorm:"index;not null" json:"university_id"`
	IssuedBy       uint           `gorm:"index" json:"issued_by"`
	Title          string         `gorm:"type:varchar(255);not null" json:"title"`
	Type           CredentialType `gorm:"type:varchar(20);not null;index" json:"type"`
	Description    string         `gorm:"type:text" json:"description"`
	IssueDate      time.Time      `json:"issue_date"`
	ExpiryDate     *time.Time     `json:"expiry_date,omitempty"`
	Metadata       datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	HolderAddress  string         `gorm:"type:varchar(42)" json:"holder_address,omitempty"`
	CredentialHash string         `gorm:"type:varchar(66);index" json:"credential_hash,omitempty"`
	MetadataURI    string         `gorm:"type:varchar(512)" json:"metadata_uri,omitempty"`
	TxHash         string         `gorm:"type:varchar(66);index" json:"tx_hash,omitempty"`
	BlockNumber    uint64         `json:"block_number,omitempty"`
	ChainStatus    ChainStatus    `gorm:"type:varchar(20);default:'not_issued';index" json:"chain_status"`
	IssuedAt       *time.Time     `json:"issued_at,omitempty"`
	DocumentURL    string         `gorm:"type:varchar(512)" json:"document_url,omitempty"`
	DocumentPages  int            `json:"document_pages,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User       User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	University University `gorm:"foreignKey:UniversityID;constraint:OnDelete:CASCADE" json:"university,omitempty"`
}

// IsLocked reports whether the hashed fields can no longer change
func (c *Credential) IsLocked() bool {
	return c.ChainStatus == ChainStatusPending || c.ChainStatus == ChainStatusIssued
}

// IsValidCredentialType checks a credential type string
func IsValidCredentialType(t string) bool {
	switch CredentialType(t) {
	case CredentialTypeDegree, CredentialTypeCertificate, CredentialTypeTranscript,
		CredentialTypeAward, CredentialTypeCourse:
		return true
	}
	return false
}
