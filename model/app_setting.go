package model

import (
	"encoding/json"
	"strconv"
	"time"

	"gorm.io/gorm"
)

// Setting value types
const (
	SettingTypeString = "string"
	SettingTypeInt    = "int"
	SettingTypeBool   = "bool"
	SettingTypeJSON   = "json"
)

// AppSetting is a runtime-tunable platform setting such as point values or
// feature flags.
type AppSetting struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Key         string         `gorm:"uniqueIndex;not null" json:"key"`
	Value       string         `gorm:"type:text;not null" json:"value"`
	Type        string         `gorm:"type:varchar(20);default:'string'" json:"type"`
	Description string         `gorm:"type:text" json:"description"`
	IsPublic    bool           `gorm:"default:false" json:"is_public"` // If true, can be read without auth
	Category    string         `gorm:"type:varchar(50);index" json:"category"`
	UpdatedBy   *uint          `json:"updated_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for AppSetting
func (AppSetting) TableName() string {
	return "app_settings"
}

// ValueMatchesType reports whether Value parses as the declared Type
func (s *AppSetting) ValueMatchesType() bool {
	switch s.Type {
	case "", SettingTypeString:
		return true
	case SettingTypeInt:
		_, err := strconv.Atoi(s.Value)
		return err == nil
	case SettingTypeBool:
		_, err := strconv.ParseBool(s.Value)
		return err == nil
	case SettingTypeJSON:
		return json.Valid([]byte(s.Value))
	}
	return false
}

// IntValue returns the setting as an int, or fallback when it does not parse
func (s *AppSetting) IntValue(fallback int) int {
	v, err := strconv.Atoi(s.Value)
	if err != nil {
		return fallback
	}
	return v
}
