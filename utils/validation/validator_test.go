package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,university_code"`
	Type  string `json:"type" validate:"omitempty,oneof=degree certificate"`
}

func TestValidateStructUsesJSONFieldNames(t *testing.T) {
	v := NewValidator()

	err := v.ValidateStruct(sampleRequest{Email: "nope", Code: "mit", Type: "badge"})
	require.Error(t, err)

	details := FormatValidationErrors(err)
	assert.Equal(t, "Invalid email format", details["email"])
	assert.Contains(t, details["code"], "uppercase")
	assert.Equal(t, "type must be one of: degree certificate", details["type"])
}

func TestValidateStructAcceptsValidInput(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.ValidateStruct(sampleRequest{Email: "a@b.edu", Code: "IIT-B", Type: "degree"}))
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{"too short", "ab1", false},
		{"no digit", "abcdefghij", false},
		{"no letter", "1234567890", false},
		{"ok", "alumni2024", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, _ := ValidatePassword(tt.password)
			assert.Equal(t, tt.valid, ok)
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "jane@uni.edu", NormalizeEmail("  Jane@Uni.EDU "))
}
