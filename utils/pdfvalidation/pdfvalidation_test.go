package pdfvalidation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePDFBytesRejectsNonPDF(t *testing.T) {
	result, err := ValidatePDFBytes([]byte("hello world"), CredentialDocumentLimits)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Error, "missing PDF header")
}

func TestValidatePDFBytesRejectsOversize(t *testing.T) {
	limits := PDFLimits{MaxFileSizeMB: 0, MaxPages: 1, DocumentTypeName: "test"}
	result, err := ValidatePDFBytes([]byte("%PDF-1.4 ..."), limits)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Error, "maximum allowed size")
}

func TestValidatePDFBytesRejectsTruncatedPDF(t *testing.T) {
	result, err := ValidatePDFBytes([]byte("%PDF-1.4\n%%EOF\n"), CredentialDocumentLimits)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Error)
}

func TestSanitizePDFTrimsTrailingGarbage(t *testing.T) {
	in := []byte("%PDF-1.4 body %%EOF\r\ngarbage")
	assert.Equal(t, "%PDF-1.4 body %%EOF\r\n", string(sanitizePDF(in)))
}
