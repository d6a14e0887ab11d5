package pdfvalidation

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFLimits defines the validation limits for PDF uploads
type PDFLimits struct {
	MaxFileSizeMB    int    // Maximum file size in MB
	MaxPages         int    // Maximum number of pages
	DocumentTypeName string // For error messages (e.g., "transcript")
}

// CredentialDocumentLimits apply to scanned diplomas and transcripts
var CredentialDocumentLimits = PDFLimits{
	MaxFileSizeMB:    10,
	MaxPages:         20,
	DocumentTypeName: "credential document",
}

// previewLength caps the extracted text preview
const previewLength = 500

// ValidationResult contains the result of PDF validation
type ValidationResult struct {
	Valid     bool
	PageCount int
	FileSize  int64
	Preview   string // Plain text of the first page, truncated
	Error     string
}

// ValidatePDFBytes validates PDF content against the given limits. A
// non-nil error means the check itself failed; an invalid document is
// reported through ValidationResult.Error.
func ValidatePDFBytes(content []byte, limits PDFLimits) (*ValidationResult, error) {
	result := &ValidationResult{
		FileSize: int64(len(content)),
	}

	maxSize := int64(limits.MaxFileSizeMB) * 1024 * 1024
	if result.FileSize > maxSize {
		result.Error = fmt.Sprintf("File size exceeds maximum allowed size of %dMB", limits.MaxFileSizeMB)
		return result, nil
	}

	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		result.Error = "Invalid PDF file: missing PDF header"
		return result, nil
	}

	content = sanitizePDF(content)
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		result.Error = "Failed to read PDF"
		return result, nil
	}

	result.PageCount = reader.NumPage()

	if result.PageCount == 0 {
		result.Error = "PDF has no pages"
		return result, nil
	}

	if result.PageCount > limits.MaxPages {
		result.Error = fmt.Sprintf("PDF has %d pages, which exceeds the maximum of %d pages for %s",
			result.PageCount, limits.MaxPages, limits.DocumentTypeName)
		return result, nil
	}

	result.Preview = firstPageText(reader)
	result.Valid = true
	return result, nil
}

// firstPageText extracts a short preview; extraction failures yield ""
func firstPageText(reader *pdf.Reader) (text string) {
	defer func() {
		// the pdf package panics on some malformed content streams
		if recover() != nil {
			text = ""
		}
	}()

	page := reader.Page(1)
	if page.V.IsNull() {
		return ""
	}
	plain, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	plain = strings.Join(strings.Fields(plain), " ")
	if len(plain) > previewLength {
		plain = plain[:previewLength]
	}
	return plain
}

// sanitizePDF removes trailing garbage data after the last %%EOF marker
func sanitizePDF(content []byte) []byte {
	eofMarker := []byte("%%EOF")
	lastEOF := bytes.LastIndex(content, eofMarker)
	if lastEOF == -1 {
		return content
	}

	pdfEnd := lastEOF + len(eofMarker)
	for pdfEnd < len(content) && (content[pdfEnd] == '\n' || content[pdfEnd] == '\r') {
		pdfEnd++
	}
	return content[:pdfEnd]
}
