package utils

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
)

const (
	// MaxProofSize is the payment-proof upload ceiling, 5MB in bytes
	MaxProofSize = 5 * 1024 * 1024
)

// Allowed payment-proof formats (bank/wallet transfer slips).
var allowedProofFormats = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// FileUploadError represents a file upload validation error
type FileUploadError struct {
	Code    string
	Message string
}

func (e *FileUploadError) Error() string {
	return e.Message
}

// ValidateProofFile validates the uploaded payment-proof format and size
func ValidateProofFile(fileHeader *multipart.FileHeader) error {
	// Check file size
	if fileHeader.Size > MaxProofSize {
		return &FileUploadError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxProofSize/(1024*1024)),
		}
	}

	// Check file extension
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if _, ok := allowedProofFormats[ext]; !ok {
		return &FileUploadError{
			Code:    "INVALID_FILE_FORMAT",
			Message: "Only .png, .jpg and .jpeg files are allowed",
		}
	}

	return nil
}

// ProofContentType returns the MIME type for an allowed proof filename.
// Falls back to application/octet-stream for unknown extensions.
func ProofContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ct, ok := allowedProofFormats[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
