// Package constants provides shared constants used across the codebase.
package constants

// File upload constants
const (
	// MaxProbeSize is the maximum accepted probe image upload in bytes (10MB)
	MaxProbeSize = 10 << 20

	// MultipartOverhead is the extra body allowance for multipart boundaries and part headers
	MultipartOverhead = 1 << 20
)

// Subject photo URL prefix used in API payloads
const SubjectPhotoPath = "/api/v1/subjects/"
