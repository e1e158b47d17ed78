package database

import (
	"context"
	"errors"
)

var (
	postgresGalleryReader func() GalleryReader
	postgresVisitWriter   func() VisitWriter
	postgresStaffReader   func() StaffReader
	externalGalleryReader func() GalleryReader // Enrollment DB outside PostgreSQL (optional)
	postgresInitialized   bool
)

var errNotInitialized = errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the serve and CLI commands to avoid import cycles.
func RegisterPostgresBackend(
	gallery func() GalleryReader,
	visits func() VisitWriter,
	staff func() StaffReader,
) {
	postgresGalleryReader = gallery
	postgresVisitWriter = visits
	postgresStaffReader = staff
	postgresInitialized = true
}

// RegisterExternalGallery registers a gallery reader that takes precedence over PostgreSQL.
func RegisterExternalGallery(gallery func() GalleryReader) {
	externalGalleryReader = gallery
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	return postgresInitialized
}

// GetGalleryReader returns the external gallery if registered, otherwise the PostgreSQL one
func GetGalleryReader(ctx context.Context) (GalleryReader, error) {
	if externalGalleryReader != nil {
		return externalGalleryReader(), nil
	}
	if !postgresInitialized {
		return nil, errNotInitialized
	}
	if postgresGalleryReader == nil {
		return nil, errors.New("PostgreSQL gallery reader not registered")
	}
	return postgresGalleryReader(), nil
}

// GetVisitWriter returns a VisitWriter from the PostgreSQL backend
func GetVisitWriter(ctx context.Context) (VisitWriter, error) {
	if !postgresInitialized {
		return nil, errNotInitialized
	}
	if postgresVisitWriter == nil {
		return nil, errors.New("PostgreSQL visit writer not registered")
	}
	return postgresVisitWriter(), nil
}

// GetVisitReader returns a VisitReader from the PostgreSQL backend
func GetVisitReader(ctx context.Context) (VisitReader, error) {
	return GetVisitWriter(ctx)
}

// GetStaffReader returns a StaffReader from the PostgreSQL backend
func GetStaffReader(ctx context.Context) (StaffReader, error) {
	if !postgresInitialized {
		return nil, errNotInitialized
	}
	if postgresStaffReader == nil {
		return nil, errors.New("PostgreSQL staff reader not registered")
	}
	return postgresStaffReader(), nil
}

// resetForTest clears all registrations.
func resetForTest() {
	postgresGalleryReader = nil
	postgresVisitWriter = nil
	postgresStaffReader = nil
	externalGalleryReader = nil
	postgresInitialized = false
}
