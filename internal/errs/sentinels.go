// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

var (
	// ErrStudentNotFound indicates a package build was requested for an unknown student.
	ErrStudentNotFound = errors.New("student not found")

	// ErrLessonNotFound indicates the requested lesson does not exist.
	ErrLessonNotFound = errors.New("lesson not found")

	// ErrPackageNotFound indicates the requested package is not in the registry.
	ErrPackageNotFound = errors.New("package not found")

	// ErrInsufficientStorage indicates the client lacks quota for a download.
	ErrInsufficientStorage = errors.New("insufficient storage")

	// ErrDownloadInProgress indicates a duplicate download request for a package.
	ErrDownloadInProgress = errors.New("download already in progress")

	// ErrNotCached indicates neither network nor cache could satisfy a request.
	ErrNotCached = errors.New("content not available offline")
)
