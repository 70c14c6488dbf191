package feature

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is; the concrete types below carry detail.
var (
	ErrValidation         = errors.New("validation error")
	ErrCorrupted          = errors.New("corrupted state")
	ErrUnsupportedVersion = errors.New("unsupported state version")
	ErrCapacity           = errors.New("capacity exceeded")
)

// ValidationError names the feature (or patch position) and field that failed.
type ValidationError struct {
	ID     string
	Patch  int // 1-based position in the update document; 0 when not applicable
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	subject := "update"
	switch {
	case e.ID != "":
		subject = fmt.Sprintf("feature %q", e.ID)
	case e.Patch > 0:
		subject = fmt.Sprintf("patch #%d", e.Patch)
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", subject, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", subject, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// CapacityError reports a documented limit that would be exceeded.
type CapacityError struct {
	Limit  string
	Max    int
	Actual int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity exceeded: %s is %d (max %d)", e.Limit, e.Actual, e.Max)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacity
}

// VersionError is returned for a state envelope written by an unknown format version.
// It matches both ErrUnsupportedVersion and ErrCorrupted.
type VersionError struct {
	Version   uint16
	Supported uint16
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("unsupported state version %d (this build reads version %d)", e.Version, e.Supported)
}

func (e *VersionError) Is(target error) bool {
	return target == ErrUnsupportedVersion || target == ErrCorrupted
}
