package analysis

import (
	"errors"
	"fmt"
)

// ErrInsufficientDetection is matched by every InsufficientDetectionError.
var ErrInsufficientDetection = errors.New("insufficient pose detection")

// InsufficientDetectionError reports that too few frames had a detected body.
type InsufficientDetectionError struct {
	Detected int
	Total    int
	Required int
}

func (e *InsufficientDetectionError) Error() string {
	return fmt.Sprintf("insufficient pose detection: %d/%d frames detected, need at least %d",
		e.Detected, e.Total, e.Required)
}

// Is reports whether target is ErrInsufficientDetection.
func (e *InsufficientDetectionError) Is(target error) bool {
	return target == ErrInsufficientDetection
}
