package joberr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfig marks caller-fixable configuration problems: invalid piece
	// bounds, missing required tracker, empty content, digest-count mismatch.
	ErrConfig = errors.New("configuration error")
	// ErrContent marks content that went missing, shrank, or became
	// unreadable after manifest construction. Fatal to the owning job.
	ErrContent = errors.New("content error")
	// ErrResource marks host resource exhaustion while servicing a job.
	ErrResource = errors.New("resource error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later outcome classification. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrContent
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsConfig reports whether err carries the configuration marker.
func IsConfig(err error) bool { return errors.Is(err, ErrConfig) }

// IsContent reports whether err carries the content marker.
func IsContent(err error) bool { return errors.Is(err, ErrContent) }

// IsResource reports whether err carries the resource marker.
func IsResource(err error) bool { return errors.Is(err, ErrResource) }

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "job failure"
	}
	return strings.Join(parts, ": ")
}
