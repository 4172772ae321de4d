package observability

import (
	"errors"
	"fmt"
)

// AggregateErrors collapses the non-nil errors from one operation into a
// single structured log entry and a joined error. Returns nil when nothing
// failed, so callers can pass a collected slice unconditionally.
func AggregateErrors(operation string, errs []error, fields ...Field) error {
	var kept []error
	for _, err := range errs {
		if err != nil {
			kept = append(kept, err)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	messages := make([]string, len(kept))
	for i, err := range kept {
		messages[i] = err.Error()
	}
	Log().Error("aggregated failures",
		append(fields,
			Field{Key: "operation", Value: operation},
			Field{Key: "failures", Value: len(kept)},
			Field{Key: "errors", Value: messages},
		)...)
	return fmt.Errorf("%s: %w", operation, errors.Join(kept...))
}
