package llm

import (
	"errors"

	"github.com/BaSui01/deepresearch/llm/retry"
)

// IsRetryable reports whether err carries a retryable backend *Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// unwrapRetryable strips the retry marker so callers see the original backend error.
func unwrapRetryable(err error) error {
	var re *retry.RetryableError
	if errors.As(err, &re) {
		return re.Err
	}
	return err
}
