package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
)

// ClassifyHTTPStatus is the shared policy for REST providers: throttling and
// server errors are retried and count against the breaker, client errors do
// neither.
func ClassifyHTTPStatus(status int) ErrorClassification {
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= http.StatusInternalServerError:
		return ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
}

// ClassifyTransport handles errors that never reached an HTTP status. A
// canceled or expired caller context is final and does not trip the breaker.
func ClassifyTransport(err error) ErrorClassification {
	if errors.Is(err, context.Canceled) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return ErrorClassification{Retryable: false, RecordFailure: true}
}

// MarkTemporary tags err with domain.ErrTemporary when the breaker rejected
// the call or classifier would have retried it, so inbound adapters can
// answer 503. Everything else is returned with the operation prefixed.
func MarkTemporary(operation string, err error, classifier ErrorClassifier) error {
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrTemporary):
		return err
	case IsCircuitOpen(err):
		return domain.WrapError(domain.ErrTemporary, operation, err)
	case classifier != nil && classifier(err).Retryable:
		return domain.WrapError(domain.ErrTemporary, operation, err)
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
