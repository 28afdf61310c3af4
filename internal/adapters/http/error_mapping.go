package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrNotConfigured):
		return http.StatusNotImplemented
	case domain.IsKind(err, domain.ErrSchemaViolation):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrProviderFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// newErrorResponse keeps the raw model output of a schema violation in the
// detail so operators can see what the model actually returned.
func newErrorResponse(r *http.Request, err error) errorResponse {
	resp := errorResponse{
		Error:     err.Error(),
		RequestID: requestIDFromContext(r.Context()),
	}
	if genErr, ok := domain.AsGenerationError(err); ok {
		resp.Error = "estimate generation failed: " + string(genErr.Kind)
		resp.Detail = genErr.Error()
	}
	return resp
}
