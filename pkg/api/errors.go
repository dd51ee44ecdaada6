package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/foiacase/caseruntime/pkg/store"
)

// errorResponse is the uniform JSON error body, per spec.md §7's
// human-visible-failure contract.
type errorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// mapStoreError translates a store/runengine error into an HTTP status and
// writes the response, following the teacher's pkg/api/errors.go
// mapServiceError shape: client-caused failures are 4xx, anything else is
// a 500 with the underlying error logged separately by the caller.
func mapStoreError(c *gin.Context, err error) {
	var ve *store.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, errorResponse{Error: ve.Message, Field: ve.Field})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, store.ErrAlreadyExists):
		c.JSON(http.StatusConflict, errorResponse{Error: "already exists"})
	case errors.Is(err, store.ErrActiveRunExists):
		c.JSON(http.StatusConflict, errorResponse{Error: "case already has an active run"})
	case errors.Is(err, store.ErrDecisionAlreadyReceived):
		c.JSON(http.StatusConflict, errorResponse{Error: "decision already recorded for proposal"})
	case errors.Is(err, store.ErrConcurrentModification):
		c.JSON(http.StatusConflict, errorResponse{Error: "concurrent modification, retry"})
	case errors.Is(err, store.ErrLockHeld):
		c.JSON(http.StatusConflict, errorResponse{Error: "case lock held by another run"})
	default:
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
