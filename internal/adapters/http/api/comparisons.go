package api

import (
	"fmt"
	"net/http"

	"github.com/okian/charsort/internal/domain/model"
	"github.com/okian/charsort/pkg/logger"
)

// IdempotencyKeyHeader carries a client key that makes a submission
// safe to retry.
const IdempotencyKeyHeader = "Idempotency-Key"

// ComparisonsHandler serves verdict submission and undo.
type ComparisonsHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// compareRequest is the body of POST /lists/{id}/comparisons. Value is a
// pointer so a missing value is distinguishable from a tie.
type compareRequest struct {
	A     model.CharacterID `json:"a"`
	B     model.CharacterID `json:"b"`
	Value *int              `json:"value"`
}

func (c compareRequest) validate() error {
	switch {
	case c.A == 0 || c.B == 0:
		return fmt.Errorf("%w: a and b are required", ErrBadRequest)
	case c.Value == nil:
		return fmt.Errorf("%w: value is required", ErrBadRequest)
	}
	return nil
}

type ackResponse struct {
	Status string `json:"status"`
}

// HandleCompare handles POST /lists/{id}/comparisons.
func (h *ComparisonsHandler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	id, err := listID(r)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	var req compareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	rec, duplicate, err := h.deps.Register(r.Context(), id, req.A, req.B, *req.Value, r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate"})
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// HandleUndo handles POST /lists/{id}/undo.
func (h *ComparisonsHandler) HandleUndo(w http.ResponseWriter, r *http.Request) {
	id, err := listID(r)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	rec, err := h.deps.Undo(r.Context(), id)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
