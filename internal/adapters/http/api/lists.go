package api

import (
	"net/http"
	"strings"

	"github.com/okian/charsort/internal/domain/model"
	"github.com/okian/charsort/pkg/logger"
)

// ListsHandler serves list reads and seeding.
type ListsHandler struct {
	deps   Dependencies
	logger logger.Logger
}

type createListRequest struct {
	Title     string `json:"title"`
	Algorithm string `json:"algorithm"`
}

type addCharacterRequest struct {
	Name   string `json:"name"`
	Fandom string `json:"fandom"`
}

type listsResponse struct {
	Lists []model.CharacterList `json:"lists"`
}

// HandleLists handles GET /lists.
func (h *ListsHandler) HandleLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.deps.Lists(r.Context())
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	if lists == nil {
		lists = []model.CharacterList{}
	}
	writeJSON(w, http.StatusOK, listsResponse{Lists: lists})
}

// HandleCreateList handles POST /lists. The algorithm defaults to
// insertion sort.
func (h *ListsHandler) HandleCreateList(w http.ResponseWriter, r *http.Request) {
	var req createListRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	alg := model.InsertionSort
	if strings.TrimSpace(req.Algorithm) != "" {
		parsed, err := model.ParseAlgorithm(req.Algorithm)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		alg = parsed
	}
	l, err := h.deps.CreateList(r.Context(), req.Title, alg)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// HandleAddCharacter handles POST /lists/{id}/characters.
func (h *ListsHandler) HandleAddCharacter(w http.ResponseWriter, r *http.Request) {
	id, err := listID(r)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	var req addCharacterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	c, err := h.deps.AddCharacter(r.Context(), id, req.Name, req.Fandom)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleSummary handles GET /lists/{id}.
func (h *ListsHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	id, err := listID(r)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	view, err := h.deps.Summary(r.Context(), id)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleNext handles GET /lists/{id}/next. 204 means nothing left to ask.
func (h *ListsHandler) HandleNext(w http.ResponseWriter, r *http.Request) {
	id, err := listID(r)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	m, ok, err := h.deps.Next(r.Context(), id)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleGraph handles GET /lists/{id}/graph.
func (h *ListsHandler) HandleGraph(w http.ResponseWriter, r *http.Request) {
	id, err := listID(r)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	g, err := h.deps.Graph(r.Context(), id)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
