package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"condense/internal/aggregate"
	"condense/internal/docstore"
	"condense/internal/service"
	"condense/internal/store"
	"condense/internal/types"
)

// apiServer exposes the service as a JSON API.
type apiServer struct {
	svc    *service.Service
	logger zerolog.Logger
}

func newAPIServer(svc *service.Service, logger zerolog.Logger) *apiServer {
	return &apiServer{svc: svc, logger: logger}
}

func buildRouter(s *apiServer) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/documents", s.handleIngest).Methods(http.MethodPost)
	api.HandleFunc("/documents", s.handleListDocuments).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", s.handleGetDocument).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", s.handleDeleteDocument).Methods(http.MethodDelete)
	api.HandleFunc("/documents/{id}/segments", s.handleListSegments).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}/summarize", s.handleSummarize).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/summaries", s.handleCurrentSummaries).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}/summaries/{kind}", s.handleCurrentSummary).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}/summaries/{kind}/versions", s.handleSummaryVersions).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}/summaries/{kind}/regenerate", s.handleRegenerate).Methods(http.MethodPost)

	api.HandleFunc("/summaries/{id}", s.handleEditSummary).Methods(http.MethodPatch)
	api.HandleFunc("/summaries/{id}", s.handleDeleteSummary).Methods(http.MethodDelete)
	api.HandleFunc("/summaries/{id}/rating", s.handleRateSummary).Methods(http.MethodPost)
	api.HandleFunc("/summaries/{id}/concepts", s.handleRecordConcepts).Methods(http.MethodPost)

	api.HandleFunc("/collections", s.handleCreateCollection).Methods(http.MethodPost)
	api.HandleFunc("/collections", s.handleListCollections).Methods(http.MethodGet)
	api.HandleFunc("/collections/{id}", s.handleGetCollection).Methods(http.MethodGet)
	api.HandleFunc("/collections/{id}", s.handleDeleteCollection).Methods(http.MethodDelete)
	api.HandleFunc("/collections/{id}/sources", s.handleCollectionSources).Methods(http.MethodGet)
	api.HandleFunc("/collections/{id}/sources/{sourceId}", s.handleAddSource).Methods(http.MethodPut)
	api.HandleFunc("/collections/{id}/sources/{sourceId}", s.handleRemoveSource).Methods(http.MethodDelete)
	api.HandleFunc("/collections/{id}/aggregate", s.handleAggregate).Methods(http.MethodPost)
	api.HandleFunc("/collections/{id}/duplicate-concepts", s.handleDuplicateConcepts).Methods(http.MethodGet)

	// Progress feeds for background runs.
	api.HandleFunc("/watch/{runId}", s.handleWatchSSE).Methods(http.MethodGet)
	api.HandleFunc("/progress/ws", s.handleProgressWS).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *apiServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, docstore.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalid),
		errors.Is(err, service.ErrEmptyDocument),
		errors.Is(err, aggregate.ErrNoSummaries):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return false
	}
	return true
}

func (s *apiServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	doc, segs, err := s.svc.Ingest(r.Context(), in.Title, in.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	doc.Text = ""
	writeJSON(w, http.StatusCreated, map[string]any{
		"document": doc,
		"segments": segs,
	})
}

func (s *apiServer) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.svc.Documents(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *apiServer) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.Document(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *apiServer) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteDocument(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleListSegments(w http.ResponseWriter, r *http.Request) {
	segs, err := s.svc.Segments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"segments": segs})
}

func (s *apiServer) handleSummarize(w http.ResponseWriter, r *http.Request) {
	runID, err := s.svc.Summarize(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID})
}

func (s *apiServer) handleCurrentSummaries(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.CurrentSummaries(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": out})
}

func summaryKind(r *http.Request) (types.SummaryKind, bool) {
	kind := types.SummaryKind(mux.Vars(r)["kind"])
	return kind, kind.Valid()
}

func (s *apiServer) handleCurrentSummary(w http.ResponseWriter, r *http.Request) {
	kind, ok := summaryKind(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown summary type"})
		return
	}
	sum, err := s.svc.CurrentSummary(r.Context(), mux.Vars(r)["id"], kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *apiServer) handleSummaryVersions(w http.ResponseWriter, r *http.Request) {
	kind, ok := summaryKind(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown summary type"})
		return
	}
	out, err := s.svc.SummaryVersions(r.Context(), mux.Vars(r)["id"], kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": out})
}

func (s *apiServer) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	kind, ok := summaryKind(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown summary type"})
		return
	}
	sum, err := s.svc.Regenerate(r.Context(), mux.Vars(r)["id"], kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}

func (s *apiServer) handleEditSummary(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	sum, err := s.svc.EditSummary(r.Context(), mux.Vars(r)["id"], in.Title, in.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *apiServer) handleDeleteSummary(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteSummary(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleRateSummary(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Rating int `json:"rating"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if err := s.svc.RateSummary(r.Context(), mux.Vars(r)["id"], in.Rating); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleRecordConcepts(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Concepts []types.Concept `json:"concepts"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if err := s.svc.RecordConcepts(r.Context(), mux.Vars(r)["id"], in.Concepts); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	col, err := s.svc.CreateCollection(r.Context(), in.Name, in.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, col)
}

func (s *apiServer) handleListCollections(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Collections(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": out})
}

func (s *apiServer) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	col, err := s.svc.Collection(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

func (s *apiServer) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteCollection(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleCollectionSources(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.CollectionSources(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}

func (s *apiServer) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Sequence int     `json:"sequence"`
		Weight   float64 `json:"weight"`
	}
	in.Weight = 1
	if !decodeBody(w, r, &in) {
		return
	}
	vars := mux.Vars(r)
	if err := s.svc.AddToCollection(r.Context(), vars["id"], vars["sourceId"], in.Sequence, in.Weight); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleRemoveSource(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.svc.RemoveFromCollection(r.Context(), vars["id"], vars["sourceId"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleAggregate(w http.ResponseWriter, r *http.Request) {
	in := struct {
		WeightByRecency          bool `json:"weightByRecency"`
		IncludeSourceAttribution bool `json:"includeSourceAttribution"`
		MaxKeyPoints             int  `json:"maxKeyPoints"`
		WithEnrichments          bool `json:"withEnrichments"`
	}{
		IncludeSourceAttribution: true,
		WithEnrichments:          true,
	}
	if r.ContentLength > 0 && !decodeBody(w, r, &in) {
		return
	}
	opts := aggregate.Options{
		WeightByRecency:          in.WeightByRecency,
		IncludeSourceAttribution: in.IncludeSourceAttribution,
		MaxKeyPoints:             in.MaxKeyPoints,
	}
	res, err := s.svc.AggregateCollection(r.Context(), mux.Vars(r)["id"], opts, in.WithEnrichments)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *apiServer) handleDuplicateConcepts(w http.ResponseWriter, r *http.Request) {
	groups, err := s.svc.DuplicateConcepts(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"duplicates": groups})
}
