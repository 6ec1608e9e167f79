package analysis

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"motion-scorer/internal/apperr"
)

// Multipart field names accepted by POST /analyses.
const (
	FieldVideo    = "uploaded_video"
	FieldExercise = "exercise"
	FieldTitle    = "title"
	FieldWeight   = "weight"
)

// DefaultMaxUploadBytes bounds the request body when no limit is configured.
const DefaultMaxUploadBytes = 200 << 20

// multipart parts beyond this size spill to temporary files.
const multipartMemory = 32 << 20

// Handler exposes analysis HTTP endpoints using go-chi.
type Handler struct {
	svc            *Service
	log            *slog.Logger
	maxUploadBytes int64
}

// NewHandler returns a Handler that uses the given Service and Logger. A
// maxUploadBytes <= 0 means DefaultMaxUploadBytes.
func NewHandler(svc *Service, log *slog.Logger, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{svc: svc, log: log, maxUploadBytes: maxUploadBytes}
}

// Routes mounts the analysis endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/analyses", h.Analyze)
	r.Get("/analyses", h.ListAnalyses)
	r.Get("/analyses/{id}", h.GetAnalysis)
	r.Get("/exercises", h.ListExercises)
	r.Post("/admin/references/reload", h.ReloadReferences)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// Analyze handles POST /analyses.
// Body: multipart form with uploaded_video (file), exercise or title, weight (kg).
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.writeError(w, apperr.Wrap(err, apperr.KindInput, "request must be a multipart form within %d MB", h.maxUploadBytes>>20))
		return
	}
	defer r.MultipartForm.RemoveAll()

	exercise := strings.TrimSpace(r.FormValue(FieldExercise))
	if exercise == "" {
		exercise = strings.TrimSpace(r.FormValue(FieldTitle))
	}
	if exercise == "" {
		h.writeError(w, apperr.New(apperr.KindInput, "%s is required", FieldExercise))
		return
	}

	weight, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue(FieldWeight)), 64)
	if err != nil {
		h.writeError(w, apperr.New(apperr.KindInput, "%s must be a number of kilograms", FieldWeight))
		return
	}

	file, header, err := r.FormFile(FieldVideo)
	if err != nil {
		h.writeError(w, apperr.New(apperr.KindInput, "%s file is required", FieldVideo))
		return
	}
	defer file.Close()

	path, err := spool(file, header)
	if err != nil {
		h.writeError(w, apperr.Wrap(err, apperr.KindInternal, "could not store upload"))
		return
	}
	defer os.Remove(path)

	rec, err := h.svc.Analyze(r.Context(), Upload{
		Path:      path,
		VideoName: header.Filename,
		Exercise:  exercise,
		WeightKg:  weight,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// GetAnalysis handles GET /analyses/{id}.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := AnalysisID(chi.URLParam(r, "id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListAnalyses handles GET /analyses?limit=N.
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.writeError(w, apperr.New(apperr.KindInput, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	recs, err := h.svc.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": recs})
}

// ListExercises handles GET /exercises.
func (h *Handler) ListExercises(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Exercises())
}

// ReloadReferences handles POST /admin/references/reload.
func (h *Handler) ReloadReferences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	summary, err := h.svc.ReloadReferences()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.log.Info("reference corpus reloaded",
		slog.String("corpus_version", summary.Version),
		slog.Int("reference_sequences", summary.Sequences))
	writeJSON(w, http.StatusOK, summary)
}

// StatusFor maps an error kind to an HTTP status code.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInput:
		return http.StatusBadRequest
	case apperr.KindNotFound, apperr.KindNoReferenceData:
		return http.StatusNotFound
	case apperr.KindExtraction:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
	}

	msg := apperr.MessageOf(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", slog.String("kind", string(kind)), slog.String("error", err.Error()))
		msg = "internal error"
	} else {
		h.log.Debug("request rejected", slog.String("kind", string(kind)), slog.String("error", err.Error()))
	}

	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// spool copies an uploaded file to a temporary path the decoder can open.
// The extension is kept so the container format can be sniffed.
func spool(file multipart.File, header *multipart.FileHeader) (string, error) {
	tmp, err := os.CreateTemp("", "upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
