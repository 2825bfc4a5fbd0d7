// Package handlers adapts the pipeline services to HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/cors"

	"github.com/Lllllllleong/solvencyflow/internal/models"
	"github.com/Lllllllleong/solvencyflow/internal/services"
	"github.com/Lllllllleong/solvencyflow/internal/store"
)

// maxBodyBytes bounds request bodies. Workflow payloads carry the OCR
// results of every document, so it is generous.
const maxBodyBytes = 10 << 20

var errEmptyBody = errors.New("request body is empty")

type IntakeProcessor interface {
	Process(ctx context.Context, req *models.IntakeRequest) (*models.IntakeResponse, error)
}

type OCRProcessor interface {
	Process(ctx context.Context, req *models.OCRRequest) (*models.OCRResponse, error)
}

type DecisionProcessor interface {
	Process(ctx context.Context, req *models.DecisionRequest) (*models.DecisionResponse, error)
}

type StatusReader interface {
	Get(ctx context.Context, documentID string) (*models.Record, error)
	List(ctx context.Context, status string, limit int) ([]models.Record, error)
}

// DecodeJSON reads a JSON body into v. An empty body yields errEmptyBody.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("could not parse JSON: %w", err)
	}
	return nil
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

// StatusFor maps a service error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, errEmptyBody):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteError sends {"error": ...} with the status StatusFor picks.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, StatusFor(err), models.ErrorResponse{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, err error) {
	WriteJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	WriteJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{Error: "method not allowed"})
}

// Intake serves POST requests. The body is optional; without one the
// configured default documents are used.
func Intake(p IntakeProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		var req models.IntakeRequest
		if err := DecodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
			slog.Warn("Could not decode intake request.", "error", err)
			badRequest(w, err)
			return
		}
		res, err := p.Process(r.Context(), &req)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

// OCR serves the workflow's document analysis call.
func OCR(p OCRProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.OCRRequest
		if err := DecodeJSON(r, &req); err != nil {
			slog.Error("Could not decode request body", "error", err)
			badRequest(w, err)
			return
		}
		res, err := p.Process(r.Context(), &req)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

// Decision serves the workflow's final decision call.
func Decision(p DecisionProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.DecisionRequest
		if err := DecodeJSON(r, &req); err != nil {
			slog.Error("Could not decode request body", "error", err)
			badRequest(w, err)
			return
		}
		res, err := p.Process(r.Context(), &req)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

// Status serves GET ?documentId=<id> and GET ?status=<STATUS>&limit=<n>.
func Status(s StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		q := r.URL.Query()

		if id := q.Get("documentId"); id != "" {
			rec, err := s.Get(r.Context(), id)
			if err != nil {
				WriteError(w, err)
				return
			}
			WriteJSON(w, http.StatusOK, rec)
			return
		}

		status := q.Get("status")
		if status == "" {
			badRequest(w, errors.New("query must contain documentId or status"))
			return
		}
		var limit int
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				badRequest(w, fmt.Errorf("invalid limit %q", raw))
				return
			}
			limit = n
		}
		records, err := s.List(r.Context(), status, limit)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, records)
	}
}

// WithCORS answers preflight requests and adds permissive cross-origin headers.
func WithCORS(h http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	})(h)
}
