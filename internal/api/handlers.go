package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/imageledger/internal/failure"
	"github.com/mattjoyce/imageledger/internal/ledger"
)

const maxRequestBody = 1 << 20

var submitMessages = map[ledger.Outcome]string{
	ledger.OutcomeCreated:   "Image processed successfully",
	ledger.OutcomeRetried:   "Image processed successfully",
	ledger.OutcomeDuplicate: "Image already processed",
	ledger.OutcomeInFlight:  "Image is already being processed",
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Jobs:          map[string]int{},
	}
	counts, err := s.images.Counts(r.Context())
	if err != nil {
		s.logger.Error("healthz: ledger unavailable", "error", err)
		resp.Status = "degraded"
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	for status, n := range counts {
		resp.Jobs[string(status)] = n
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleSubmit runs the pipeline for one file. Transform failures are recorded
// on the job and reported in the body; only request and infrastructure
// failures produce an error status.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, string(failure.KindValidation), "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.FilePath) == "" {
		s.writeError(w, http.StatusBadRequest, string(failure.KindValidation), "file_path is required")
		return
	}

	res, err := s.images.Submit(r.Context(), req.FilePath)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	msg := submitMessages[res.Outcome]
	if res.Status == ledger.StatusError {
		msg = "Image processing failed"
	}
	respondJSON(w, http.StatusCreated, SubmitResponse{
		Message:     msg,
		Fingerprint: res.Fingerprint,
		Status:      string(res.Status),
		Outcome:     string(res.Outcome),
		Error:       res.Error,
	})
}

func (s *Server) handleGetImageID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("file_path"))
	if path == "" {
		s.writeError(w, http.StatusBadRequest, string(failure.KindValidation), "file_path is required")
		return
	}
	fp, err := s.images.LookupPath(r.Context(), path)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ImageIDResponse{Fingerprint: fp})
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	job, err := s.images.Job(r.Context(), chi.URLParam(r, "file_hash"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, JobResponse{
		Fingerprint:  job.Fingerprint,
		FilePath:     job.SourcePath,
		Status:       string(job.Status),
		CreatedAt:    job.CreatedAt,
		ProcessedAt:  job.ProcessedAt,
		ErrorMessage: job.ErrorMessage,
	})
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	if err := s.images.DeleteByFingerprint(r.Context(), chi.URLParam(r, "file_hash")); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRandomImage(w http.ResponseWriter, r *http.Request) {
	job, data, err := s.images.Random(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, RandomImageResponse{
		Fingerprint: job.Fingerprint,
		Image:       base64.StdEncoding.EncodeToString(data),
	})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, errorType, message string) {
	respondJSON(w, statusCode, ErrorResponse{Status: "error", Message: message, ErrorType: errorType})
}

// writeFailure maps a classified error to its status code. Unclassified and
// 5xx errors are logged and reported without internals.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	code := failure.HTTPStatus(err)
	kind := string(failure.KindOf(err))
	if kind == "" {
		kind = "internal_error"
	}
	if ctxErr := r.Context().Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		code = http.StatusServiceUnavailable
	}

	msg := err.Error()
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", middleware.GetReqID(r.Context()),
		)
		msg = http.StatusText(code)
	}
	s.writeError(w, code, kind, msg)
}
