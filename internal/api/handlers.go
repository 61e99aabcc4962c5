package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/relationship-crm/internal/company"
	"github.com/sells-group/relationship-crm/internal/jobs"
	"github.com/sells-group/relationship-crm/internal/provider"
)

// ProgressResponse is the poller's view of a job. Every field is null when
// the owner has no job.
type ProgressResponse struct {
	Total    *int    `json:"total"`
	Enriched *int    `json:"enriched"`
	Skipped  *int    `json:"skipped"`
	Errors   *int    `json:"errors"`
	Done     *bool   `json:"done"`
	Stopped  *bool   `json:"stopped"`
	Error    *string `json:"error"`
}

func progressOf(j *jobs.Job) ProgressResponse {
	if j == nil {
		return ProgressResponse{}
	}
	p := j.Progress
	done := j.Terminal()
	resp := ProgressResponse{
		Total:    &p.Total,
		Enriched: &p.Enriched,
		Skipped:  &p.Skipped,
		Errors:   &p.Errors,
		Done:     &done,
		Stopped:  &j.Stopped,
	}
	if p.ErrorMessage != "" {
		resp.Error = &p.ErrorMessage
	}
	return resp
}

// StartRequest is the optional body of POST /enrichment/start.
type StartRequest struct {
	Force bool `json:"force"`
}

// StartResponse is returned when a run was admitted.
type StartResponse struct {
	Message string `json:"message"`
	JobKey  string `json:"jobKey"`
}

// ConflictResponse is returned when the owner already has a running job.
type ConflictResponse struct {
	Error    string           `json:"error"`
	Progress ProgressResponse `json:"progress"`
}

// StopResponse is returned by POST /enrichment/stop.
type StopResponse struct {
	Message  string            `json:"message"`
	Stopped  bool              `json:"stopped"`
	Progress *ProgressResponse `json:"progress,omitempty"`
}

// CompanyRequest is the body of POST /companies/enrich.
type CompanyRequest struct {
	Domain string `json:"domain"`
	Force  bool   `json:"force"`
}

func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())

	var req StartRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := s.jobs.Start(r.Context(), owner, jobs.StartOptions{Force: req.Force})
	switch {
	case errors.Is(err, jobs.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, ConflictResponse{
			Error:    "enrichment already running",
			Progress: progressOf(job),
		})
	case err != nil:
		zap.L().Error("api: start enrichment", zap.String("owner_id", owner), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start enrichment")
	default:
		writeJSON(w, http.StatusAccepted, StartResponse{
			Message: "enrichment started",
			JobKey:  job.RunID,
		})
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())

	job, stopped, err := s.jobs.Stop(r.Context(), owner)
	if err != nil {
		zap.L().Error("api: stop enrichment", zap.String("owner_id", owner), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to stop enrichment")
		return
	}

	resp := StopResponse{Message: "no enrichment running", Stopped: stopped}
	if stopped {
		resp.Message = "enrichment stopped"
	}
	if job != nil {
		p := progressOf(job)
		resp.Progress = &p
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())

	job, err := s.jobs.Progress(r.Context(), owner)
	if err != nil {
		zap.L().Error("api: read progress", zap.String("owner_id", owner), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read progress")
		return
	}
	writeJSON(w, http.StatusOK, progressOf(job))
}

func (s *Server) handleCompanyEnrich(w http.ResponseWriter, r *http.Request) {
	var req CompanyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}

	c, err := s.companies.Upsert(r.Context(), req.Domain, company.UpsertOptions{Force: req.Force, Full: true})
	switch {
	case errors.Is(err, company.ErrInvalidDomain):
		writeError(w, http.StatusBadRequest, "invalid domain")
	case provider.IsQuota(err):
		writeError(w, http.StatusTooManyRequests, "enrichment provider quota exhausted")
	case provider.IsProviderError(err):
		zap.L().Warn("api: company lookup failed", zap.String("domain", req.Domain), zap.Error(err))
		writeError(w, http.StatusBadGateway, "enrichment provider unavailable")
	case err != nil:
		zap.L().Error("api: company enrich", zap.String("domain", req.Domain), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to enrich company")
	default:
		writeJSON(w, http.StatusOK, c)
	}
}
