// File: internal/mcp/handlers.go
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/jobs"
)

// TaskRunner executes one browser task synchronously, start to finish. The
// server backs it with a fresh agent per call; tests substitute a stub.
type TaskRunner func(ctx context.Context, task, startURL string) (*agent.Result, error)

// pollInterval is the suggested delay between status polls for live jobs.
const pollInterval = 5 * time.Second

// maxWaitSeconds caps the server-side "wait" command.
const maxWaitSeconds = 60

// Handlers routes the JSON command envelope to the job manager and the
// synchronous runner.
type Handlers struct {
	log          *zap.Logger
	jobs         *jobs.Manager
	runTask      TaskRunner
	artifactsDir string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(logger *zap.Logger, manager *jobs.Manager, runTask TaskRunner, artifactsDir string) *Handlers {
	return &Handlers{
		log:          logger.Named("mcp_handlers"),
		jobs:         manager,
		runTask:      runTask,
		artifactsDir: artifactsDir,
	}
}

// RegisterRoutes sets up the routing for the MCP server.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	// Health check endpoint (unversioned)
	r.Get("/healthz", h.HandleHealthCheck)

	// API v1 Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Primary endpoint for receiving commands
		r.Post("/command", h.HandleCommand)
		// Convenience GET for pollers that prefer a plain status URL
		r.Get("/jobs/{jobID}/status", h.HandleGetJobStatus)
	})
}

// HandleHealthCheck is a simple handler to confirm the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HandleCommand is the main entry point for commands.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	h.log.Info("Received command", zap.String("command", req.Command))

	switch strings.ToLower(req.Command) {
	case "browse", "browse_web":
		h.handleBrowse(w, r, req.Params)
	case "start_job", "start_web_task":
		h.handleStartJob(w, req.Params)
	case "job_status", "check_web_task":
		h.handleJobStatus(w, req.Params)
	case "cancel_job", "stop_web_task":
		h.handleCancelJob(w, req.Params)
	case "list_jobs", "list_web_tasks":
		h.handleListJobs(w)
	case "list_artifacts", "get_web_screenshots":
		h.handleListArtifacts(w, req.Params)
	case "wait":
		h.handleWait(w, r, req.Params)
	case "ping":
		h.respondWithSuccess(w, http.StatusOK, map[string]string{"message": "pong"})
	default:
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

// handleBrowse runs a task synchronously and returns its final answer. The
// request context bounds the whole run, so a disconnecting caller cancels
// the agent.
func (h *Handlers) handleBrowse(w http.ResponseWriter, r *http.Request, paramsMap map[string]any) {
	params, err := mapToStruct[BrowseParams](paramsMap)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid parameters for browse: %v", err))
		return
	}
	if params.Task == "" {
		h.respondWithError(w, http.StatusBadRequest, "Task parameter is required.")
		return
	}

	result, err := h.runTask(r.Context(), params.Task, params.URL)
	if err != nil {
		h.log.Error("Synchronous browse failed", zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Browse failed: %v", err))
		return
	}

	h.respondWithSuccess(w, http.StatusOK, map[string]any{
		"data":         result.Data,
		"session_id":   result.SessionID,
		"artifact_dir": result.ArtifactDir,
		"progress":     result.Progress,
	})
}

// handleStartJob registers a background job and returns immediately.
func (h *Handlers) handleStartJob(w http.ResponseWriter, paramsMap map[string]any) {
	params, err := mapToStruct[StartJobParams](paramsMap)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid parameters for start_job: %v", err))
		return
	}
	if params.Task == "" {
		h.respondWithError(w, http.StatusBadRequest, "Task parameter is required.")
		return
	}

	id := h.jobs.Create(params.Task, params.URL)
	if !h.jobs.Start(id) {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to launch job.")
		return
	}
	h.respondWithStatus(w, http.StatusAccepted, "accepted", map[string]any{
		"job_id":           id,
		"state":            jobs.StateRunning,
		"polling_guidance": h.pollingGuidance(),
	})
}

func (h *Handlers) handleJobStatus(w http.ResponseWriter, paramsMap map[string]any) {
	params, err := mapToStruct[JobIDParams](paramsMap)
	if err != nil || params.JobID == "" {
		h.respondWithError(w, http.StatusBadRequest, "job_id parameter is required.")
		return
	}
	compact := params.Compact == nil || *params.Compact
	h.writeJobStatus(w, params.JobID, compact)
}

// HandleGetJobStatus retrieves the compact status of a job by URL parameter.
func (h *Handlers) HandleGetJobStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJobStatus(w, chi.URLParam(r, "jobID"), r.URL.Query().Get("compact") != "false")
}

func (h *Handlers) writeJobStatus(w http.ResponseWriter, id string, compact bool) {
	view, err := h.jobs.Status(id, compact)
	if err != nil {
		h.respondWithError(w, http.StatusNotFound, err.Error())
		return
	}

	data := map[string]any{"job": view}
	if !view.State.Terminal() {
		data["recommended_poll_after"] = time.Now().Add(pollInterval).UTC().Format(time.RFC3339)
		data["polling_guidance"] = h.pollingGuidance()
	}
	h.respondWithSuccess(w, http.StatusOK, data)
}

func (h *Handlers) handleCancelJob(w http.ResponseWriter, paramsMap map[string]any) {
	params, err := mapToStruct[JobIDParams](paramsMap)
	if err != nil || params.JobID == "" {
		h.respondWithError(w, http.StatusBadRequest, "job_id parameter is required.")
		return
	}

	if err := h.jobs.Cancel(params.JobID); err != nil {
		status := http.StatusConflict
		if strings.Contains(err.Error(), "no job with ID") {
			status = http.StatusNotFound
		}
		h.respondWithError(w, status, err.Error())
		return
	}
	h.respondWithSuccess(w, http.StatusOK, map[string]any{
		"job_id": params.JobID,
		"state":  jobs.StateCancelled,
	})
}

func (h *Handlers) handleListJobs(w http.ResponseWriter) {
	views := h.jobs.List()
	active := 0
	for _, v := range views {
		if !v.State.Terminal() {
			active++
		}
	}
	h.respondWithSuccess(w, http.StatusOK, map[string]any{
		"count":        len(views),
		"active_count": active,
		"jobs":         views,
	})
}

// handleListArtifacts lists persisted screenshots as paths relative to the
// artifacts root, optionally narrowed to one session.
func (h *Handlers) handleListArtifacts(w http.ResponseWriter, paramsMap map[string]any) {
	params, err := mapToStruct[ListArtifactsParams](paramsMap)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid parameters for list_artifacts: %v", err))
		return
	}

	root := h.artifactsDir
	if params.SessionID != "" {
		// Session IDs are generated server-side; reject anything that
		// could escape the artifacts root.
		if strings.ContainsAny(params.SessionID, `/\`) || params.SessionID == ".." {
			h.respondWithError(w, http.StatusBadRequest, "Invalid session_id.")
			return
		}
		root = filepath.Join(root, params.SessionID)
		if _, err := os.Stat(root); err != nil {
			h.respondWithError(w, http.StatusNotFound, fmt.Sprintf("No artifacts found for session %s.", params.SessionID))
			return
		}
	}

	var files []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(h.artifactsDir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if walkErr != nil {
		// A missing artifacts root just means nothing was captured yet.
		files = nil
	}
	sort.Strings(files)

	h.respondWithSuccess(w, http.StatusOK, map[string]any{
		"count":     len(files),
		"artifacts": files,
	})
}

// handleWait pauses server-side so pollers without their own timers can
// space out status checks. Bounded to keep the HTTP worker pool healthy.
func (h *Handlers) handleWait(w http.ResponseWriter, r *http.Request, paramsMap map[string]any) {
	params, err := mapToStruct[WaitParams](paramsMap)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid parameters for wait: %v", err))
		return
	}

	seconds := params.Seconds
	if seconds < 1 || seconds > maxWaitSeconds {
		h.respondWithError(w, http.StatusBadRequest,
			fmt.Sprintf("seconds must be between 1 and %d.", maxWaitSeconds))
		return
	}

	timer := time.NewTimer(time.Duration(seconds) * time.Second)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-r.Context().Done():
		h.respondWithError(w, http.StatusRequestTimeout, "Wait interrupted.")
		return
	}

	h.respondWithSuccess(w, http.StatusOK, map[string]any{"waited_seconds": seconds})
}

// pollingGuidance is attached to accepted and running job responses so
// impatient clients learn the intended cadence.
func (h *Handlers) pollingGuidance() string {
	return fmt.Sprintf("Poll job_status every %d seconds until the job reaches a terminal state.", int(pollInterval.Seconds()))
}

// mapToStruct converts a generic params map to a typed struct via JSON.
func mapToStruct[T any](m map[string]any) (T, error) {
	var result T
	if m == nil {
		return result, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return result, err
	}
	err = json.Unmarshal(data, &result)
	return result, err
}

// respondWithError sends a standardized JSON error response.
func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respondWithStatus(w, statusCode, "error", map[string]string{"error": message})
}

// respondWithSuccess sends a standardized JSON success response.
func (h *Handlers) respondWithSuccess(w http.ResponseWriter, statusCode int, data any) {
	h.respondWithStatus(w, statusCode, "success", data)
}

// respondWithStatus sends a standardized JSON response with a specific status string.
func (h *Handlers) respondWithStatus(w http.ResponseWriter, statusCode int, status string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	resp := CommandResponse{
		Status: status,
	}

	if errMap, ok := data.(map[string]string); ok && errMap["error"] != "" {
		resp.Error = errMap["error"]
	} else {
		resp.Data = data
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
