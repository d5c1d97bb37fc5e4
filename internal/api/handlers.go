package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sys/unix"

	"kiln/internal/supervisor"
	"kiln/internal/worker"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200

	// maxRunBody bounds submitted job payloads. Graphs with embedded
	// inputs run large.
	maxRunBody = 8 << 20
)

// handleRun executes a render job synchronously and returns its outcome in
// the serverless wire form. Heartbeats short-circuit without touching the
// engine.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var job worker.Job
	r.Body = http.MaxBytesReader(w, r.Body, maxRunBody)
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	outcome := s.worker.Run(r.Context(), job)
	status := http.StatusOK
	if outcome.Failed() {
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, outcome)
}

// handleHealth reports worker liveness. The engine not having started yet
// is normal (it launches on the first render), so only a crash degrades
// the status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.worker.EngineState()
	payload := HealthStatus{
		Status:      HealthOK,
		EngineState: string(state),
		EngineReady: s.worker.EngineReady(r.Context()),
	}
	if state == supervisor.StateCrashed {
		payload.Status = HealthDegraded
	}
	if report, ok := s.worker.LastProvisionReport(); ok {
		payload.Models = &ModelsSummary{
			Outcome:     string(report.Outcome),
			Reason:      report.Reason,
			Source:      report.Source,
			TotalModels: report.TotalModels(),
		}
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultRunsLimit)
	if limit <= 0 || limit > maxRunsLimit {
		limit = defaultRunsLimit
	}
	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

func (s *Server) handleRunItem(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	run, err := s.runs.Describe(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, RunResponse{Run: *run})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.runs.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	payload := WorkerStats{
		UptimeSeconds:      int64(time.Since(s.worker.StartedAt()).Seconds()),
		EngineState:        string(s.worker.EngineState()),
		StorageMode:        s.worker.StorageMode(),
		RunCounts:          counts,
		WorkspaceFreeBytes: diskFree(s.cfg.Paths.WorkspaceDir),
		VolumeFreeBytes:    diskFree(s.cfg.Paths.VolumeDir),
	}
	if s.store != nil {
		payload.LedgerPath = s.store.Path()
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// diskFree reports available bytes on the filesystem containing path, zero
// when the path is absent.
func diskFree(path string) uint64 {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0
	}
	return stat.Bavail * uint64(stat.Bsize)
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
