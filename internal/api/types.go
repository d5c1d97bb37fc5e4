package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Health status values reported by GET /api/health.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// Run describes a ledger entry in a transport-friendly format.
type Run struct {
	ID              string   `json:"id"`
	Status          string   `json:"status"`
	ClientID        string   `json:"clientId,omitempty"`
	PromptID        string   `json:"promptId,omitempty"`
	ErrorMessage    string   `json:"errorMessage,omitempty"`
	FailureKind     string   `json:"failureKind,omitempty"`
	ArtifactCount   int      `json:"artifactCount"`
	ArtifactPaths   []string `json:"artifactPaths,omitempty"`
	StorageMode     string   `json:"storageMode,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	CreatedAt       string   `json:"createdAt,omitempty"`
	UpdatedAt       string   `json:"updatedAt,omitempty"`
	StartedAt       string   `json:"startedAt,omitempty"`
	FinishedAt      string   `json:"finishedAt,omitempty"`
	DurationSeconds float64  `json:"durationSeconds,omitempty"`
}

// ModelsSummary reports the most recent provisioning pass.
type ModelsSummary struct {
	Outcome     string `json:"outcome"`
	Reason      string `json:"reason,omitempty"`
	Source      string `json:"source,omitempty"`
	TotalModels int    `json:"totalModels"`
}

// HealthStatus aggregates worker and engine liveness for probes.
type HealthStatus struct {
	Status      string         `json:"status"`
	EngineState string         `json:"engineState"`
	EngineReady bool           `json:"engineReady"`
	Models      *ModelsSummary `json:"models,omitempty"`
}

// WorkerStats aggregates runtime information for API consumers.
type WorkerStats struct {
	UptimeSeconds      int64          `json:"uptimeSeconds"`
	EngineState        string         `json:"engineState"`
	StorageMode        string         `json:"storageMode"`
	RunCounts          map[string]int `json:"runCounts"`
	LedgerPath         string         `json:"ledgerDbPath,omitempty"`
	WorkspaceFreeBytes uint64         `json:"workspaceFreeBytes"`
	VolumeFreeBytes    uint64         `json:"volumeFreeBytes"`
}

// RunListResponse wraps a collection of runs for API responses.
type RunListResponse struct {
	Runs []Run `json:"runs"`
}

// RunResponse wraps a single run.
type RunResponse struct {
	Run Run `json:"run"`
}
