package worker_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"kiln/internal/assets"
	"kiln/internal/config"
	"kiln/internal/logging"
	"kiln/internal/runlog"
	"kiln/internal/testsupport"
	"kiln/internal/worker"
)

type enginePayload struct {
	checkpoints  []string
	artifacts    map[string][]string
	jobFails     bool
	pendingPolls int
}

// fakeEngine speaks just enough of the render engine HTTP contract for the
// worker pipeline: readiness, object info, prompt acceptance, and history.
// Artifact files are written into the engine output directory at submission
// so the locator finds them on disk.
type fakeEngine struct {
	t        *testing.T
	cfg      *config.Config
	payload  enginePayload
	promptID string

	mu        sync.Mutex
	submits   int
	refreshes int
	polls     int
}

func startEngine(t *testing.T, cfg *config.Config, payload enginePayload) *fakeEngine {
	t.Helper()
	fake := &fakeEngine{t: t, cfg: cfg, payload: payload, promptID: "prompt-run-1"}
	server := httptest.NewServer(http.HandlerFunc(fake.handle))
	t.Cleanup(server.Close)
	testsupport.SetEngineEndpoint(t, cfg, server.URL)
	return fake
}

func (f *fakeEngine) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/system_stats":
		fmt.Fprint(w, `{}`)
	case r.URL.Path == "/object_info/CheckpointLoaderSimple":
		if r.URL.Query().Get("refresh") == "true" {
			f.mu.Lock()
			f.refreshes++
			f.mu.Unlock()
			fmt.Fprint(w, `{}`)
			return
		}
		names, err := json.Marshal(f.payload.checkpoints)
		if err != nil {
			f.t.Errorf("encode checkpoint names: %v", err)
		}
		fmt.Fprintf(w, `{"CheckpointLoaderSimple":{"input":{"required":{"ckpt_name":[%s,{}]}}}}`, names)
	case r.URL.Path == "/prompt" && r.Method == http.MethodPost:
		f.mu.Lock()
		f.submits++
		f.mu.Unlock()
		f.writeArtifacts()
		fmt.Fprintf(w, `{"prompt_id":%q}`, f.promptID)
	case strings.HasPrefix(r.URL.Path, "/history/"):
		f.mu.Lock()
		f.polls++
		pending := f.polls <= f.payload.pendingPolls
		f.mu.Unlock()
		if pending {
			fmt.Fprint(w, `{}`)
			return
		}
		f.writeHistory(w)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeEngine) writeArtifacts() {
	for _, files := range f.payload.artifacts {
		for _, name := range files {
			path := filepath.Join(f.cfg.EngineOutputDir(), name)
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				f.t.Errorf("mkdir artifact dir: %v", err)
				return
			}
			if err := os.WriteFile(path, []byte("png-bytes"), 0o644); err != nil {
				f.t.Errorf("write artifact: %v", err)
			}
		}
	}
}

func (f *fakeEngine) writeHistory(w http.ResponseWriter) {
	status := "success"
	if f.payload.jobFails {
		status = "error"
	}
	outputs := make(map[string]map[string][]map[string]string)
	for node, files := range f.payload.artifacts {
		images := make([]map[string]string, 0, len(files))
		for _, name := range files {
			images = append(images, map[string]string{"filename": name, "subfolder": ""})
		}
		outputs[node] = map[string][]map[string]string{"images": images}
	}
	entry := map[string]any{
		f.promptID: map[string]any{
			"status":  map[string]any{"status_str": status, "completed": status == "success"},
			"outputs": outputs,
		},
	}
	if err := json.NewEncoder(w).Encode(entry); err != nil {
		f.t.Errorf("encode history: %v", err)
	}
}

func (f *fakeEngine) counts() (submits, refreshes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits, f.refreshes
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
}

func (r *recordingNotifier) NotifyRunCompleted(_ context.Context, runID string, _ int, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, runID)
	return nil
}

func (r *recordingNotifier) NotifyRunFailed(_ context.Context, _, stage string, _ error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, stage)
	return nil
}

func newWorker(t *testing.T, cfg *config.Config, notifier *recordingNotifier) (*worker.Worker, *runlog.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	w, err := worker.NewWithNotifier(cfg, store, logging.NewNop(), notifier)
	if err != nil {
		t.Fatalf("worker.NewWithNotifier: %v", err)
	}
	return w, store
}

func renderJob() worker.Job {
	graph := `{
		"1": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": "sdxl.safetensors"}},
		"9": {"class_type": "SaveImage", "inputs": {"images": ["8", 0]}}
	}`
	return worker.Job{Input: worker.JobInput{Workflow: json.RawMessage(graph)}}
}

func TestRunHeartbeatShortCircuits(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	w, _ := newWorker(t, cfg, &recordingNotifier{})

	outcome := w.Run(context.Background(), worker.Job{Type: "heartbeat"})
	if outcome.Status != worker.StatusOK {
		t.Fatalf("unexpected heartbeat status %q", outcome.Status)
	}
	if outcome.RunID != "" {
		t.Fatalf("heartbeat must not open a run, got id %q", outcome.RunID)
	}
}

func TestRunCompletesEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithVolumeLibrary(filepath.Join("ComfyUI", "models")))
	testsupport.SeedModels(t, filepath.Join(cfg.Paths.VolumeDir, "ComfyUI", "models"), map[string][]string{
		"checkpoints": {"sdxl.safetensors"},
	})
	cfg.Jobs.MaxWait = 30
	cfg.Jobs.PollInterval = 1

	fake := startEngine(t, cfg, enginePayload{
		checkpoints:  []string{"sdxl.safetensors"},
		artifacts:    map[string][]string{"9": {"x.png"}},
		pendingPolls: 1,
	})
	notifier := &recordingNotifier{}
	w, store := newWorker(t, cfg, notifier)

	outcome := w.Run(context.Background(), renderJob())
	if outcome.Failed() {
		t.Fatalf("run failed: %s", outcome.Error)
	}
	if outcome.Status != worker.StatusCompleted {
		t.Fatalf("unexpected status %q", outcome.Status)
	}
	if outcome.Count != 1 || len(outcome.Paths) != 1 {
		t.Fatalf("unexpected artifact counts: %#v", outcome)
	}
	if outcome.StorageMode != "volume" {
		t.Fatalf("unexpected storage mode %q", outcome.StorageMode)
	}
	if len(outcome.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", outcome.Warnings)
	}
	if _, err := os.Stat(outcome.Paths[0]); err != nil {
		t.Fatalf("stored artifact missing: %v", err)
	}

	submits, refreshes := fake.counts()
	if submits != 1 {
		t.Fatalf("expected one prompt submission, got %d", submits)
	}
	if refreshes != 1 {
		t.Fatalf("expected one warm-up refresh after provisioning, got %d", refreshes)
	}

	run, err := store.Get(context.Background(), outcome.RunID)
	if err != nil {
		t.Fatalf("Get run: %v", err)
	}
	if run == nil || run.Status != runlog.StatusCompleted {
		t.Fatalf("unexpected ledger run: %#v", run)
	}
	if run.PromptID != "prompt-run-1" || run.ClientID == "" {
		t.Fatalf("ledger missing job identifiers: %#v", run)
	}
	recorded, err := run.Outcome()
	if err != nil {
		t.Fatalf("decode ledger outcome: %v", err)
	}
	if recorded.ArtifactCount != 1 || recorded.StorageMode != "volume" {
		t.Fatalf("unexpected ledger outcome: %#v", recorded)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.completed) != 1 || notifier.completed[0] != outcome.RunID {
		t.Fatalf("expected completion notification for %s, got %v", outcome.RunID, notifier.completed)
	}

	report, ok := w.LastProvisionReport()
	if !ok || report.Outcome != assets.OutcomeLinked {
		t.Fatalf("unexpected provision report: %#v", report)
	}
}

func TestRunSurvivesProvisionFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithVolume())
	cfg.Jobs.MaxWait = 30
	cfg.Jobs.PollInterval = 1

	fake := startEngine(t, cfg, enginePayload{
		checkpoints: []string{},
		artifacts:   map[string][]string{"9": {"x.png"}},
	})
	w, _ := newWorker(t, cfg, &recordingNotifier{})

	outcome := w.Run(context.Background(), renderJob())
	if outcome.Status != worker.StatusCompleted {
		t.Fatalf("expected run to complete without models, got %q (%s)", outcome.Status, outcome.Error)
	}

	report, ok := w.LastProvisionReport()
	if !ok || report.Outcome != assets.OutcomeFailed {
		t.Fatalf("expected failed provisioning report, got %#v", report)
	}
	if _, refreshes := fake.counts(); refreshes != 0 {
		t.Fatalf("warm-up must not fire without provisioned models, got %d refreshes", refreshes)
	}
}

func TestRunFailsWhenEngineNeverStarts(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Engine.StartupTimeout = 60
	cfg.Engine.PollInterval = 1

	dead := httptest.NewServer(http.NotFoundHandler())
	testsupport.SetEngineEndpoint(t, cfg, dead.URL)
	dead.Close()

	notifier := &recordingNotifier{}
	w, store := newWorker(t, cfg, notifier)

	start := time.Now()
	outcome := w.Run(context.Background(), renderJob())
	if !outcome.Failed() {
		t.Fatalf("expected startup failure, got %#v", outcome)
	}
	if outcome.FailureKind != "startup" {
		t.Fatalf("unexpected failure kind %q", outcome.FailureKind)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Second {
		t.Fatalf("startup failure should fast-fail on child exit, took %s", elapsed)
	}

	run, err := store.Get(context.Background(), outcome.RunID)
	if err != nil {
		t.Fatalf("Get run: %v", err)
	}
	if run == nil || run.Status != runlog.StatusFailed || run.FailureKind != "startup" {
		t.Fatalf("unexpected ledger run: %#v", run)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.failed) != 1 || notifier.failed[0] != "starting" {
		t.Fatalf("expected failure notification for starting stage, got %v", notifier.failed)
	}
}

func TestRunFailsOnEngineReportedError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Jobs.MaxWait = 30
	cfg.Jobs.PollInterval = 1

	startEngine(t, cfg, enginePayload{
		artifacts: map[string][]string{"9": {"x.png"}},
		jobFails:  true,
	})
	notifier := &recordingNotifier{}
	w, store := newWorker(t, cfg, notifier)

	outcome := w.Run(context.Background(), renderJob())
	if !outcome.Failed() || outcome.FailureKind != "engine" {
		t.Fatalf("expected engine failure, got %#v", outcome)
	}

	run, err := store.Get(context.Background(), outcome.RunID)
	if err != nil {
		t.Fatalf("Get run: %v", err)
	}
	if run == nil || run.PromptID != "prompt-run-1" {
		t.Fatalf("expected prompt id recorded before failure, got %#v", run)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.failed) != 1 || notifier.failed[0] != "rendering" {
		t.Fatalf("expected failure during rendering, got %v", notifier.failed)
	}
}

func TestRunPartialStorageFailureWarns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Jobs.MaxWait = 30
	cfg.Jobs.PollInterval = 1

	presign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "bad.png") {
			http.Error(w, "denied", http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(presign.Close)
	cfg.Storage.PresignEndpoint = presign.URL

	startEngine(t, cfg, enginePayload{
		artifacts: map[string][]string{"9": {"x.png", "bad.png"}},
	})
	w, _ := newWorker(t, cfg, &recordingNotifier{})

	outcome := w.Run(context.Background(), renderJob())
	if outcome.Status != worker.StatusCompleted {
		t.Fatalf("partial storage failure must still complete, got %#v", outcome)
	}
	if outcome.Count != 1 || len(outcome.Paths) != 1 {
		t.Fatalf("expected one stored artifact, got %#v", outcome)
	}
	if outcome.StorageMode != "presign" {
		t.Fatalf("unexpected storage mode %q", outcome.StorageMode)
	}
	if len(outcome.Warnings) != 1 || !strings.Contains(outcome.Warnings[0], "bad.png") {
		t.Fatalf("expected warning for bad.png, got %v", outcome.Warnings)
	}
}

func TestRunFailsWhenNothingStored(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Jobs.MaxWait = 30
	cfg.Jobs.PollInterval = 1

	presign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	t.Cleanup(presign.Close)
	cfg.Storage.PresignEndpoint = presign.URL

	startEngine(t, cfg, enginePayload{
		artifacts: map[string][]string{"9": {"x.png"}},
	})
	notifier := &recordingNotifier{}
	w, _ := newWorker(t, cfg, notifier)

	outcome := w.Run(context.Background(), renderJob())
	if !outcome.Failed() || outcome.FailureKind != "storage" {
		t.Fatalf("expected storage failure, got %#v", outcome)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.failed) != 1 || notifier.failed[0] != "storing" {
		t.Fatalf("expected failure during storing, got %v", notifier.failed)
	}
}

func TestRunRejectsJobWithoutWorkflow(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	fake := startEngine(t, cfg, enginePayload{})
	w, _ := newWorker(t, cfg, &recordingNotifier{})

	outcome := w.Run(context.Background(), worker.Job{})
	if !outcome.Failed() || outcome.FailureKind != "validation" {
		t.Fatalf("expected validation failure, got %#v", outcome)
	}
	if submits, _ := fake.counts(); submits != 0 {
		t.Fatalf("graphless job must not reach the engine, got %d submissions", submits)
	}
}
