package main

import (
	"os"
	"path/filepath"
	"testing"

	"kiln/internal/testsupport"
)

func TestRunCommandHeartbeat(t *testing.T) {
	env := setupCLITestEnv(t)
	jobPath := filepath.Join(testsupport.BaseDir(env.cfg), "job.json")
	if err := os.WriteFile(jobPath, []byte(`{"type":"heartbeat"}`), 0o644); err != nil {
		t.Fatalf("write job file: %v", err)
	}

	out, _, err := runCLI(t, []string{"run", jobPath}, env.apiAddr, env.configPath)
	if err != nil {
		t.Fatalf("run command failed: %v\noutput:\n%s", err, out)
	}
	requireContains(t, out, "Status:  Ok")
}

func TestRunCommandMissingFile(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"run", filepath.Join(t.TempDir(), "absent.json")}, env.apiAddr, env.configPath)
	if err == nil {
		t.Fatal("expected an error for a missing job file")
	}
}

func TestDecodeJobWrapsBareGraph(t *testing.T) {
	job, err := decodeJob([]byte(`{"9":{"class_type":"SaveImage","inputs":{"images":["8",0]}}}`))
	if err != nil {
		t.Fatalf("decodeJob: %v", err)
	}
	if job.Heartbeat() {
		t.Fatal("bare graph must not decode as a heartbeat")
	}
	if len(job.Input.Workflow) == 0 {
		t.Fatal("expected the graph to be wrapped into the job input")
	}
}

func TestDecodeJobPassesEnvelopeThrough(t *testing.T) {
	job, err := decodeJob([]byte(`{"input":{"workflow":{"9":{"class_type":"SaveImage"}}}}`))
	if err != nil {
		t.Fatalf("decodeJob: %v", err)
	}
	if len(job.Input.Workflow) == 0 {
		t.Fatal("expected the envelope workflow to survive decoding")
	}

	job, err = decodeJob([]byte(`{"type":"heartbeat"}`))
	if err != nil {
		t.Fatalf("decodeJob heartbeat: %v", err)
	}
	if !job.Heartbeat() {
		t.Fatal("expected a heartbeat job")
	}
}

func TestDecodeJobRejectsBrokenJSON(t *testing.T) {
	if _, err := decodeJob([]byte(`{broken`)); err == nil {
		t.Fatal("expected a parse error")
	}
}
