package main

import (
	"encoding/json"
	"testing"

	"kiln/internal/api"
)

func TestRunsCommandListsLedger(t *testing.T) {
	env := setupCLITestEnv(t)
	run := seedRun(t, env.store)

	out, _, err := runCLI(t, []string{"runs"}, env.apiAddr, env.configPath)
	if err != nil {
		t.Fatalf("runs command failed: %v", err)
	}
	requireContains(t, out, run.ID)
	requireContains(t, out, "Completed")
	requireContains(t, out, "volume")
}

func TestRunsCommandEmptyLedger(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"runs"}, env.apiAddr, env.configPath)
	if err != nil {
		t.Fatalf("runs command failed: %v", err)
	}
	requireContains(t, out, "No runs recorded")
}

func TestRunsCommandJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	run := seedRun(t, env.store)

	out, _, err := runCLI(t, []string{"runs", "--json"}, env.apiAddr, env.configPath)
	if err != nil {
		t.Fatalf("runs --json failed: %v", err)
	}

	var payload api.RunListResponse
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode runs JSON: %v\noutput:\n%s", err, out)
	}
	if len(payload.Runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(payload.Runs))
	}
	if payload.Runs[0].ID != run.ID {
		t.Fatalf("expected run %s, got %s", run.ID, payload.Runs[0].ID)
	}
}
