package main

import (
	"strings"
	"testing"
)

func TestShowCommandDisplaysRun(t *testing.T) {
	env := setupCLITestEnv(t)
	run := seedRun(t, env.store)

	out, _, err := runCLI(t, []string{"show", run.ID}, env.apiAddr, env.configPath)
	if err != nil {
		t.Fatalf("show command failed: %v", err)
	}
	requireContains(t, out, run.ID)
	requireContains(t, out, "Status:   Completed")
	requireContains(t, out, "prompt-abc")
	requireContains(t, out, "Images:   1")
	requireContains(t, out, "render-1-a.png")
}

func TestShowCommandUnknownRun(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"show", "01JUNKJUNKJUNKJUNKJUNKJUNK"}, env.apiAddr, env.configPath)
	if err == nil {
		t.Fatal("expected an error for an unknown run")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not-found error, got: %v", err)
	}
}
