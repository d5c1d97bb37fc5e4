package main

import "testing"

func TestRootCommandShowsHelp(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, _, err := runCLI(t, nil, "", "")
	if err != nil {
		t.Fatalf("root command failed: %v", err)
	}
	requireContains(t, out, "Render worker CLI")
	requireContains(t, out, "run")
	requireContains(t, out, "status")
	requireContains(t, out, "preflight")
}

func TestRootCommandUnknownSubcommand(t *testing.T) {
	_, _, err := runCLI(t, []string{"definitely-not-a-command"}, "", "")
	if err == nil {
		t.Fatal("expected an error for an unknown subcommand")
	}
}
