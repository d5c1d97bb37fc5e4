package main

import (
	"fmt"
	"strings"
	"time"

	"kiln/internal/api"
)

func buildRunListRows(runs []api.Run) [][]string {
	if len(runs) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			formatStatusLabel(run.Status),
			fmt.Sprintf("%d", run.ArtifactCount),
			valueOrDash(run.StorageMode),
			formatDisplayTime(run.CreatedAt),
			formatRunDuration(run.DurationSeconds),
		})
	}
	return rows
}

func buildRunCountRows(counts map[string]int) [][]string {
	if len(counts) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(counts))
	for _, status := range runStatusOrder {
		count, ok := counts[status]
		if !ok {
			continue
		}
		rows = append(rows, []string{formatStatusLabel(status), fmt.Sprintf("%d", count)})
	}
	return rows
}

// runStatusOrder fixes the display order of ledger statuses to the pipeline
// sequence instead of map iteration order.
var runStatusOrder = []string{
	"pending",
	"provisioning",
	"starting",
	"rendering",
	"collecting",
	"storing",
	"completed",
	"failed",
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return value
}

func formatRunDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	d := time.Duration(seconds * float64(time.Second))
	if d >= time.Minute {
		return d.Round(time.Second).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

func formatGiB(bytes uint64) string {
	if bytes == 0 {
		return "unknown"
	}
	return fmt.Sprintf("%.1f GiB free", float64(bytes)/(1<<30))
}

func valueOrDash(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return value
}
