package comfyui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kiln/internal/config"
)

// CheckpointLoaderClass is the node class whose input enum lists the
// checkpoints the engine can currently see. Refreshing it forces the engine
// to rescan the model directories.
const CheckpointLoaderClass = "CheckpointLoaderSimple"

// HTTPDoer describes the HTTP client used by the engine service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client speaks the render engine HTTP contract.
type Client struct {
	baseURL string
	http    HTTPDoer
}

// New constructs a client for the given endpoint root. A nil doer falls back
// to a default client with the supplied request timeout.
func New(baseURL string, doer HTTPDoer, requestTimeout time.Duration) *Client {
	if doer == nil {
		if requestTimeout <= 0 {
			requestTimeout = 30 * time.Second
		}
		doer = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    doer,
	}
}

// NewFromConfig constructs a client pointed at the configured engine.
func NewFromConfig(cfg *config.Config) *Client {
	return New(cfg.EngineBaseURL(), nil, time.Duration(cfg.Engine.RequestTimeout)*time.Second)
}

// BaseURL returns the endpoint root the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// SystemStats describes the engine host as reported by the stats endpoint.
type SystemStats struct {
	System  SystemInfo   `json:"system"`
	Devices []DeviceInfo `json:"devices"`
}

// SystemInfo carries engine host details.
type SystemInfo struct {
	OS            string `json:"os"`
	RAMTotal      int64  `json:"ram_total"`
	RAMFree       int64  `json:"ram_free"`
	PythonVersion string `json:"python_version"`
}

// DeviceInfo carries one compute device's details.
type DeviceInfo struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	VRAMTotal int64  `json:"vram_total"`
	VRAMFree  int64  `json:"vram_free"`
}

// Ready reports whether the engine answers its stats endpoint. Any transport
// or status failure means not ready; this is the liveness probe the
// supervisor loops on.
func (c *Client) Ready(ctx context.Context) bool {
	resp, err := c.get(ctx, "/system_stats")
	if err != nil {
		return false
	}
	defer drain(resp)
	return resp.StatusCode == http.StatusOK
}

// SystemStats fetches and parses the engine host report.
func (c *Client) SystemStats(ctx context.Context) (*SystemStats, error) {
	resp, err := c.get(ctx, "/system_stats")
	if err != nil {
		return nil, fmt.Errorf("fetch system stats: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("system stats returned %d", resp.StatusCode)
	}
	var stats SystemStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode system stats: %w", err)
	}
	return &stats, nil
}

// RefreshModels asks the engine to rescan its model directories by
// requesting the checkpoint loader's object info with the refresh flag.
func (c *Client) RefreshModels(ctx context.Context) error {
	resp, err := c.get(ctx, "/object_info/"+CheckpointLoaderClass+"?refresh=true")
	if err != nil {
		return fmt.Errorf("refresh models: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model refresh returned %d", resp.StatusCode)
	}
	return nil
}

// CheckpointNames returns the checkpoint files the engine can currently
// load, parsed from the checkpoint loader's input enum.
func (c *Client) CheckpointNames(ctx context.Context) ([]string, error) {
	resp, err := c.get(ctx, "/object_info/"+CheckpointLoaderClass)
	if err != nil {
		return nil, fmt.Errorf("fetch object info: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("object info returned %d", resp.StatusCode)
	}

	var payload map[string]struct {
		Input struct {
			Required map[string]json.RawMessage `json:"required"`
		} `json:"input"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode object info: %w", err)
	}
	info, ok := payload[CheckpointLoaderClass]
	if !ok {
		return nil, fmt.Errorf("object info missing %s", CheckpointLoaderClass)
	}
	raw, ok := info.Input.Required["ckpt_name"]
	if !ok {
		return nil, nil
	}
	// The enum arrives as [["name1", "name2", ...], {...options}].
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) == 0 {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal(fields[0], &names); err != nil {
		return nil, nil
	}
	return names, nil
}

// SubmitPrompt posts a graph for execution and returns the engine's prompt
// identifier. Rejections and malformed acceptances are hard errors; the
// engine does not queue anything it did not acknowledge with an id.
func (c *Client) SubmitPrompt(ctx context.Context, graph Graph, clientID string) (string, error) {
	body, err := json.Marshal(struct {
		Prompt   Graph  `json:"prompt"`
		ClientID string `json:"client_id"`
	}{Prompt: graph, ClientID: clientID})
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build prompt request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post prompt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("prompt rejected with status %d: %s", resp.StatusCode, bodySnippet(resp.Body))
	}

	var accepted struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return "", fmt.Errorf("decode prompt response: %w", err)
	}
	if strings.TrimSpace(accepted.PromptID) == "" {
		return "", fmt.Errorf("prompt response missing prompt_id")
	}
	return accepted.PromptID, nil
}

// HistoryEntry is one finished or in-flight prompt record.
type HistoryEntry struct {
	Status  HistoryStatus         `json:"status"`
	Outputs map[string]NodeOutput `json:"outputs"`
}

// HistoryStatus carries the engine's terminal verdict for a prompt.
type HistoryStatus struct {
	StatusStr string `json:"status_str"`
	Completed bool   `json:"completed"`
}

// Terminal status_str values the engine writes into history.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// NodeOutput lists the artifacts one node produced.
type NodeOutput struct {
	Images []ImageRef `json:"images"`
}

// ImageRef locates one produced file relative to the engine output root.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// History fetches the execution record for a prompt. The second return is
// false while the engine has not finished (or started) the prompt; polling
// callers treat that as "keep waiting", not as an error.
func (c *Client) History(ctx context.Context, promptID string) (*HistoryEntry, bool, error) {
	resp, err := c.get(ctx, "/history/"+url.PathEscape(promptID))
	if err != nil {
		return nil, false, fmt.Errorf("fetch history: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("history returned %d", resp.StatusCode)
	}

	var entries map[string]HistoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, false, fmt.Errorf("decode history: %w", err)
	}
	entry, ok := entries[promptID]
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()
}

func bodySnippet(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(data) == 0 {
		return "<no body>"
	}
	return strings.TrimSpace(string(data))
}
