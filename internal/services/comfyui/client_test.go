package comfyui_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kiln/internal/services/comfyui"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*comfyui.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return comfyui.New(server.URL, server.Client(), 0), server
}

func TestReady(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/system_stats" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"system":{},"devices":[]}`))
	})
	if !client.Ready(context.Background()) {
		t.Fatal("expected ready against healthy endpoint")
	}

	failing, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	if failing.Ready(context.Background()) {
		t.Fatal("expected not ready for 500 response")
	}

	unreachable := comfyui.New("http://127.0.0.1:1", nil, 0)
	if unreachable.Ready(context.Background()) {
		t.Fatal("expected not ready for unreachable endpoint")
	}
}

func TestSystemStats(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"system": {"os": "posix", "ram_total": 67108864, "ram_free": 33554432, "python_version": "3.11.9"},
			"devices": [{"name": "cuda:0 NVIDIA A5000", "type": "cuda", "vram_total": 25769803776, "vram_free": 24000000000}]
		}`))
	})

	stats, err := client.SystemStats(context.Background())
	if err != nil {
		t.Fatalf("SystemStats returned error: %v", err)
	}
	if stats.System.OS != "posix" {
		t.Fatalf("unexpected os: %q", stats.System.OS)
	}
	if len(stats.Devices) != 1 || stats.Devices[0].Type != "cuda" {
		t.Fatalf("unexpected devices: %+v", stats.Devices)
	}
}

func TestSubmitPromptSuccess(t *testing.T) {
	var received struct {
		Prompt   map[string]struct {
			ClassType string `json:"class_type"`
		} `json:"prompt"`
		ClientID string `json:"client_id"`
	}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/prompt" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type: %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode submission: %v", err)
		}
		w.Write([]byte(`{"prompt_id": "abc-123", "number": 1}`))
	})

	graph := comfyui.Graph{
		"3": {ClassType: "KSampler", Inputs: map[string]any{"steps": 20}},
		"9": {ClassType: "SaveImage", Inputs: map[string]any{"images": []any{"8", 0}}},
	}
	id, err := client.SubmitPrompt(context.Background(), graph, "client-uuid")
	if err != nil {
		t.Fatalf("SubmitPrompt returned error: %v", err)
	}
	if id != "abc-123" {
		t.Fatalf("unexpected prompt id: %q", id)
	}
	if received.ClientID != "client-uuid" {
		t.Fatalf("client id not forwarded: %q", received.ClientID)
	}
	if received.Prompt["3"].ClassType != "KSampler" {
		t.Fatalf("graph not forwarded intact: %+v", received.Prompt)
	}
}

func TestSubmitPromptRejected(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid prompt"}`))
	})

	_, err := client.SubmitPrompt(context.Background(), comfyui.Graph{"1": {ClassType: "X"}}, "cid")
	if err == nil {
		t.Fatal("expected error for rejected prompt")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected status in error, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid prompt") {
		t.Fatalf("expected body snippet in error, got %v", err)
	}
}

func TestSubmitPromptMissingID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"number": 7}`))
	})

	_, err := client.SubmitPrompt(context.Background(), comfyui.Graph{"1": {ClassType: "X"}}, "cid")
	if err == nil {
		t.Fatal("expected error when acceptance lacks prompt_id")
	}
}

func TestHistoryPending(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/history/job-1" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{}`))
	})

	entry, found, err := client.History(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if found || entry != nil {
		t.Fatalf("expected pending result, got found=%v entry=%+v", found, entry)
	}
}

func TestHistoryCompleted(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"job-2": {
				"status": {"status_str": "success", "completed": true},
				"outputs": {
					"9": {"images": [{"filename": "render_00001_.png", "subfolder": "batch", "type": "output"}]}
				}
			}
		}`))
	})

	entry, found, err := client.History(context.Background(), "job-2")
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if !found {
		t.Fatal("expected completed entry")
	}
	if entry.Status.StatusStr != "success" {
		t.Fatalf("unexpected status: %+v", entry.Status)
	}
	images := entry.Outputs["9"].Images
	if len(images) != 1 || images[0].Filename != "render_00001_.png" || images[0].Subfolder != "batch" {
		t.Fatalf("unexpected outputs: %+v", entry.Outputs)
	}
}

func TestCheckpointNames(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/object_info/CheckpointLoaderSimple" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"CheckpointLoaderSimple": {
				"input": {"required": {"ckpt_name": [["sd_xl_base.safetensors", "flux-dev.ckpt"], {}]}}
			}
		}`))
	})

	names, err := client.CheckpointNames(context.Background())
	if err != nil {
		t.Fatalf("CheckpointNames returned error: %v", err)
	}
	if len(names) != 2 || names[0] != "sd_xl_base.safetensors" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestRefreshModelsSendsRefreshFlag(t *testing.T) {
	var sawRefresh bool
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/object_info/CheckpointLoaderSimple" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		sawRefresh = r.URL.Query().Get("refresh") == "true"
		w.Write([]byte(`{}`))
	})

	if err := client.RefreshModels(context.Background()); err != nil {
		t.Fatalf("RefreshModels returned error: %v", err)
	}
	if !sawRefresh {
		t.Fatal("expected refresh=true query parameter")
	}
}
