package rendering

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kiln/internal/config"
	"kiln/internal/logging"
	"kiln/internal/services"
	"kiln/internal/services/comfyui"
)

// Engine is the submission surface the executor needs from the engine client.
type Engine interface {
	SubmitPrompt(ctx context.Context, graph comfyui.Graph, clientID string) (string, error)
	History(ctx context.Context, promptID string) (*comfyui.HistoryEntry, bool, error)
}

// Handle identifies a submitted job. SubmittedAt is stamped before the
// submission request goes out so fallback artifact scans can never miss a
// file the engine wrote.
type Handle struct {
	PromptID    string
	ClientID    string
	SubmittedAt time.Time
}

// Result is the terminal record of a successful job.
type Result struct {
	PromptID    string
	SubmittedAt time.Time
	Outputs     map[string]comfyui.NodeOutput
}

// Executor submits job graphs and polls history until a terminal state.
type Executor struct {
	cfg    *config.Config
	engine Engine
	logger *slog.Logger
}

// New constructs an executor bound to the given engine client.
func New(cfg *config.Config, engine Engine, logger *slog.Logger) *Executor {
	return &Executor{
		cfg:    cfg,
		engine: engine,
		logger: logging.NewComponentLogger(logger, "rendering"),
	}
}

// Submit validates the graph and posts it to the engine with a fresh client
// id. A rejected or malformed response is a hard failure; nothing retries at
// this layer.
func (e *Executor) Submit(ctx context.Context, graph comfyui.Graph) (Handle, error) {
	if err := graph.Validate(); err != nil {
		return Handle{}, services.Wrap(services.ErrValidation, "rendering", "submit", "graph rejected", err)
	}

	handle := Handle{
		ClientID:    uuid.NewString(),
		SubmittedAt: time.Now(),
	}
	promptID, err := e.engine.SubmitPrompt(ctx, graph, handle.ClientID)
	if err != nil {
		return Handle{}, services.Wrap(services.ErrSubmission, "rendering", "submit", "engine did not accept prompt", err)
	}
	handle.PromptID = promptID

	e.logger.Info("job submitted",
		logging.String(logging.FieldPromptID, handle.PromptID),
		logging.Int("nodes", len(graph)),
	)
	return handle, nil
}

// AwaitCompletion polls history until the engine reports a terminal state or
// the wall budget runs out. Transient poll failures only burn wall time. The
// deadline check runs after each poll, so a success landing exactly at the
// deadline is still accepted, and the sleep is clamped to the remaining
// budget so the loop never overshoots it.
func (e *Executor) AwaitCompletion(ctx context.Context, handle Handle) (*Result, error) {
	maxWait := time.Duration(e.cfg.Jobs.MaxWait) * time.Second
	interval := time.Duration(e.cfg.Jobs.PollInterval) * time.Second
	start := time.Now()

	for {
		entry, found, err := e.engine.History(ctx, handle.PromptID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, services.Wrap(services.ErrTimeout, "rendering", "await", "history polling cancelled", ctx.Err())
			}
			e.logger.Warn("history poll failed",
				logging.String(logging.FieldPromptID, handle.PromptID),
				logging.Error(err),
			)
		case found && entry.Status.StatusStr == comfyui.StatusSuccess:
			e.logger.Info("job completed",
				logging.String(logging.FieldPromptID, handle.PromptID),
				logging.Duration("elapsed", time.Since(start)),
				logging.Int("output_nodes", len(entry.Outputs)),
			)
			return &Result{
				PromptID:    handle.PromptID,
				SubmittedAt: handle.SubmittedAt,
				Outputs:     entry.Outputs,
			}, nil
		case found && entry.Status.StatusStr == comfyui.StatusError:
			return nil, services.Wrap(services.ErrEngine, "rendering", "await",
				fmt.Sprintf("engine reported failure for prompt %s", handle.PromptID), nil)
		}

		elapsed := time.Since(start)
		if elapsed >= maxWait {
			return nil, services.Wrap(services.ErrTimeout, "rendering", "await",
				fmt.Sprintf("prompt %s not terminal after %s", handle.PromptID, maxWait), nil)
		}

		sleep := interval
		if remaining := maxWait - elapsed; remaining < sleep {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			return nil, services.Wrap(services.ErrTimeout, "rendering", "await", "history polling cancelled", ctx.Err())
		case <-time.After(sleep):
		}
	}
}
