package comfyui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"kiln/internal/services"
)

// Node is a single graph node: the node class plus its wired inputs. Inputs
// stay untyped because their shape is defined by the node class, not by us.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	Meta      map[string]any `json:"_meta,omitempty"`
}

// Graph is a render graph keyed by node identifier, the exact payload shape
// the engine accepts on submission.
type Graph map[string]Node

// ParseGraph decodes and validates a raw JSON graph. Malformed payloads are
// rejected here so submission never sends garbage to the engine.
func ParseGraph(raw []byte) (Graph, error) {
	if len(raw) == 0 {
		return nil, services.Wrap(services.ErrValidation, "graph", "parse", "empty payload", nil)
	}
	var graph Graph
	if err := json.Unmarshal(raw, &graph); err != nil {
		return nil, services.Wrap(services.ErrValidation, "graph", "parse", "malformed JSON", err)
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return graph, nil
}

// Validate checks the structural requirements the engine enforces on
// submission: at least one node, and a class type on every node.
func (g Graph) Validate() error {
	if len(g) == 0 {
		return services.Wrap(services.ErrValidation, "graph", "validate", "graph has no nodes", nil)
	}
	ids := make([]string, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return services.Wrap(services.ErrValidation, "graph", "validate", "node with empty identifier", nil)
		}
		if strings.TrimSpace(g[id].ClassType) == "" {
			return services.Wrap(services.ErrValidation, "graph", "validate", fmt.Sprintf("node %s has no class_type", id), nil)
		}
	}
	return nil
}

// CountClass returns how many nodes carry the given class type. Used to warn
// up front when a graph carries no output-producing nodes.
func (g Graph) CountClass(classType string) int {
	count := 0
	for _, node := range g {
		if node.ClassType == classType {
			count++
		}
	}
	return count
}
