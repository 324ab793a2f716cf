package mcptypes

import (
	"encoding/json"
	"fmt"
)

// ToolCatalogReply is the defensive sum type a backend's tools/list reply is
// parsed into. Upstream MCP servers disagree on shape far more than the
// spec admits: some return {"tools": [...]}, some a bare array, a rare few
// answer with a single tool object, so this gateway never trusts a single
// assumed shape and instead classifies the reply and rejects anything that
// fits none of the three.
type ToolCatalogReply struct {
	kind  catalogKind
	tools []ToolDef
}

type catalogKind int

const (
	catalogEmpty catalogKind = iota
	catalogList
	catalogSingle
)

// Tools returns the normalized, always-non-nil list of tools the reply
// carried, regardless of which shape it arrived in.
func (r ToolCatalogReply) Tools() []ToolDef {
	if r.tools == nil {
		return []ToolDef{}
	}
	return r.tools
}

// ParseToolCatalogReply classifies a raw tools/list result payload into a
// ToolCatalogReply, rejecting shapes that match none of the recognized
// forms (object-with-tools-array, bare array, single tool object).
func ParseToolCatalogReply(raw json.RawMessage) (ToolCatalogReply, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return ToolCatalogReply{kind: catalogEmpty}, nil
	}

	// Shape 1: {"tools": [...], "nextCursor": ...}
	var wrapped struct {
		Tools []ToolDef `json:"tools"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Tools != nil {
		return ToolCatalogReply{kind: catalogList, tools: wrapped.Tools}, nil
	}

	// Shape 2: bare array of tools.
	var bare []ToolDef
	if err := json.Unmarshal(raw, &bare); err == nil {
		return ToolCatalogReply{kind: catalogList, tools: bare}, nil
	}

	// Shape 3: a single tool object.
	var single ToolDef
	if err := json.Unmarshal(raw, &single); err == nil && single.Name != "" {
		return ToolCatalogReply{kind: catalogSingle, tools: []ToolDef{single}}, nil
	}

	return ToolCatalogReply{}, fmt.Errorf("mcptypes: unrecognized tool catalog reply shape")
}
