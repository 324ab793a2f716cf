// Package compliance implements the Compliance Normalizer (spec §4.3):
// stateless functions that coerce handshake responses, tool definitions
// and error envelopes into the shape strict MCP clients expect,
// regardless of what an upstream backend actually sent.
//
// Grounded on mcp_dock/core/mcp_compliance.py's MCPComplianceEnforcer and
// MCPErrorHandler, translated from mutate-a-dict-in-place into pure
// functions over the gateway's own mcptypes.
package compliance

import (
	"encoding/json"
	"strings"

	"github.com/mcpdock/gateway/internal/mcperrors"
	"github.com/mcpdock/gateway/internal/mcptypes"
)

// FixHandshakeResult applies rules 1, 2 and 4 of spec §4.3 to a backend's
// raw initialize result: relocates instructions out of serverInfo,
// turns a missing or null logging capability into an empty object, fills
// in listChanged/subscribe defaults on tools/resources capabilities that
// are present and non-null (a null tools or resources entry is passed
// through unchanged), and echoes back the protocol version the client
// requested when the gateway supports it.
func FixHandshakeResult(raw json.RawMessage, requestedVersion string) (mcptypes.HandshakeResult, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return mcptypes.HandshakeResult{}, err
	}

	result := mcptypes.HandshakeResult{ProtocolVersion: string(mcptypes.ProtocolPrimary)}

	if pv, ok := doc["protocolVersion"]; ok {
		var v string
		if json.Unmarshal(pv, &v) == nil {
			result.ProtocolVersion = v
		}
	}
	if mcptypes.IsSupported(requestedVersion) {
		result.ProtocolVersion = requestedVersion
	}

	capabilities := fixCapabilities(doc["capabilities"])
	result.Capabilities = capabilities

	var serverInfo struct {
		Name         string `json:"name"`
		Version      string `json:"version"`
		Instructions string `json:"instructions"`
		Description  string `json:"description"`
	}
	if raw, ok := doc["serverInfo"]; ok {
		_ = json.Unmarshal(raw, &serverInfo)
	}
	if serverInfo.Name == "" {
		serverInfo.Name = "Unknown"
	}
	if serverInfo.Version == "" {
		serverInfo.Version = "1.0.0"
	}
	result.ServerInfo = mcptypes.ServerInfo{Name: serverInfo.Name, Version: serverInfo.Version}

	instructions := serverInfo.Instructions
	if instructions == "" {
		if top, ok := doc["instructions"]; ok {
			var v string
			_ = json.Unmarshal(top, &v)
			instructions = v
		}
	}
	result.Instructions = strings.TrimSpace(instructions)

	return result, nil
}

func fixCapabilities(raw json.RawMessage) json.RawMessage {
	caps := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &caps)
	}

	if v, ok := caps["logging"]; !ok || v == nil {
		caps["logging"] = map[string]any{}
	}

	if v, ok := caps["tools"]; ok && v != nil {
		m, ok := v.(map[string]any)
		if !ok {
			m = map[string]any{}
		}
		if _, ok := m["listChanged"]; !ok || m["listChanged"] == nil {
			m["listChanged"] = true
		}
		caps["tools"] = m
	}

	if v, ok := caps["resources"]; ok && v != nil {
		m, ok := v.(map[string]any)
		if !ok {
			m = map[string]any{"subscribe": false, "listChanged": false}
		} else {
			if _, ok := m["subscribe"]; !ok {
				m["subscribe"] = false
			}
			if _, ok := m["listChanged"]; !ok {
				m["listChanged"] = false
			}
		}
		caps["resources"] = m
	}

	out, _ := json.Marshal(caps)
	return out
}

// FixToolDef applies rule 3 of spec §4.3 to a raw backend tool
// definition. Returns ok=false if the tool has no name and must be
// dropped.
func FixToolDef(raw json.RawMessage) (mcptypes.ToolDef, bool) {
	var doc struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		InputSchema json.RawMessage `json:"inputSchema"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return mcptypes.ToolDef{}, false
	}
	if strings.TrimSpace(doc.Name) == "" {
		return mcptypes.ToolDef{}, false
	}

	schema := doc.InputSchema
	if len(schema) == 0 || string(schema) == "null" {
		schema = json.RawMessage(`{"type":"object"}`)
	} else {
		var asMap map[string]any
		if err := json.Unmarshal(schema, &asMap); err != nil {
			schema = json.RawMessage(`{"type":"object"}`)
		} else if _, ok := asMap["type"]; !ok {
			asMap["type"] = "object"
			fixed, _ := json.Marshal(asMap)
			schema = fixed
		}
	}

	return mcptypes.ToolDef{Name: doc.Name, Description: doc.Description, InputSchema: schema}, true
}

// FixToolCatalog runs FixToolDef over every tool in reply, dropping
// unnamed tools.
func FixToolCatalog(reply mcptypes.ToolCatalogReply) []mcptypes.ToolDef {
	in := reply.Tools()
	out := make([]mcptypes.ToolDef, 0, len(in))
	for _, t := range in {
		raw, err := json.Marshal(t)
		if err != nil {
			continue
		}
		fixed, ok := FixToolDef(raw)
		if !ok {
			continue
		}
		out = append(out, fixed)
	}
	return out
}

// SynthesizeResourcesList implements the spec §9 REDESIGN FLAG: a
// backend that advertises a `resources` capability in its handshake has
// its resources/list and resources/templates/list calls forwarded
// normally; a backend that does not gets an empty, schema-valid result
// synthesized locally (spec §4.3 rule 6) so clients that probe the
// method unconditionally never see an error.
func SynthesizeResourcesList(capabilities json.RawMessage) (shouldForward bool) {
	if len(capabilities) == 0 {
		return false
	}
	var caps map[string]any
	if err := json.Unmarshal(capabilities, &caps); err != nil {
		return false
	}
	v, ok := caps["resources"]
	return ok && v != nil
}

// EmptyResourcesList returns the synthesized {"resources":[]} result.
func EmptyResourcesList() json.RawMessage {
	return json.RawMessage(`{"resources":[]}`)
}

// EmptyResourceTemplatesList returns the synthesized
// {"resourceTemplates":[]} result.
func EmptyResourceTemplatesList() json.RawMessage {
	return json.RawMessage(`{"resourceTemplates":[]}`)
}

// MapHTTPError wraps mcperrors.HTTPStatusToJSONRPCCode into a ready-made
// JSON-RPC error Message (spec §4.3 rule 5).
func MapHTTPError(id json.RawMessage, status int, message string) *mcptypes.Message {
	code := mcperrors.HTTPStatusToJSONRPCCode(status)
	if code == 0 {
		code = mcperrors.CodeInternalError
	}
	return mcptypes.NewError(id, code, message, nil)
}
