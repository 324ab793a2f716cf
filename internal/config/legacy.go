package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// rawDoc is the loosely-typed shape a hand-edited or legacy-exported
// config document arrives in, before it is coerced into a BackendConfig.
type rawDoc map[string]any

// getField looks up key in doc, falling back to its camelCase spelling
// (or, if key is itself camelCase, its snake_case spelling) when the
// exact key is absent. Grounded on mcp_service.py's get_field closure,
// which lets a hand-written config mix underscore and camelCase keys.
func getField(doc rawDoc, key string) (any, bool) {
	if v, ok := doc[key]; ok {
		return v, true
	}
	if alt := toCamel(key); alt != key {
		if v, ok := doc[alt]; ok {
			return v, true
		}
	}
	if alt := toSnake(key); alt != key {
		if v, ok := doc[alt]; ok {
			return v, true
		}
	}
	return nil, false
}

func toCamel(snake string) string {
	parts := strings.Split(snake, "_")
	if len(parts) < 2 {
		return snake
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

func toSnake(camel string) string {
	var b strings.Builder
	for i, r := range camel {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeLegacyFields coerces a raw backend document - as decoded from
// a hand-edited or legacy-exported JSON file, where field casing is
// inconsistent and args/auto_start may arrive in several shapes - into a
// BackendConfig. Grounded on mcp_service.py's _load_config field
// reconciliation.
func NormalizeLegacyFields(name string, doc map[string]json.RawMessage) (BackendConfig, error) {
	raw := make(rawDoc, len(doc))
	for k, v := range doc {
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			continue
		}
		raw[k] = decoded
	}

	cfg := BackendConfig{Name: name}

	if v, ok := getField(raw, "transport_type"); ok {
		cfg.Transport = Transport(strings.ToUpper(asString(v)))
	}
	if cfg.Transport == "" {
		if v, ok := getField(raw, "transport"); ok {
			cfg.Transport = Transport(strings.ToUpper(asString(v)))
		}
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportLocal
	}
	if v, ok := getField(raw, "command"); ok {
		cfg.Command = asString(v)
	}
	if v, ok := getField(raw, "args"); ok {
		cfg.Args = ParseArgs(v)
	}
	if v, ok := getField(raw, "env"); ok {
		cfg.Env = asStringMap(v)
	}
	if v, ok := getField(raw, "cwd"); ok {
		cfg.Cwd = asString(v)
	}
	if v, ok := getField(raw, "url"); ok {
		cfg.URL = asString(v)
	}
	if v, ok := getField(raw, "headers"); ok {
		cfg.Headers = asStringMap(v)
	}
	if v, ok := getField(raw, "instructions"); ok {
		cfg.Instructions = asString(v)
	} else if v, ok := getField(raw, "description"); ok {
		cfg.Instructions = asString(v)
	}

	autoStart, ok := getField(raw, "auto_start")
	if !ok {
		autoStart, ok = getField(raw, "autoStart")
	}
	if ok {
		cfg.AutoStart = asBool(autoStart)
	}

	if v, ok := getField(raw, "depends_on"); ok {
		cfg.DependsOn = ParseArgs(v)
	}

	return cfg, nil
}

// ParseArgs normalizes an arguments field that may arrive as a JSON
// array, a JSON-encoded string containing an array, a newline- or
// space-delimited string, or a single bare string, into a []string.
// Grounded on mcp_service.py's _parse_args, which tolerates exactly
// these shapes from hand-edited configs.
func ParseArgs(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, asString(item))
		}
		return out
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		var asJSON []any
		if err := json.Unmarshal([]byte(s), &asJSON); err == nil {
			out := make([]string, 0, len(asJSON))
			for _, item := range asJSON {
				if item == nil {
					continue
				}
				out = append(out, asString(item))
			}
			return out
		}
		if strings.Contains(s, "\n") {
			return splitNonEmpty(s, "\n")
		}
		if strings.Contains(s, " ") {
			return splitNonEmpty(s, " ")
		}
		return []string{s}
	default:
		return []string{asString(v)}
	}
}

func splitNonEmpty(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	default:
		return false
	}
}

// LegacyDocument is the shape of a hand-edited or legacy-exported
// config file: a single top-level `mcpServers` map keyed by backend
// name, each value a loosely-cased field document. Grounded on
// mcp_service.py's _load_config, which reads exactly this shape from
// disk on startup.
type LegacyDocument struct {
	MCPServers map[string]map[string]json.RawMessage `json:"mcpServers"`
}

// ImportLegacyFile reads a legacy single-document config file from
// path and normalizes every entry into a BackendConfig via
// NormalizeLegacyFields, the seed path a gateway operator migrating
// from a hand-edited mcpServers document uses (spec §6's legacy config
// import).
func ImportLegacyFile(path string) ([]BackendConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read legacy file %s: %w", path, err)
	}
	var doc LegacyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse legacy file %s: %w", path, err)
	}
	out := make([]BackendConfig, 0, len(doc.MCPServers))
	for name, fields := range doc.MCPServers {
		cfg, err := NormalizeLegacyFields(name, fields)
		if err != nil {
			return nil, fmt.Errorf("config: normalize legacy backend %q: %w", name, err)
		}
		out = append(out, cfg)
	}
	return out, nil
}

func asStringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = asString(val)
	}
	return out
}
