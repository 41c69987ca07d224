package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
)

// SchemaFor generates a JSON schema map for a Go type using struct tags.
// Definitions are inlined and the $schema/$id noise is stripped so the map
// can be embedded directly in a prompt.
func SchemaFor[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: false,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(T))
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

// SchemaPrompt renders a schema as instructions appended to the system
// message: field names with resolved types, which fields are required, and
// an explicit warning not to echo the schema back.
func SchemaPrompt(schema map[string]any) string {
	var b strings.Builder
	b.WriteString("Respond with a single JSON object matching this structure:\n")

	props, _ := schema["properties"].(map[string]any)
	required := requiredSet(schema)

	for _, name := range sortedKeys(props) {
		field, _ := props[name].(map[string]any)
		b.WriteString("- ")
		b.WriteString(name)
		b.WriteString(" (")
		b.WriteString(resolveType(field))
		b.WriteString(")")
		if required[name] {
			b.WriteString(" [required]")
		}
		if desc, ok := field["description"].(string); ok && desc != "" {
			b.WriteString(": ")
			b.WriteString(desc)
		}
		b.WriteString("\n")
		writeNestedHints(&b, field, "  ")
	}

	b.WriteString("Fill in actual values, NOT the schema definition. ")
	b.WriteString("Do not wrap the object in markdown fences or add commentary.")
	return b.String()
}

func requiredSet(schema map[string]any) map[string]bool {
	out := make(map[string]bool)
	if list, ok := schema["required"].([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok {
				out[s] = true
			}
		}
	}
	return out
}

// resolveType renders a field's type including array element and nested
// object shapes, e.g. "array of object" or "string".
func resolveType(field map[string]any) string {
	typ, _ := field["type"].(string)
	switch typ {
	case "array":
		if items, ok := field["items"].(map[string]any); ok {
			return "array of " + resolveType(items)
		}
		return "array"
	case "":
		return "any"
	default:
		return typ
	}
}

// writeNestedHints lists the properties of nested objects one level at a
// time so the model sees the full shape of structured fields.
func writeNestedHints(b *strings.Builder, field map[string]any, indent string) {
	nested := field
	if items, ok := field["items"].(map[string]any); ok {
		nested = items
	}
	props, ok := nested["properties"].(map[string]any)
	if !ok {
		return
	}
	required := requiredSet(nested)
	for _, name := range sortedKeys(props) {
		sub, _ := props[name].(map[string]any)
		b.WriteString(indent)
		b.WriteString("- ")
		b.WriteString(name)
		b.WriteString(" (")
		b.WriteString(resolveType(sub))
		b.WriteString(")")
		if required[name] {
			b.WriteString(" [required]")
		}
		b.WriteString("\n")
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// schemaMarkerKeys are keys that appear in JSON schema definitions but not
// in instances of the schemas this system uses.
var schemaMarkerKeys = map[string]bool{
	"properties":           true,
	"type":                 true,
	"required":             true,
	"$schema":              true,
	"$defs":                true,
	"definitions":          true,
	"additionalProperties": true,
}

// DetectSchemaEcho inspects a decoded response for schema leakage. Models
// occasionally return the schema definition instead of an instance. A pure
// echo (only schema keys) is unrecoverable; a mixed response (payload keys
// alongside schema keys) is cleaned by dropping the schema keys.
func DetectSchemaEcho(m map[string]any) (cleaned map[string]any, pureEcho bool) {
	var schemaKeys, payloadKeys int
	for k := range m {
		if schemaMarkerKeys[k] {
			schemaKeys++
		} else {
			payloadKeys++
		}
	}
	if schemaKeys == 0 {
		return m, false
	}
	if payloadKeys == 0 {
		return nil, true
	}

	cleaned = make(map[string]any, payloadKeys)
	for k, v := range m {
		if !schemaMarkerKeys[k] {
			cleaned[k] = v
		}
	}
	return cleaned, false
}
