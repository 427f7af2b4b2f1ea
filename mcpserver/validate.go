package mcpserver

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/obsidianmcp/obsidian-mcp-go/mcp"
)

// validateArgs checks raw tool arguments against the tool's input schema and
// returns every violation, each qualified by its field path. Validation never
// partially succeeds: the handler only runs when the returned slice is empty.
func validateArgs(schema mcp.ToolInputSchema, raw json.RawMessage) []string {
	args := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return []string{"arguments: expected a JSON object"}
		}
	}

	var violations []string
	for _, req := range schema.Required {
		if _, ok := args[req]; !ok {
			violations = append(violations, fmt.Sprintf("%s: required field is missing", req))
		}
	}
	for key, val := range args {
		prop, known := schema.Properties[key]
		if !known {
			if !schema.AdditionalProperties {
				violations = append(violations, fmt.Sprintf("%s: unknown field", key))
			}
			continue
		}
		violations = append(violations, checkValue(key, prop, val)...)
	}

	sort.Strings(violations)
	return violations
}

// checkValue type-checks one value against a schema node, descending into
// arrays and objects. path carries the field path for the violation message.
func checkValue(path string, prop mcp.SchemaProperty, val any) []string {
	if prop.Type == "" {
		return nil
	}
	var violations []string
	mismatch := func() {
		violations = append(violations, fmt.Sprintf("%s: expected %s", path, prop.Type))
	}

	switch prop.Type {
	case "string":
		if _, ok := val.(string); !ok {
			mismatch()
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			mismatch()
		}
	case "number":
		if _, ok := val.(float64); !ok {
			mismatch()
		}
	case "integer":
		f, ok := val.(float64)
		if !ok || f != float64(int64(f)) {
			mismatch()
		}
	case "array":
		items, ok := val.([]any)
		if !ok {
			mismatch()
			break
		}
		if prop.Items != nil {
			for i, item := range items {
				violations = append(violations, checkValue(fmt.Sprintf("%s[%d]", path, i), *prop.Items, item)...)
			}
		}
	case "object":
		obj, ok := val.(map[string]any)
		if !ok {
			mismatch()
			break
		}
		for k, v := range obj {
			if sub, known := prop.Properties[k]; known {
				violations = append(violations, checkValue(path+"."+k, sub, v)...)
			}
		}
	}

	if len(violations) == 0 && len(prop.Enum) > 0 {
		found := false
		for _, e := range prop.Enum {
			if e == val {
				found = true
				break
			}
		}
		if !found {
			violations = append(violations, fmt.Sprintf("%s: must be one of the allowed values", path))
		}
	}
	return violations
}

// violationMessage folds all violations into the single multi-line message
// carried by the InvalidParams error.
func violationMessage(violations []string) string {
	return "invalid arguments:\n" + strings.Join(violations, "\n")
}
