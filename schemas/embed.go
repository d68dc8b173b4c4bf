// Package schemas provides embedded JSON Schema files for the four MCP
// tool input shapes, validated by internal/registry before a tools/call
// handler runs.
package schemas

import "embed"

// FS contains one v1.json per tool, keyed by tool name:
// FS.ReadFile("prompt_enhancer/v1.json"), etc.
//
//go:embed */v1.json
var FS embed.FS

// Load returns the input schema for the named tool.
func Load(toolName string) ([]byte, error) {
	return FS.ReadFile(toolName + "/v1.json")
}
