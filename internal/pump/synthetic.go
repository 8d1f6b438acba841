package pump

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/triage-ai/palisade/services/mcp_filter/internal/jsonrpc"
)

// syntheticToolName is reserved by the filter and never forwarded. It is
// recognized before the allowlist check, so it works even when the
// upstream process is down.
const syntheticToolName = "get_access_policy"

// syntheticToolDescriptor is appended to upstream tools/list responses so
// clients can discover the synthetic tool.
var syntheticToolDescriptor = map[string]any{
	"name": syntheticToolName,
	"description": "Returns the active MCP access-control policy: tool allowlist, " +
		"permanently blocked tools, and org/repo restrictions.",
	"inputSchema": map[string]any{
		"type":       "object",
		"properties": map[string]any{},
		"required":   []any{},
	},
}

// syntheticResult builds the tools/call result for get_access_policy: an
// MCP text content block holding the policy document as indented JSON.
func (p *Pump) syntheticResult(id json.RawMessage) (*jsonrpc.Message, error) {
	doc, err := json.MarshalIndent(p.policy.Document(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal policy document: %w", err)
	}
	result := map[string]any{
		"content": []any{
			map[string]any{"type": "text", "text": string(doc)},
		},
	}
	return jsonrpc.NewResult(id, result)
}

// injectSyntheticTool rewrites a tools/list response for a tracked
// request ID, appending the synthetic tool descriptor to result.tools.
// Every other frame is returned untouched so the relay stays verbatim.
func (p *Pump) injectSyntheticTool(line []byte) []byte {
	var resp map[string]any
	if err := json.Unmarshal(line, &resp); err != nil {
		return line
	}

	rawID, err := json.Marshal(resp["id"])
	if err != nil || !p.takeListID(rawID) {
		return line
	}

	result, ok := resp["result"].(map[string]any)
	if !ok {
		return line
	}
	tools, ok := result["tools"].([]any)
	if !ok {
		return line
	}

	result["tools"] = append(tools, syntheticToolDescriptor)
	out, err := json.Marshal(resp)
	if err != nil {
		return line
	}
	return out
}

// callParamsSchema validates the tools/call params envelope before any
// policy evaluation: a name string is required and arguments, when
// present, must be an object.
var callParamsSchema = mustCompileCallParamsSchema()

const callParamsSchemaJSON = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"arguments": {"type": "object"}
	}
}`

func mustCompileCallParamsSchema() *jsonschema.Schema {
	var schemaObj any
	if err := json.Unmarshal([]byte(callParamsSchemaJSON), &schemaObj); err != nil {
		panic(fmt.Sprintf("tools/call params schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("tools_call_params.json", schemaObj); err != nil {
		panic(fmt.Sprintf("tools/call params schema: %v", err))
	}
	sch, err := c.Compile("tools_call_params.json")
	if err != nil {
		panic(fmt.Sprintf("tools/call params schema: %v", err))
	}
	return sch
}

// validateCallParams returns a description of the envelope violation, or
// "" when params are well-formed.
func validateCallParams(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "params object is missing"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Sprintf("params are not valid JSON: %v", err)
	}
	if err := callParamsSchema.Validate(v); err != nil {
		return err.Error()
	}
	return ""
}
