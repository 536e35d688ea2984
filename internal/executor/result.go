package executor

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Result is the outcome of one script execution.
type Result struct {
	Success    bool
	Message    string
	Output     string
	Error      string
	ReturnCode *int
	Structured map[string]any
}

func intPtr(v int) *int {
	return &v
}

func validationFailure(format string, args ...any) *Result {
	msg := fmt.Sprintf(format, args...)
	return &Result{Success: false, Message: msg, Error: msg}
}

// applyJSONOverlay consults the script stdout contract: when stdout is a
// single JSON object, its "success" and "message" keys overlay the result.
// Multi-line JSON or multiple objects are deliberately left untouched.
func applyJSONOverlay(res *Result) {
	trimmed := strings.TrimSpace(res.Output)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return
	}
	if success, ok := doc["success"].(bool); ok {
		res.Success = success
	}
	if message, ok := doc["message"].(string); ok {
		res.Message = message
	}
}
