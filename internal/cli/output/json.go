package output

import (
	"encoding/json"
	"io"
	"time"
)

// JSONFormatter formats output as JSON.
type JSONFormatter struct {
	writer io.Writer
	now    func() time.Time
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{writer: w, now: time.Now}
}

// Output is the stable JSON document every command emits.
type Output struct {
	Success   bool           `json:"success"`
	Timestamp string         `json:"timestamp"`
	Command   string         `json:"command,omitempty"`
	Data      any            `json:"data,omitempty"`
	Error     *ErrorOutput   `json:"error,omitempty"`
	Summary   map[string]any `json:"summary,omitempty"`
}

// ErrorOutput represents error information in JSON output.
type ErrorOutput struct {
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Write outputs data as indented JSON.
func (j *JSONFormatter) Write(out Output) error {
	if out.Timestamp == "" {
		out.Timestamp = j.now().UTC().Format(time.RFC3339)
	}
	encoder := json.NewEncoder(j.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// WriteError outputs an error as JSON.
func (j *JSONFormatter) WriteError(cmd, code string, err error, suggestion string) error {
	return j.Write(Output{
		Success: false,
		Command: cmd,
		Error: &ErrorOutput{
			Message:    err.Error(),
			Code:       code,
			Suggestion: suggestion,
		},
	})
}

// WriteSuccess outputs a successful result as JSON.
func (j *JSONFormatter) WriteSuccess(cmd string, data any, summary map[string]any) error {
	return j.Write(Output{
		Success: true,
		Command: cmd,
		Data:    data,
		Summary: summary,
	})
}
