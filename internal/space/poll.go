package space

import "encoding/json"

// Poll is the sub-resource a PrePoll requirement points at. The gateway
// consumes it read-only; answers go back through the response endpoint.
type Poll struct {
	PK                string     `json:"pk"`
	SK                string     `json:"sk,omitempty"`
	StartedAt         int64      `json:"started_at"`
	EndedAt           int64      `json:"ended_at"`
	Questions         []Question `json:"questions"`
	ResponseEditable  bool       `json:"response_editable"`
	UserResponseCount int64      `json:"user_response_count"`
	MyResponse        []Answer   `json:"my_response,omitempty"`
}

type Question struct {
	Title    string   `json:"title"`
	Kind     string   `json:"answer_type"`
	Options  []string `json:"options,omitempty"`
	Required bool     `json:"is_required"`
}

// Answer carries one response value. The value shape depends on the
// question kind, so it stays raw JSON end to end.
type Answer struct {
	AnswerType string          `json:"answer_type"`
	Answer     json.RawMessage `json:"answer"`
}
