package orchestrator

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/asheshgoplani/claude-orchestrator/internal/provider"
)

var structValidate = validator.New()

// DecodeRequest parses raw bytes written to /new into a provider.Request,
// validating required-field shape before any gate logic runs.
func DecodeRequest(raw []byte) (*provider.Request, error) {
	var req provider.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, claudeerr.InvalidRequest("malformed JSON: " + err.Error())
	}
	if err := structValidate.Struct(&req); err != nil {
		return nil, claudeerr.InvalidRequest("missing required field: " + err.Error())
	}
	return &req, nil
}

// Handle is the response returned from a successful submit, matching
// §4.4.1 step 16's shape.
type Handle struct {
	SessionID    string `json:"session_id"`
	Status       string `json:"status"`
	StatusPath   string `json:"status_path"`
	OutputPath   string `json:"output_path"`
	ResponsePath string `json:"response_path"`
	PromptPath   string `json:"prompt_path"`
}

func handleFor(sessionID string) Handle {
	return Handle{
		SessionID:    sessionID,
		Status:       "creating",
		StatusPath:   "/sessions/" + sessionID + "/status",
		OutputPath:   "/sessions/" + sessionID + "/output",
		ResponsePath: "/sessions/" + sessionID + "/response",
		PromptPath:   "/sessions/" + sessionID + "/prompt",
	}
}
