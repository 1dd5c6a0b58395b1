package chessdto

import (
	"encoding/json"
	"strings"
)

// Mode is the engine difficulty requested at game start.
type Mode string

const (
	ModeBeginner     Mode = "beginner"
	ModeIntermediate Mode = "intermediate"
	ModeAdvanced     Mode = "advanced"
)

// ParseMode maps user input to a Mode. Unknown or empty input falls back to
// intermediate and reports ok=false.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "beginner", "easy":
		return ModeBeginner, true
	case "intermediate", "medium", "":
		return ModeIntermediate, strings.TrimSpace(s) != ""
	case "advanced", "hard":
		return ModeAdvanced, true
	default:
		return ModeIntermediate, false
	}
}

type StartGameRequest struct {
	Mode Mode `json:"mode"`
}

type MoveRequest struct {
	Move string `json:"move"`
}

// ErrorResponse is the authority's error body. Detail is usually a string but
// validation failures send a structured list.
type ErrorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// Reason flattens Detail into a single line.
func (r ErrorResponse) Reason() string {
	raw := strings.TrimSpace(string(r.Detail))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Detail, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(r.Detail, &items); err == nil {
		parts := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				parts = append(parts, it.Msg)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	return raw
}

type HealthResponse struct {
	Message string `json:"message"`
}
