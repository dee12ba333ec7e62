package routing

import (
	"encoding/json"

	"github.com/frahmantamala/care-access/internal/preference"
)

type PerformRoutingRequest struct {
	Location   string `json:"location" validate:"required,startswith=/,max=2048"`
	NewSession bool   `json:"new_session,omitempty"`
}

type NavigationRequest struct {
	Module       string          `json:"module" validate:"required,max=64"`
	Path         string          `json:"path" validate:"omitempty,startswith=/,max=2048"`
	FormSnapshot json.RawMessage `json:"form_snapshot,omitempty"`
}

type NavigationResponse struct {
	Session  SessionView           `json:"session"`
	Progress []preference.Progress `json:"progress"`
}
