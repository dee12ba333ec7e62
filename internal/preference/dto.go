package preference

import (
	"encoding/json"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/core/access"
)

type UpdatePreferencesRequest struct {
	DefaultModule      *string `json:"default_module,omitempty" validate:"omitempty,max=64"`
	LastActiveModule   *string `json:"last_active_module,omitempty" validate:"omitempty,max=64"`
	PreferredDashboard *string `json:"preferred_dashboard,omitempty" validate:"omitempty,oneof=unified module_specific"`
	AutoRoute          *bool   `json:"auto_route,omitempty"`
}

// ToUpdate validates module names and converts the request.
func (r UpdatePreferencesRequest) ToUpdate() (Update, error) {
	var u Update
	if r.DefaultModule != nil {
		m, err := access.ParseModuleName(*r.DefaultModule)
		if err != nil {
			return Update{}, internal.NewValidationFieldError("default_module", err.Error(), internal.ErrCodeInvalidIdentifier)
		}
		u.DefaultModule = &m
	}
	if r.LastActiveModule != nil {
		m, err := access.ParseModuleName(*r.LastActiveModule)
		if err != nil {
			return Update{}, internal.NewValidationFieldError("last_active_module", err.Error(), internal.ErrCodeInvalidIdentifier)
		}
		u.LastActiveModule = &m
	}
	if r.PreferredDashboard != nil {
		d := Dashboard(*r.PreferredDashboard)
		u.PreferredDashboard = &d
	}
	u.AutoRoute = r.AutoRoute
	if u.IsEmpty() {
		return Update{}, internal.NewValidationError("at least one preference must be set", internal.ErrCodeInvalidPreferences)
	}
	return u, nil
}

type RecordProgressRequest struct {
	Module       string          `json:"module" validate:"required,max=64"`
	Path         string          `json:"path" validate:"omitempty,max=2048"`
	FormSnapshot json.RawMessage `json:"form_snapshot,omitempty"`
}

type ProgressResponse struct {
	Progress []Progress `json:"progress"`
}
