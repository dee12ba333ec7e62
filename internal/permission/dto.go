package permission

import "time"

type CheckResponse struct {
	Permission string `json:"permission"`
	FacilityID *int64 `json:"facility_id,omitempty"`
	Allowed    bool   `json:"allowed"`
}

type ValidateRequest struct {
	Permissions []string `json:"permissions" validate:"required,min=1,max=50,dive,required"`
	FacilityID  *int64   `json:"facility_id,omitempty" validate:"omitempty,gt=0"`
}

type ValidateResponse struct {
	Results map[string]bool `json:"results"`
}

type GrantRequest struct {
	Permission string     `json:"permission" validate:"required,max=128"`
	FacilityID *int64     `json:"facility_id,omitempty" validate:"omitempty,gt=0"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type GrantResponse struct {
	ID         int64      `json:"id"`
	Permission string     `json:"permission"`
	FacilityID *int64     `json:"facility_id,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type RefreshResponse struct {
	Permission string `json:"permission"`
	Holders    int    `json:"holders"`
}

type EffectivePermissionsResponse struct {
	Permissions []EffectivePermission `json:"permissions"`
}
