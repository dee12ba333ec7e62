package role

import (
	"time"

	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/grants"
)

type AssignRoleRequest struct {
	Role       string     `json:"role" validate:"required"`
	FacilityID *int64     `json:"facility_id,omitempty" validate:"omitempty,gt=0"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type MembershipResponse struct {
	Role       access.RoleName `json:"role"`
	FacilityID *int64          `json:"facility_id,omitempty"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
}

type RolesResponse struct {
	Roles []access.RoleName `json:"roles"`
}

type MembershipsResponse struct {
	Memberships []MembershipResponse `json:"memberships"`
}

type CatalogResponse struct {
	Roles []grants.Role `json:"roles"`
}

func ToMembershipResponses(memberships []grants.UserRole) []MembershipResponse {
	out := make([]MembershipResponse, 0, len(memberships))
	for _, m := range memberships {
		out = append(out, MembershipResponse{
			Role:       m.Role.Name,
			FacilityID: m.FacilityID,
			ExpiresAt:  m.ExpiresAt,
		})
	}
	return out
}
