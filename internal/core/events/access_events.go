package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeAccessChanged = "access.changed"
	EventTypeAccessExpired = "access.expired"
)

// Change kinds carried by AccessChangedEvent.
const (
	ChangePermissionGranted = "permission_granted"
	ChangePermissionRevoked = "permission_revoked"
	ChangeModuleAssigned    = "module_assigned"
	ChangeModuleRevoked     = "module_revoked"
	ChangeModuleDeactivated = "module_deactivated"
	ChangeRoleAssigned      = "role_assigned"
	ChangeRoleRemoved       = "role_removed"
)

type AccessChangedEvent struct {
	BaseEvent
	Kind    string      `json:"kind"`
	Subject string      `json:"subject"`
	Users   []uuid.UUID `json:"users"`
	Actor   *uuid.UUID  `json:"actor,omitempty"`
}

// NewAccessChangedEvent describes a grant mutation. Users lists every user whose access may differ.
func NewAccessChangedEvent(kind, subject string, users []uuid.UUID, actor *uuid.UUID) *AccessChangedEvent {
	return &AccessChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeAccessChanged,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"kind":    kind,
				"subject": subject,
				"users":   users,
			},
		},
		Kind:    kind,
		Subject: subject,
		Users:   users,
		Actor:   actor,
	}
}

type AccessExpiredEvent struct {
	BaseEvent
	Users             []uuid.UUID `json:"users"`
	PermissionGrants  int64       `json:"permission_grants"`
	ModuleAssignments int64       `json:"module_assignments"`
	RoleMemberships   int64       `json:"role_memberships"`
}

func NewAccessExpiredEvent(users []uuid.UUID, permissionGrants, moduleAssignments, roleMemberships int64) *AccessExpiredEvent {
	return &AccessExpiredEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeAccessExpired,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"users":              users,
				"permission_grants":  permissionGrants,
				"module_assignments": moduleAssignments,
				"role_memberships":   roleMemberships,
			},
		},
		Users:             users,
		PermissionGrants:  permissionGrants,
		ModuleAssignments: moduleAssignments,
		RoleMemberships:   roleMemberships,
	}
}

// AffectedUsers returns the users an access event concerns, or nil for other events.
func AffectedUsers(event Event) []uuid.UUID {
	switch e := event.(type) {
	case *AccessChangedEvent:
		return e.Users
	case *AccessExpiredEvent:
		return e.Users
	}
	return nil
}
