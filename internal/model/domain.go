package model

import (
	"github.com/google/uuid"
)

type UserRole string

const (
	UserRoleStationAdmin    UserRole = "STATION_ADMIN"
	UserRoleStationOperator UserRole = "STATION_OPERATOR"
	UserRoleStationViewer   UserRole = "STATION_VIEWER"
	UserRoleIntegration     UserRole = "INTEGRATION"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleStationAdmin, UserRoleStationOperator, UserRoleStationViewer, UserRoleIntegration:
		return true
	}
	return false
}

type Principal struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	Role   UserRole
}

func (p Principal) IsAdmin() bool {
	return p.Role == UserRoleStationAdmin
}

// CanConfigure reports whether the principal may change regions and camera identity.
func (p Principal) CanConfigure() bool {
	return p.Role == UserRoleStationAdmin || p.Role == UserRoleStationOperator
}

// CanIngest reports whether the principal may push tracker frames.
func (p Principal) CanIngest() bool {
	return p.Role == UserRoleIntegration || p.Role == UserRoleStationAdmin
}
