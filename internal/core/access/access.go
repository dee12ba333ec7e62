package access

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	RootPath      = "/"
	DashboardPath = "/dashboard"
)

var (
	ErrInvalidRoleName   = errors.New("invalid role name")
	ErrInvalidModuleName = errors.New("invalid module name")

	ErrInvalidPermissionName = errors.New("invalid permission name")
)

var (
	identifierPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

	// Permission names are dotted, e.g. patients.read.
	permissionPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.:-]{0,127}$`)
)

// RoleName identifies a role. Values only come from ParseRoleName or the constants below.
type RoleName string

const (
	RoleSuperAdmin      RoleName = "superAdmin"
	RoleOnboardingTeam  RoleName = "onboardingTeam"
	RoleCaseManager     RoleName = "caseManager"
	RoleRegisteredNurse RoleName = "registeredNurse"
	RoleCareProvider    RoleName = "careProvider"
	RoleHealthcareStaff RoleName = "healthcareStaff"
	RoleFacilityAdmin   RoleName = "facilityAdmin"
)

func ParseRoleName(raw string) (RoleName, error) {
	raw = strings.TrimSpace(raw)
	if !identifierPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoleName, raw)
	}
	return RoleName(raw), nil
}

func (r RoleName) String() string {
	return string(r)
}

// ModuleName identifies a console module. Its route is derived from the name.
type ModuleName string

const (
	ModuleDashboard  ModuleName = "dashboard"
	ModuleOnboarding ModuleName = "onboarding"
	ModulePatients   ModuleName = "patients"
	ModuleFacilities ModuleName = "facilities"
	ModuleUsers      ModuleName = "users"
	ModuleReports    ModuleName = "reports"
	ModuleSettings   ModuleName = "settings"
)

func ParseModuleName(raw string) (ModuleName, error) {
	raw = strings.TrimSpace(raw)
	if !identifierPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: %q", ErrInvalidModuleName, raw)
	}
	return ModuleName(raw), nil
}

// ParsePermissionName trims and validates a permission name.
func ParsePermissionName(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !permissionPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPermissionName, raw)
	}
	return raw, nil
}

func (m ModuleName) String() string {
	return string(m)
}

// Path is the route a module is mounted on.
func (m ModuleName) Path() string {
	return "/" + string(m)
}

// defaultModuleTable is ordered; the first row matching any held role wins.
var defaultModuleTable = []struct {
	roles  []RoleName
	module ModuleName
}{
	{roles: []RoleName{RoleSuperAdmin}, module: ModuleDashboard},
	{roles: []RoleName{RoleOnboardingTeam}, module: ModuleOnboarding},
	{roles: []RoleName{RoleRegisteredNurse, RoleCareProvider, RoleHealthcareStaff}, module: ModulePatients},
	{roles: []RoleName{RoleCaseManager}, module: ModuleFacilities},
}

// DefaultModuleFor returns the landing module implied by a role set.
func DefaultModuleFor(roles []RoleName) ModuleName {
	for _, row := range defaultModuleTable {
		for _, candidate := range row.roles {
			if HasRole(roles, candidate) {
				return row.module
			}
		}
	}
	return ModuleDashboard
}

func HasRole(roles []RoleName, want RoleName) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

func IsSuperAdmin(roles []RoleName) bool {
	return HasRole(roles, RoleSuperAdmin)
}

// Clock supplies the current time; tests substitute a fixed one.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC()
}
