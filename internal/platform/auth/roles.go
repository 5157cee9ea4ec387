package auth

// PlatformRole is a user's role on the platform itself, independent of any
// organization membership.
type PlatformRole string

const (
	PlatformRolePatient  PlatformRole = "PATIENT"
	PlatformRoleProvider PlatformRole = "PROVIDER"
	PlatformRoleAdmin    PlatformRole = "ADMIN"
)

func (r PlatformRole) Valid() bool {
	switch r {
	case PlatformRolePatient, PlatformRoleProvider, PlatformRoleAdmin:
		return true
	}
	return false
}

// OrgRole is a user's role within one organization. Roles are an unordered
// enum: authorization decisions use explicit allow-lists rather than numeric
// ranking, so a misordered comparison can never escalate privileges.
type OrgRole string

const (
	OrgRoleOwner        OrgRole = "OWNER"
	OrgRoleAdmin        OrgRole = "ADMIN"
	OrgRoleDoctor       OrgRole = "DOCTOR"
	OrgRoleNurse        OrgRole = "NURSE"
	OrgRoleReceptionist OrgRole = "RECEPTIONIST"
)

func (r OrgRole) Valid() bool {
	switch r {
	case OrgRoleOwner, OrgRoleAdmin, OrgRoleDoctor, OrgRoleNurse, OrgRoleReceptionist:
		return true
	}
	return false
}

// ManagementRoles is the allow-list for mutation-oriented organization
// operations (member management, feature toggles, audit log reads).
func ManagementRoles() []OrgRole {
	return []OrgRole{OrgRoleOwner, OrgRoleAdmin}
}

// ClinicalRoles is the allow-list for operations that create or modify
// clinical data.
func ClinicalRoles() []OrgRole {
	return []OrgRole{OrgRoleOwner, OrgRoleAdmin, OrgRoleDoctor, OrgRoleNurse}
}
