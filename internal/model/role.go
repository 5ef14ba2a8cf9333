package model

// Role is the fixed set of account roles. Authorization decisions treat
// Admin as implying every permission; the remaining roles carry only what
// a guard explicitly allows plus the principal's own permission strings.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleManagement Role = "MANAGEMENT"
	RolePhysician  Role = "PHYSICIAN"
	RoleFrontDesk  Role = "FRONT_DESK"
	RoleLaboratory Role = "LABORATORY"
	RoleBilling    Role = "BILLING"
	RoleCompanyHR  Role = "COMPANY_HR"
	RolePatient    Role = "PATIENT"
)

// Roles lists every valid role.
var Roles = []Role{
	RoleAdmin, RoleManagement, RolePhysician, RoleFrontDesk,
	RoleLaboratory, RoleBilling, RoleCompanyHR, RolePatient,
}

// Valid reports whether r is a member of the fixed role set.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Internal reports whether r belongs to clinic staff. Internal roles are
// never company-scoped: they may touch resources of any company.
func (r Role) Internal() bool {
	switch r {
	case RoleAdmin, RoleManagement, RolePhysician, RoleFrontDesk, RoleLaboratory, RoleBilling:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }
