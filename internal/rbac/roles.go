package rbac

// Role names. Keep these stable; they are issued in access tokens.
const (
	RoleOwner      = "owner"
	RoleBroker     = "broker"
	RoleViewer     = "viewer"
	RoleSuperAdmin = "super_admin"
)

// Role groups used by the batch API.
var (
	// Operators may submit and sync batches.
	Operators = []string{RoleOwner, RoleBroker}
	// Readers may list batches and read results.
	Readers = []string{RoleOwner, RoleBroker, RoleViewer}
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleOwner, RoleBroker, RoleViewer, RoleSuperAdmin:
		return true
	default:
		return false
	}
}
