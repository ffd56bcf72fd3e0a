package rbac

// Role constants
const (
	RoleService = "service"
	RoleAdmin   = "admin"
	RoleViewer  = "viewer"
)

// Permission constants
const (
	PermRecordWrite = "record_write"
	PermAttachExtra = "attach_extra"
	PermQueryEntity = "query_entity"
	PermQueryAll    = "query_all"
	PermStream      = "stream"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleService: {
		PermRecordWrite, PermAttachExtra, PermQueryEntity, PermStream,
	},
	RoleAdmin: {
		PermRecordWrite, PermAttachExtra, PermQueryEntity, PermQueryAll, PermStream,
	},
	RoleViewer: {
		PermQueryEntity, PermStream,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	for _, p := range RolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}
