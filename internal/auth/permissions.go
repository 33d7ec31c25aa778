package auth

// Permission names referenced by route declarations. They must exist in the
// catalog before the routes that name them are hit; EnsureBuiltins seeds them.
const (
	PermViewProfile       = "view_profile"
	PermEditProfile       = "edit_profile"
	PermManageUsers       = "manage_users"
	PermManageRoles       = "manage_roles"
	PermManagePermissions = "manage_permissions"
)

// Builtin role names.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// BuiltinPermissions is the predefined catalog seeded at startup.
var BuiltinPermissions = []Permission{
	{Name: PermViewProfile, Action: ActionRead, Resource: "profile", Description: "Can view user profile"},
	{Name: PermEditProfile, Action: ActionUpdate, Resource: "profile", Description: "Can edit own profile"},
	{Name: PermManageUsers, Action: ActionManage, Resource: "users", Description: "Can manage all users"},
	{Name: PermManageRoles, Action: ActionManage, Resource: "roles", Description: "Can manage roles"},
	{Name: PermManagePermissions, Action: ActionManage, Resource: "permissions", Description: "Can manage permissions"},
}
