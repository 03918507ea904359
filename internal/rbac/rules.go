package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"quiz:view",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
	},
	"teacher": {
		"quiz:view",
		"quiz:create",
		"quiz:publish",
		"quiz:archive",
		"quiz:export-seb",
		"attempt:view-all",
		"audit:view",
	},
	"admin": {
		"*", // everything
	},
}
