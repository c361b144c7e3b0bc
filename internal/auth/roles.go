package auth

// Role represents the kind of principal behind a request.
type Role string

const (
	// RoleUser is an operator who completed the login code exchange.
	RoleUser Role = "user"
	// RoleAPIUser is the operator identity synthesized from a device credential.
	RoleAPIUser Role = "api_user"
)

// NormalizeRole validates and normalizes a role string. Empty means RoleUser.
func NormalizeRole(value string) (Role, bool) {
	switch Role(value) {
	case "":
		return RoleUser, true
	case RoleUser, RoleAPIUser:
		return Role(value), true
	default:
		return "", false
	}
}
