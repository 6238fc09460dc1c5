package globals

// JwtSecret signs and verifies access tokens. main replaces it with the
// configured secret before the router is built.
var JwtSecret = []byte("change-me")

// Context keys
type ContextKey string

const (
	UserIDKey   ContextKey = "userId"
	UsernameKey ContextKey = "username"
	RoleKey     ContextKey = "role"
)

// Role names carried in the token's role claim.
const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)
