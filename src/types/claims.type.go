package types

import "github.com/golang-jwt/jwt/v4"

// Claims are issued by the auth service. Subject is the numeric user id.
type Claims struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}
