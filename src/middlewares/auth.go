package middlewares

import (
	"errors"
	"lodging/src/types"
	"log"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

var jwtKey = []byte(os.Getenv("JWT_SECRET"))

// SetSigningKey replaces the HS256 key read from JWT_SECRET.
func SetSigningKey(key []byte) {
	jwtKey = key
}

// AuthMiddleware accepts a bearer token issued by the auth service and stores the caller's
// id and role on the context.
func AuthMiddleware(ctx *gin.Context) {
	bearerToken := ctx.Request.Header.Get("Authorization")
	if !strings.HasPrefix(bearerToken, "Bearer ") {
		ctx.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	reqToken := strings.TrimSpace(strings.TrimPrefix(bearerToken, "Bearer "))
	if reqToken == "" {
		ctx.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	claims := &types.Claims{}
	tkn, err := jwt.ParseWithClaims(reqToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtKey, nil
	})
	if err != nil {
		log.Printf("token error: %s\n", err.Error())
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	if !tkn.Valid {
		ctx.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || uid == 0 {
		log.Printf("error parsing claims: invalid subject %q\n", claims.Subject)
		ctx.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	role := claims.Role
	if role == "" {
		role = types.ROLE_GUEST
	}
	ctx.Set("id", uint(uid))
	ctx.Set("username", claims.Username)
	ctx.Set("role", string(role))
}

// RequireRole rejects callers whose token carries none of roles.
func RequireRole(roles ...types.Role) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		role := types.Role(ctx.GetString("role"))
		if !slices.Contains(roles, role) {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "code": "forbidden"})
			return
		}
		ctx.Next()
	}
}

// SignToken issues a token in the format AuthMiddleware expects.
func SignToken(userID uint, role types.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &types.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtKey)
}
