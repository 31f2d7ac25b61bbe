// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's identity. The API trusts the X-User-ID
// header (set by an upstream gateway or, in development, by the client
// directly); there is no credential verification here. The resolved id is
// stored in the Gin context so logging, rate limiting, and handlers all see
// the same identity.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// userIDKey is the Gin context key under which the caller id is stored.
	userIDKey = "userID"
	// userIDHeader carries the caller identity.
	userIDHeader = "X-User-ID"
	// anonymousUser is the identity assigned when no header is present.
	anonymousUser = "demo-user"
	// maxUserIDLen bounds the accepted header value.
	maxUserIDLen = 128
)

// Identity resolves the caller from the X-User-ID header and stores it in
// the Gin context. A missing or oversized header falls back to a shared
// anonymous identity so unauthenticated traffic still gets rate limited and
// quota tracked under one bucket.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader(userIDHeader))
		if uid == "" || len(uid) > maxUserIDLen {
			uid = anonymousUser
		}
		c.Set(userIDKey, uid)
		c.Next()
	}
}

// UserID returns the identity resolved by Identity(), falling back to the
// anonymous identity when the middleware did not run.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(userIDKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return anonymousUser
}
