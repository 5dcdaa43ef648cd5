// Package auth carries the caller identity through every core operation and
// implements the owner checks applied to project-scoped records.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/models"
)

// Caller is the opaque identity supplied by the authentication layer.
// The zero value is an anonymous caller.
type Caller struct {
	UserID string
	// Admin callers may run operator routes that span every project.
	Admin bool
}

// User returns a Caller for the given user id.
func User(id string) Caller { return Caller{UserID: id} }

// Authenticated reports whether the caller carries an identity.
func (c Caller) Authenticated() bool { return c.UserID != "" }

// RequireAuthenticated fails with an unauthenticated error for anonymous callers.
func RequireAuthenticated(c Caller) error {
	if !c.Authenticated() {
		return apperr.New(apperr.CodeUnauthenticated, "authentication required")
	}
	return nil
}

// RequireAdmin fails unless c is an authenticated admin.
func RequireAdmin(c Caller) error {
	if err := RequireAuthenticated(c); err != nil {
		return err
	}
	if !c.Admin {
		return apperr.New(apperr.CodeUnauthorized, "admin access required")
	}
	return nil
}

// RequireOwner fails unless c owns project p.
func RequireOwner(c Caller, p *models.Project) error {
	if err := RequireAuthenticated(c); err != nil {
		return err
	}
	if p == nil || p.UserID != c.UserID {
		return apperr.New(apperr.CodeUnauthorized, "not allowed")
	}
	return nil
}

// TokenAuthenticator resolves bearer tokens to callers from a static token table.
type TokenAuthenticator struct {
	tokens map[string]string // token -> user id
	admins map[string]bool   // user id -> admin
}

// NewTokenAuthenticator copies the token table. Callers whose user id is listed in
// admins are marked Admin.
func NewTokenAuthenticator(tokens map[string]string, admins []string) *TokenAuthenticator {
	t := make(map[string]string, len(tokens))
	for k, v := range tokens {
		t[k] = v
	}
	a := make(map[string]bool, len(admins))
	for _, id := range admins {
		a[id] = true
	}
	return &TokenAuthenticator{tokens: t, admins: a}
}

// Authenticate returns the caller for the request's bearer token, or an anonymous
// caller when the header is missing or the token is unknown.
func (a *TokenAuthenticator) Authenticate(r *http.Request) Caller {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return Caller{}
	}
	for known, userID := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(known)) == 1 {
			return Caller{UserID: userID, Admin: a.admins[userID]}
		}
	}
	return Caller{}
}
