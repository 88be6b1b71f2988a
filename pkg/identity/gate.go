// Package identity wraps the external token-verification callback (spec §6
// "Identity callback") behind the Identity Gate (C8). The core never issues
// or hashes tokens; it only consumes whatever the surrounding auth facade
// decided.
package identity

import "errors"

// ErrUnauthenticated is returned when the verify callback rejects a token.
var ErrUnauthenticated = errors.New("identity: unauthenticated")

// User is the opaque identity established by the callback, per spec §3.
type User struct {
	ID       string
	Username string
}

// Verify is the external collaborator's contract: verify(bearer_token) ->
// {user_id, username} | Rejected.
type Verify func(token string) (User, error)

// Gate validates a bearer token on connect (§4.5) and on each hub join
// (§4.4 Join, which re-checks membership through C8).
type Gate struct {
	verify Verify
}

// NewGate wraps a Verify callback supplied by the surrounding auth facade.
func NewGate(verify Verify) *Gate {
	return &Gate{verify: verify}
}

// Authenticate validates token and returns the identity or ErrUnauthenticated.
func (g *Gate) Authenticate(token string) (User, error) {
	if token == "" {
		return User{}, ErrUnauthenticated
	}
	user, err := g.verify(token)
	if err != nil {
		return User{}, ErrUnauthenticated
	}
	return user, nil
}
