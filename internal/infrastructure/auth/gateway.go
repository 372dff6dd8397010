package auth

import (
	"errors"
	"net/http"
)

var ErrInvalidToken = errors.New("invalid bearer token")

// Identity is a resolved caller.
type Identity struct {
	UserID     string `json:"userId"`
	Privileged bool   `json:"privileged"`
}

// Gateway resolves the caller behind r. A nil Identity with a nil error means the request
// carried no credentials for this gateway.
type Gateway interface {
	Resolve(r *http.Request) (*Identity, error)
}

type chain struct {
	gateways []Gateway
}

// NewChain tries each gateway in order and returns the first identity found. A gateway
// error stops the chain: presented but invalid credentials never fall through to anonymous.
func NewChain(gateways ...Gateway) Gateway {
	return &chain{gateways: gateways}
}

func (c *chain) Resolve(r *http.Request) (*Identity, error) {
	for _, g := range c.gateways {
		id, err := g.Resolve(r)
		if err != nil {
			return nil, err
		}
		if id != nil {
			return id, nil
		}
	}
	return nil, nil
}

// ErrUnauthenticated is returned by Caller when no identity was resolved and anonymous
// access is disabled.
var ErrUnauthenticated = errors.New("authentication required")

// Caller resolves r through g and applies the anonymous policy. An anonymous caller is
// returned as a nil Identity with a nil error.
func Caller(g Gateway, r *http.Request, allowAnonymous bool) (*Identity, error) {
	id, err := g.Resolve(r)
	if err != nil {
		return nil, err
	}
	if id == nil && !allowAnonymous {
		return nil, ErrUnauthenticated
	}
	return id, nil
}

// OwnerID returns the hub owner id for a possibly anonymous caller.
func (id *Identity) OwnerID(anonymous string) string {
	if id == nil {
		return anonymous
	}
	return id.UserID
}

func (id *Identity) IsPrivileged() bool {
	return id != nil && id.Privileged
}
