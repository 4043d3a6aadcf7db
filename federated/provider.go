// Package federated implements the OAuth / OIDC channel. The flow stores
// its state server side in the shared credential store, so a callback can
// land on any compute instance, and talks to identity providers through a
// narrow bridge that returns verified claims only.
package federated

import "context"

// Claims are the verified identity claims a bridge returns after a
// successful code exchange.
type Claims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	AvatarURL     string
}

// Provider is the bridge to one identity provider. Exchange verifies the
// provider response and returns claims only: provider access, refresh, and
// id tokens never cross this boundary, which keeps them out of sessions by
// construction.
type Provider interface {
	// Name is the provider key used in routes and stored state.
	Name() string
	// AuthCodeURL builds the provider authorization URL carrying the state.
	AuthCodeURL(state string) string
	// Exchange redeems the authorization code for verified claims.
	Exchange(ctx context.Context, code string) (*Claims, error)
}
