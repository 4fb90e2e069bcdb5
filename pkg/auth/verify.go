package auth

import (
	"context"

	errs "mastoscrape/pkg/errors"
	"mastoscrape/pkg/logger"
	"mastoscrape/pkg/mastodon"
)

// TokenInfo is what an instance reports about an access token.
type TokenInfo struct {
	Username string
	// Scopes is empty when the server does not report them.
	Scopes []string
}

// Verifier checks token against instance. A token the instance refuses
// yields an error of type errs.ErrorTypeAuth.
type Verifier func(ctx context.Context, instance, token string) (*TokenInfo, error)

// APIVerifier verifies tokens with the instance's verify_credentials
// endpoints. opts.AccessToken is replaced by the token being checked.
func APIVerifier(opts mastodon.Options, log logger.Logger) Verifier {
	return func(ctx context.Context, instance, token string) (*TokenInfo, error) {
		opts := opts
		opts.AccessToken = token
		client := mastodon.NewClient(instance, opts, log)

		account, err := client.VerifyCredentials(ctx)
		if err != nil {
			return nil, err
		}
		info := &TokenInfo{Username: account.Username}

		// Scopes are informational; older servers 404 here.
		app, err := client.VerifyApp(ctx)
		switch {
		case err == nil:
			info.Scopes = app.Scopes
		case errs.Is(err, errs.ErrorTypeAuth), ctx.Err() != nil:
			return nil, err
		}
		return info, nil
	}
}
