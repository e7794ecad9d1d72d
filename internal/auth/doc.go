// Package auth supplies OAuth2 credentials for the source and destination services.
//
// [Provider] is the credential provider the sync engine runs under: it loads the stored token for a service
// from a [CredentialStore], refreshes it through the service's token endpoint when it expires, and persists the
// refreshed token. It satisfies [oauth2.TokenSource] and the services package's Credential interface, so an
// [services.AuthTransport] can invalidate a rejected token and ask for a fresh one.
//
// [Authorize] runs the interactive PKCE authorization-code flow behind `tidex auth`: it binds the callback
// server, opens the browser, and waits for the code exchange.
//
// A provider that cannot produce any token returns an error wrapping [shared.ErrNotAuthenticated], which the
// engine treats as run-fatal.
package auth
