// Package server provides HTTP routing, middleware, and the OAuth callback handler used by `tidex auth`.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] added first runs outermost.
//
// [CallbackRouter] registers method patterns on an [http.ServeMux]. Its middleware also sees requests no route
// matches, such as a browser's favicon fetch.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback. It validates the state parameter
// (CSRF protection), exchanges the code for tokens (with the PKCE verifier when one is supplied), and sends
// the result through a channel. It only processes one callback to prevent replay attacks.
//
// # Lifecycle
//
// [Start] binds the loopback address from the redirect URI before the browser is opened, serves until the
// callback arrives, and is shut down by the caller.
package server
