// Package services defines the [Source] and [Destination] interfaces for playlist mirroring and implements
// them for TIDAL and Spotify.
//
// # TIDAL Implementation
//
// [TidalService] reads the Open API v2 JSON:API documents. Collections are walked with a generic cursor
// paginator that follows links.next until it is absent; track ISRCs are looked up in batches of up to 20 ids.
//
// Each instance owns a [RateBudget], a client-side estimate of the service's token bucket that is
// re-synchronized from the X-RateLimit-* headers of every response. While the estimate is at or below one
// token the fetcher suspends in fixed steps.
//
// # Spotify Implementation
//
// [SpotifyService] wraps github.com/zmb3/spotify/v2 for playlist creation, membership reads, additive
// appends in batches of 100, and isrc: searches.
//
// # Transports
//
// [NewHTTPClient] layers three round-trippers:
//   - [AuthTransport] : bearer token, invalidate and retry once on 401
//   - [RetryTransport] : unbounded retry on 429 honouring Retry-After
//   - [LimitTransport] : optional golang.org/x/time/rate cap
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : credentials missing or rejected twice
//   - [shared.ErrAPIRequest] : non-2xx response or transport failure
//   - [shared.ErrEmptyResponse] : empty body where a document was expected
//   - [shared.ErrMalformedPayload] : undecodable body or broken cursor
//   - [shared.ErrPlaylistNotFound] : 404 on a playlist resource
//
// A failing page discards everything collected so far; callers never see partial collections.
package services
