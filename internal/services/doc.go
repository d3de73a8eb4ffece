// Package services defines the [Catalog] interface a collection run reads from and implements it for Spotify.
//
// # Spotify Implementation
//
// [SpotifyService] wraps the zmb3/spotify client. It authenticates either with a stored user token
// (refreshed through [oauth2.Config] and reported to a callback) or with client credentials.
// Every request waits on a [rate.Limiter].
//
// # Error Handling
//
// Provider errors are mapped onto sentinels from the shared package:
//   - HTTP 404 : absence, returned as (nil, nil)
//   - [shared.ErrNotAuthenticated] : Authenticate() not called
//   - [shared.ErrAuthFailed] : token acquisition failed
//   - [shared.ErrTokenExpired] : HTTP 401, reauthorization needed
//   - [shared.ErrServiceUnavailable] : HTTP 5xx
//   - [shared.ErrAPIRequest] : any other failed request
//
// Identifiers may be given as URIs (spotify:track:<id>) or bare IDs.
package services
