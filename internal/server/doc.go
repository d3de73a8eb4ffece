// Package server provides the HTTP pieces of the `auth` command.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
// [BasicRouter] uses [http.ServeMux] internally; the first [Middleware] added is the outermost.
// [RequestLogger] logs every request at debug level.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the authorization code callback. It validates the state parameter,
// exchanges the code through an [Exchanger] and publishes one [OAuthResult].
// Only the first callback is processed.
//
// # Lifecycle
//
// [Start] serves a router on the host and port of the redirect URI until [Server.Shutdown].
package server
