// Package server provides HTTP routing and middleware for the web interface.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method and wildcard patterns
// ("GET /dataset/{id}"), so handlers read path values with [http.Request.PathValue].
//
// # Middleware
//
//   - [Logging] logs method, path, status and duration for each request
//   - [Recover] turns handler panics into a 500 response
//   - [Instrument] records request latency by route pattern and status code
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
//
// # Lifecycle
//
// [New] builds an [http.Server] with conservative timeouts and [Run] serves it until the
// context is cancelled, then shuts it down gracefully.
package server
