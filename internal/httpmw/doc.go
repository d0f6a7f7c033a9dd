// Package httpmw holds the middleware stack of the public server.
//
// httpserver.NewHandler composes it outermost first: security headers,
// panic recovery, request ID, client IP, rate limiting, tracing, trace
// headers, metrics, request-scoped logging, access log, then the router.
// Query strings are logged because bundle URLs carry only a timestamp there;
// user agents and other headers are not.
package httpmw
