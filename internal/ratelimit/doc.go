// Package ratelimit is per client IP rate limiting for the public server.
//
// Limiters live in memory on one instance. Idle entries are evicted in the
// background and the number of tracked clients is capped, so a spray of
// source addresses cannot grow the map without bound. It is a backstop for
// a single noisy client, not protection against distributed floods.
package ratelimit
