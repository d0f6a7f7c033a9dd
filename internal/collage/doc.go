// Package collage serves bundles built by package bundle at fixed paths in
// front of another http.Handler.
//
// A request for a target path (by default /js.js) builds a fresh Packager,
// drops the target's own output file from the source set, writes the
// result to <root>/<filename> and answers with the bundle. Every other
// request goes to the wrapped handler untouched.
//
// Writes to one output path are serialized within the process and each
// write is atomic, so concurrent requests never observe a partial file.
// A failed write is logged and counted; the response is still served
// from memory.
package collage
