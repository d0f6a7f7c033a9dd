// Package bundle combines a set of source files into one servable artifact.
//
// The pieces, leaves first:
//   - aggregation: read every resolved file in order and append "\n\n"
//     after each one, including the last
//   - [Processor]: the post-processing variant chosen at construction
//     ([Passthrough], [Minified] or [Stylesheet])
//   - [Packager]: owns a fileset.Resolver and a Processor, caches the
//     [Artifact] lazily and drops it again when [Packager.Ignore] removes
//     a file
//
// The artifact's modification time is the newest modification time of its
// sources. [Packager.Write] stamps the output file with that time rather
// than the wall clock so repeated builds of unchanged sources keep a stable
// Last-Modified.
//
// A Packager is not safe for concurrent use. Build a fresh one per request.
package bundle
