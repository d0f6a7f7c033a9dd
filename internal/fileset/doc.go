// Package fileset expands glob patterns against a root directory into an
// ordered, deduplicated list of absolute file paths.
//
// Patterns use doublestar syntax, so a "**" segment matches zero or more
// directory levels. Results keep pattern order, then lexical order within
// a pattern, and the first occurrence of a path wins.
package fileset
