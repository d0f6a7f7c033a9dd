// Package pathutil holds URL path checks shared by the request handlers.
package pathutil

import "strings"

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// HasHiddenSegments reports whether any segment starts with a dot, which
// covers dot segments, VCS directories and in-flight bundle temp files.
func HasHiddenSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
