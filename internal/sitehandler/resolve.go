package sitehandler

import (
	"io/fs"
	"path"
	"strings"

	"github.com/keithlinneman/collage/internal/pathutil"
)

// resolvePath maps a URL path to a file in fsys. redirectTo is set when a
// directory was requested without its trailing slash.
func resolvePath(urlPath string, fsys fs.FS) (file, redirectTo string, ok bool) {
	p := urlPath
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if strings.ContainsAny(p, "\x00\\") || pathutil.HasHiddenSegments(p) {
		return "", "", false
	}

	dir := strings.HasSuffix(p, "/")
	clean := path.Clean(p)
	if clean == "/" {
		return indexIn(fsys, "")
	}
	name := strings.TrimPrefix(clean, "/")
	if dir {
		return indexIn(fsys, name)
	}
	if existsFile(fsys, name) {
		return name, "", true
	}
	if path.Ext(name) == "" && existsFile(fsys, name+"/index.html") {
		return "", clean + "/", true
	}
	return "", "", false
}

func indexIn(fsys fs.FS, dir string) (string, string, bool) {
	name := path.Join(dir, "index.html")
	if existsFile(fsys, name) {
		return name, "", true
	}
	return "", "", false
}

func existsFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
