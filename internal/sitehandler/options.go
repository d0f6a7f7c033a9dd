package sitehandler

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/keithlinneman/collage/internal/log"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

type Options struct {
	Logger log.Logger
	// FS is the site root. Bundle outputs live in it too but are normally
	// answered by the collage middleware before a request gets here.
	FS fs.FS

	Site404File string // default: "404.html"

	// Cache policies applied by file extension.
	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=86400"
	OtherCacheControl string // default: "public, max-age=3600"
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Site404File == "" {
		o.Site404File = "404.html"
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=86400"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.FS == nil {
		return fmt.Errorf("%w: FS is nil", ErrInvalidOptions)
	}
	if !fs.ValidPath(o.Site404File) {
		return fmt.Errorf("%w: invalid 404 file %q", ErrInvalidOptions, o.Site404File)
	}
	return nil
}
