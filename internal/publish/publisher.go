// Package publish copies built bundles to S3 so a CDN can serve them.
package publish

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/collage/internal/collage"
	"github.com/keithlinneman/collage/internal/log"
	"github.com/keithlinneman/collage/internal/xerrors"
)

// PutObjectAPI is the part of *s3.Client the publisher needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Metrics is implemented by the metrics package.
type Metrics interface {
	ObservePublish(result string, seconds float64)
}

type Options struct {
	Logger  log.Logger
	Client  PutObjectAPI
	Bucket  string
	Prefix  string
	Metrics Metrics

	// CacheControl is sent with every object. Defaults to a short max-age
	// since the key is stable across builds.
	CacheControl string
}

const defaultCacheControl = "public, max-age=300"

// Publisher uploads a bundle when its content differs from the last upload
// to the same key.
type Publisher struct {
	opts Options

	mu   sync.Mutex
	last map[string]string // key -> sha256 of last uploaded body
}

func New(opts Options) (*Publisher, error) {
	if opts.Client == nil {
		return nil, xerrors.New("publish: Client is required")
	}
	if opts.Bucket == "" {
		return nil, xerrors.New("publish: Bucket is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.CacheControl == "" {
		opts.CacheControl = defaultCacheControl
	}
	return &Publisher{opts: opts, last: make(map[string]string)}, nil
}

// Key returns the object key a build is uploaded to.
func (p *Publisher) Key(b *collage.Build) string {
	name := b.Target.Filename()
	if p.opts.Prefix == "" {
		return name
	}
	return path.Join(p.opts.Prefix, name)
}

// Publish uploads b. It reports whether an upload happened; unchanged
// content is skipped.
func (p *Publisher) Publish(ctx context.Context, b *collage.Build) (bool, error) {
	start := time.Now()
	key := p.Key(b)
	sum := sha256.Sum256(b.Data)
	digest := hex.EncodeToString(sum[:])

	p.mu.Lock()
	unchanged := p.last[key] == digest
	p.mu.Unlock()
	if unchanged {
		p.observe("unchanged", start)
		return false, nil
	}

	_, err := p.opts.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.opts.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(b.Data),
		ContentLength: aws.Int64(int64(len(b.Data))),
		ContentType:   aws.String(b.Target.Kind.MediaType()),
		CacheControl:  aws.String(p.opts.CacheControl),
		Metadata: map[string]string{
			"source-mtime": strconv.FormatInt(b.ModTime.Unix(), 10),
			"sha256":       digest,
		},
	})
	if err != nil {
		p.observe("error", start)
		return false, xerrors.Wrapf(err, "put s3://%s/%s", p.opts.Bucket, key)
	}

	p.mu.Lock()
	p.last[key] = digest
	p.mu.Unlock()

	p.observe("ok", start)
	p.opts.Logger.Info(ctx, "published bundle",
		"bucket", p.opts.Bucket,
		"key", key,
		"bytes", len(b.Data),
		"sha256", digest,
		"timestamp", b.Timestamp(),
	)
	return true, nil
}

func (p *Publisher) observe(result string, start time.Time) {
	if p.opts.Metrics != nil {
		p.opts.Metrics.ObservePublish(result, time.Since(start).Seconds())
	}
}
