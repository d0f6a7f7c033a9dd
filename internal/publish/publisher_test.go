package publish

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/collage/internal/collage"
)

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

type spyMetrics struct{ results []string }

func (s *spyMetrics) ObservePublish(result string, _ float64) { s.results = append(s.results, result) }

func scriptBuild(data string) *collage.Build {
	return &collage.Build{
		Target:  collage.ScriptTarget(),
		Data:    []byte(data),
		ModTime: time.Unix(1236171465, 0),
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{Bucket: "b"}); err == nil {
		t.Fatal("expected error without client")
	}
	if _, err := New(Options{Client: &fakeS3{}}); err == nil {
		t.Fatal("expected error without bucket")
	}
}

func TestPublish_UploadsWithHeaders(t *testing.T) {
	fake := &fakeS3{}
	p, err := New(Options{Client: fake, Bucket: "assets", Prefix: "static/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	uploaded, err := p.Publish(context.Background(), scriptBuild("// One\n\n\n"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !uploaded {
		t.Fatal("first publish should upload")
	}
	if len(fake.inputs) != 1 {
		t.Fatalf("PutObject calls = %d, want 1", len(fake.inputs))
	}
	in := fake.inputs[0]
	if got := aws.ToString(in.Bucket); got != "assets" {
		t.Errorf("Bucket = %q", got)
	}
	if got := aws.ToString(in.Key); got != "static/js.js" {
		t.Errorf("Key = %q, want static/js.js", got)
	}
	if got := aws.ToString(in.ContentType); got != "text/javascript" {
		t.Errorf("ContentType = %q", got)
	}
	if got := aws.ToString(in.CacheControl); got != defaultCacheControl {
		t.Errorf("CacheControl = %q", got)
	}
	if got := in.Metadata["source-mtime"]; got != "1236171465" {
		t.Errorf("source-mtime = %q", got)
	}
	if fake.bodies[0] != "// One\n\n\n" {
		t.Errorf("body = %q", fake.bodies[0])
	}
}

func TestPublish_SkipsUnchanged(t *testing.T) {
	fake := &fakeS3{}
	m := &spyMetrics{}
	p, _ := New(Options{Client: fake, Bucket: "assets", Metrics: m})

	for range 2 {
		if _, err := p.Publish(context.Background(), scriptBuild("same")); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if _, err := p.Publish(context.Background(), scriptBuild("different")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(fake.inputs) != 2 {
		t.Fatalf("PutObject calls = %d, want 2", len(fake.inputs))
	}
	want := []string{"ok", "unchanged", "ok"}
	if len(m.results) != len(want) {
		t.Fatalf("results = %v, want %v", m.results, want)
	}
	for i := range want {
		if m.results[i] != want[i] {
			t.Fatalf("results = %v, want %v", m.results, want)
		}
	}
}

func TestPublish_ErrorIsRetriedNextTime(t *testing.T) {
	fake := &fakeS3{err: errors.New("access denied")}
	p, _ := New(Options{Client: fake, Bucket: "assets"})

	if _, err := p.Publish(context.Background(), scriptBuild("x")); err == nil {
		t.Fatal("expected error")
	}
	fake.err = nil
	uploaded, err := p.Publish(context.Background(), scriptBuild("x"))
	if err != nil || !uploaded {
		t.Fatalf("retry: uploaded=%v err=%v, want upload", uploaded, err)
	}
}

func TestKey(t *testing.T) {
	p, _ := New(Options{Client: &fakeS3{}, Bucket: "b"})
	if got := p.Key(scriptBuild("")); got != "js.js" {
		t.Fatalf("Key = %q, want js.js", got)
	}
}
