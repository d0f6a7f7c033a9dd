package main

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/keithlinneman/collage/internal/bundle"
	"github.com/keithlinneman/collage/internal/cfg"
	"github.com/keithlinneman/collage/internal/collage"
	"github.com/keithlinneman/collage/internal/log"
)

func TestBuildTargets(t *testing.T) {
	targets, err := buildTargets(cfg.App{Scripts: "a/*.js, b/*.js", ScriptsVariant: "passthrough", Stylesheets: true})
	if err != nil {
		t.Fatalf("buildTargets: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("got %d targets, want 2", len(targets))
	}
	if targets[0].Variant != bundle.Passthrough {
		t.Errorf("script variant = %v, want passthrough", targets[0].Variant)
	}
	if !slices.Equal(targets[0].Patterns, []string{"a/*.js", "b/*.js"}) {
		t.Errorf("script patterns = %v", targets[0].Patterns)
	}
	if targets[1].Kind != bundle.KindStylesheet {
		t.Errorf("second target kind = %v, want stylesheet", targets[1].Kind)
	}
}

func TestBuildTargets_UnknownVariant(t *testing.T) {
	if _, err := buildTargets(cfg.App{ScriptsVariant: "gzip"}); err == nil {
		t.Fatal("unknown variant should fail")
	}
}

func TestWatchPatterns(t *testing.T) {
	got := watchPatterns([]collage.Target{
		collage.ScriptTarget(),
		collage.StylesheetTarget("styles/*.sass"),
	})
	want := []string{"**/*.js", "styles/*.sass"}
	if !slices.Equal(got, want) {
		t.Fatalf("watchPatterns = %v, want %v", got, want)
	}
}

func TestOutputNames(t *testing.T) {
	got := outputNames([]collage.Target{collage.ScriptTarget(), collage.StylesheetTarget()})
	if !slices.Equal(got, []string{"js.js", "css.css"}) {
		t.Fatalf("outputNames = %v", got)
	}
}

func TestRebuild(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.js"), []byte("var a;"), 0o644); err != nil {
		t.Fatal(err)
	}
	col, err := collage.New(collage.Options{Root: root})
	if err != nil {
		t.Fatalf("collage.New: %v", err)
	}

	if err := rebuild(context.Background(), log.Nop(), col, nil); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "js.js")); err != nil {
		t.Fatalf("output not written: %v", err)
	}
}

func TestRebuild_ReportsFailure(t *testing.T) {
	col, err := collage.New(collage.Options{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("collage.New: %v", err)
	}
	if err := rebuild(context.Background(), log.Nop(), col, nil); err == nil {
		t.Fatal("rebuild of an empty root should fail")
	}
}
