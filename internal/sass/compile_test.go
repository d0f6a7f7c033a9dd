package sass

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func compileString(t *testing.T, src string, includePaths ...string) string {
	t.Helper()
	out, err := Compile([]byte(src), includePaths...)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return string(out)
}

func wantContains(t *testing.T, got string, parts ...string) {
	t.Helper()
	for _, p := range parts {
		if !strings.Contains(got, p) {
			t.Errorf("output %q does not contain %q", got, p)
		}
	}
}

func TestCompile_SingleRule(t *testing.T) {
	got := compileString(t, "body\n  font-size: 1em\n")
	want := "body {\n  font-size: 1em; }\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCompile_Declarations(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"no space after colon", "body\n  color:red\n", []string{"body {", "color: red;"}},
		{"old property syntax", "body\n  :font-size 1em\n", []string{"font-size: 1em;"}},
		{"arithmetic", "a\n  width: 10px + 5px\n", []string{"width: 15px;"}},
		{"variables", "$blue: #3bbfce\np\n  color: $blue\n", []string{"color: #3bbfce;"}},
		{"nested properties", "p\n  font:\n    family: serif\n", []string{"font-family: serif;"}},
		{"tab indentation", "p\n\tcolor: red\n", []string{"p {", "color: red;"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantContains(t, compileString(t, tt.src), tt.want...)
		})
	}
}

func TestCompile_Mixins(t *testing.T) {
	got := compileString(t, "=big\n  font-size: 2em\nh1\n  +big\n  color: red\n")
	wantContains(t, got, "h1 {", "font-size: 2em;", "color: red;")
	if strings.Contains(got, "=big") || strings.Contains(got, "+big") {
		t.Fatalf("mixin syntax leaked into output: %q", got)
	}
}

func TestCompile_NestedSelectors(t *testing.T) {
	got := compileString(t, "#main\n  width: 97%\n  p, div\n    font-size: 2em\n  &:hover\n    color: blue\n")
	wantContains(t, got, "#main {", "#main p, #main div {", "#main:hover {")
}

func TestCompile_URLsAreKept(t *testing.T) {
	got := compileString(t, "header\n  background: url(\"/collage.png\") no-repeat\nfooter\n  background: url(http://example.org/foo.png)\n")
	wantContains(t, got, `url("/collage.png")`, "url(http://example.org/foo.png)")
}

func TestCompile_Import(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "_colors.sass"), []byte("$accent: #ff0000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := compileString(t, "@import colors\na\n  color: $accent\n", dir)
	wantContains(t, got, "a {", "color:")
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"undefined variable", "p\n  color: $nope\n", "undefined variable"},
		{"incompatible units", "a\n  width: 10px + 5em\n", "incompatible units"},
		{"undefined mixin", "h1\n  +missing\n", "no mixin named missing"},
		{"missing import", "@import nowhere\n", "import"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Compile([]byte(tt.src))
			if out != nil {
				t.Errorf("partial output %q returned with error", out)
			}
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *SyntaxError", err)
			}
			if se.Line < 1 {
				t.Errorf("line = %d, want a source position", se.Line)
			}
			if !strings.Contains(strings.ToLower(se.Error()), tt.msg) {
				t.Errorf("error %q does not contain %q", se.Error(), tt.msg)
			}
		})
	}
}
