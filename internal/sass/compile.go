package sass

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bep/golibsass/libsass"
	"github.com/bep/golibsass/libsass/libsasserrors"
)

// SyntaxError reports input LibSass could not compile. Line and Column are
// 1-based; zero means LibSass did not report a position.
type SyntaxError struct {
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("sass syntax error on line %d: %s", e.Line, e.Msg)
}

// Compile translates indented-syntax source into nested CSS. includePaths
// are searched by @import, usually the source file's directory.
func Compile(src []byte, includePaths ...string) ([]byte, error) {
	tr, err := libsass.New(libsass.Options{
		SassSyntax:   true,
		OutputStyle:  libsass.NestedStyle,
		IncludePaths: includePaths,
	})
	if err != nil {
		return nil, err
	}
	res, err := tr.Execute(string(src))
	if err != nil {
		return nil, toSyntaxError(err)
	}
	return []byte(res.CSS), nil
}

func toSyntaxError(err error) error {
	var le libsasserrors.Error
	if errors.As(err, &le) {
		return &SyntaxError{Line: le.Line, Column: le.Column, Msg: strings.TrimSpace(le.Message)}
	}
	var lp *libsasserrors.Error
	if errors.As(err, &lp) && lp != nil {
		return &SyntaxError{Line: lp.Line, Column: lp.Column, Msg: strings.TrimSpace(lp.Message)}
	}
	return &SyntaxError{Msg: err.Error()}
}
