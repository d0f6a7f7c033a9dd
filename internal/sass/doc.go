// Package sass compiles the indented stylesheet syntax (.sass files) into
// plain CSS in the nested output style:
//
//	body {
//	  font-size: 1em; }
//	  body p {
//	    margin: 0; }
//
// Compilation is done by LibSass through github.com/bep/golibsass, so the
// full language (variables, nesting, mixins, arithmetic, @import) is
// available. Anything LibSass rejects comes back as a *SyntaxError and no
// CSS is returned.
package sass
