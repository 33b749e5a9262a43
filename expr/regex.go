package expr

import (
	"regexp"
	"strings"
)

// compileRegex compiles pattern with the given $options characters
// (any of i, s, m, x). Go's RE2 engine supports i/s/m directly as the
// inline flag group "(?ism)"; x (extended: ignore unescaped whitespace
// and #-comments) has no RE2 equivalent, so it is applied as a
// preprocessing pass over the source pattern before compilation.
func compileRegex(pattern, options string) (*regexp.Regexp, error) {
	var flags strings.Builder
	extended := false
	for _, c := range options {
		switch c {
		case 'i', 's', 'm':
			flags.WriteRune(c)
		case 'x':
			extended = true
		default:
			return nil, ErrParse
		}
	}
	if extended {
		pattern = stripExtendedWhitespace(pattern)
	}
	if flags.Len() > 0 {
		pattern = "(?" + flags.String() + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, ErrParse
	}
	return re, nil
}

// stripExtendedWhitespace removes unescaped whitespace and #-comments
// (to end of line) from pattern, outside character classes, mirroring
// the 'x' modifier's free-spacing mode.
func stripExtendedWhitespace(pattern string) string {
	var out strings.Builder
	inClass := false
	escaped := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if escaped {
			out.WriteByte(c)
			escaped = false
			continue
		}
		switch c {
		case '\\':
			out.WriteByte(c)
			escaped = true
		case '[':
			inClass = true
			out.WriteByte(c)
		case ']':
			inClass = false
			out.WriteByte(c)
		case '#':
			if inClass {
				out.WriteByte(c)
				continue
			}
			for i < len(pattern) && pattern[i] != '\n' {
				i++
			}
		case ' ', '\t', '\n', '\r':
			if inClass {
				out.WriteByte(c)
			}
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}
