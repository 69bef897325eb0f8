package browse

import (
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/joeycumines/jmxsh/internal/jmxerr"
)

// Filter is a case-insensitive glob applied to menu entries. The user's input
// is wrapped in '*' on both sides, so it matches anywhere in an entry.
type Filter struct {
	input string
	re    *regexp2.Regexp
}

// CompileGlob compiles "*input*". Supported glob syntax is '*', '?',
// character classes ("[abc]", "[a-z]", "[!x]" or "[^x]") and '\' to escape
// the next character.
func CompileGlob(input string) (*Filter, error) {
	body, err := globToRegexp("*" + input + "*")
	if err != nil {
		return nil, jmxerr.Wrap(jmxerr.KindMalformedFilter, "", err, "Invalid glob pattern '%s'", input)
	}
	re, err := regexp2.Compile(`^(?:`+body+`)$`, regexp2.IgnoreCase)
	if err != nil {
		return nil, jmxerr.Wrap(jmxerr.KindMalformedFilter, "", err, "Invalid glob pattern '%s'", input)
	}
	return &Filter{input: input, re: re}, nil
}

type globError string

func (e globError) Error() string { return string(e) }

func globToRegexp(glob string) (string, error) {
	var sb strings.Builder
	runes := []rune(glob)
	for i := 0; i < len(runes); i++ {
		switch r := runes[i]; r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteByte('.')
		case '\\':
			if i+1 == len(runes) {
				return "", globError("trailing backslash")
			}
			i++
			sb.WriteString(regexp2.Escape(string(runes[i])))
		case '[':
			j := i + 1
			negate := false
			if j < len(runes) && (runes[j] == '!' || runes[j] == '^') {
				negate = true
				j++
			}
			start := j
			// a leading ']' is a literal member
			if j < len(runes) && runes[j] == ']' {
				j++
			}
			for j < len(runes) && runes[j] != ']' {
				j++
			}
			if j >= len(runes) {
				return "", globError("unterminated character class")
			}
			sb.WriteByte('[')
			if negate {
				sb.WriteByte('^')
			}
			for _, c := range runes[start:j] {
				switch c {
				case '\\', '[', ']', '^':
					sb.WriteByte('\\')
				}
				sb.WriteRune(c)
			}
			sb.WriteByte(']')
			i = j
		default:
			sb.WriteString(regexp2.Escape(string(r)))
		}
	}
	return sb.String(), nil
}

// Match reports whether s matches. A nil filter matches everything.
func (f *Filter) Match(s string) bool {
	if f == nil {
		return true
	}
	ok, err := f.re.MatchString(s)
	return err == nil && ok
}

// String returns the glob as displayed, e.g. "*foo*".
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return "*" + f.input + "*"
}
