// Package typename converts between the three spellings of a JVM type used by
// jmxsh: the binary descriptor (`[[I`, `Ljava.lang.String;`), the class name
// reported over the wire (`int`, `java.lang.String`, `[Ljava.lang.String;`)
// and the nice name shown to users (`int[][]`, `String`).
//
// The primitive letter table and the `L...;` convention belong to the JVM; they
// are the only descriptor binding implemented here.
package typename

import (
	"strings"

	"github.com/joeycumines/jmxsh/internal/jmxerr"
)

// Descriptor is a parsed type. Base never contains brackets.
type Descriptor struct {
	Base  string
	Depth int
}

const langPrefix = "java.lang."

type primitive struct {
	letter byte
	name   string
}

var primitives = []primitive{
	{'Z', "boolean"},
	{'B', "byte"},
	{'C', "char"},
	{'D', "double"},
	{'F', "float"},
	{'I', "int"},
	{'J', "long"},
	{'S', "short"},
}

const voidName = "void"

func letterName(c byte) (string, bool) {
	for _, p := range primitives {
		if p.letter == c {
			return p.name, true
		}
	}
	return "", false
}

func nameLetter(name string) (byte, bool) {
	for _, p := range primitives {
		if p.name == name {
			return p.letter, true
		}
	}
	return 0, false
}

// IsPrimitive reports whether name is one of the eight primitive keywords.
func IsPrimitive(name string) bool {
	_, ok := nameLetter(name)
	return ok
}

// IsVoid reports whether the descriptor is the void return type.
func (d Descriptor) IsVoid() bool { return d.Depth == 0 && d.Base == voidName }

// IsArray reports whether the descriptor has at least one array dimension.
func (d Descriptor) IsArray() bool { return d.Depth > 0 }

func malformed(op, input, format string, args ...any) error {
	e := jmxerr.New(jmxerr.KindMalformedType, op, format, args...)
	e.Msg = "malformed type " + quote(input) + ": " + e.Msg
	return e
}

func quote(s string) string { return `"` + s + `"` }

// ParseDescriptor parses the strict binary form.
func ParseDescriptor(s string) (Descriptor, error) {
	const op = "parse descriptor"
	var d Descriptor
	pos := 0
	for pos < len(s) && s[pos] == '[' {
		pos++
	}
	d.Depth = pos
	if pos == len(s) {
		return Descriptor{}, malformed(op, s, "missing element type")
	}
	switch c := s[pos]; c {
	case 'L':
		end := strings.IndexByte(s[pos+1:], ';')
		if end < 0 {
			return Descriptor{}, malformed(op, s, "unterminated class name")
		}
		end += pos + 1
		if end == pos+1 {
			return Descriptor{}, malformed(op, s, "empty class name")
		}
		if end != len(s)-1 {
			return Descriptor{}, malformed(op, s, "trailing characters after ';'")
		}
		d.Base = s[pos+1 : end]
		if strings.ContainsAny(d.Base, "[]") {
			return Descriptor{}, malformed(op, s, "brackets in class name")
		}
	case 'V':
		if d.Depth > 0 {
			return Descriptor{}, malformed(op, s, "array of void")
		}
		if pos != len(s)-1 {
			return Descriptor{}, malformed(op, s, "trailing characters")
		}
		d.Base = voidName
	default:
		name, ok := letterName(c)
		if !ok {
			return Descriptor{}, malformed(op, s, "unknown primitive letter %q", c)
		}
		if pos != len(s)-1 {
			return Descriptor{}, malformed(op, s, "trailing characters")
		}
		d.Base = name
	}
	return d, nil
}

// Descriptor renders the strict binary form.
func (d Descriptor) Descriptor() string {
	var sb strings.Builder
	for range d.Depth {
		sb.WriteByte('[')
	}
	if d.Base == voidName {
		sb.WriteByte('V')
	} else if c, ok := nameLetter(d.Base); ok {
		sb.WriteByte(c)
	} else {
		sb.WriteByte('L')
		sb.WriteString(d.Base)
		sb.WriteByte(';')
	}
	return sb.String()
}

// ParseClassName parses the class name reported by the remote side. Scalars
// are plain names, arrays use the binary form.
func ParseClassName(s string) (Descriptor, error) {
	if s == "" {
		return Descriptor{}, malformed("parse class name", s, "empty")
	}
	if s[0] == '[' {
		return ParseDescriptor(s)
	}
	if strings.ContainsAny(s, "[];") {
		return Descriptor{}, malformed("parse class name", s, "unexpected bracket")
	}
	return Descriptor{Base: s}, nil
}

// ClassName renders the wire class name.
func (d Descriptor) ClassName() string {
	if d.Depth == 0 {
		return d.Base
	}
	return d.Descriptor()
}

// String renders the nice name.
func (d Descriptor) String() string {
	base := d.Base
	if rest, ok := strings.CutPrefix(base, langPrefix); ok && rest != "" && !strings.Contains(rest, ".") {
		base = rest
	}
	return base + strings.Repeat("[]", d.Depth)
}

// ParseNiceName parses a nice name such as "int[]" or "String".
func ParseNiceName(s string) (Descriptor, error) {
	const op = "parse nice name"
	var d Descriptor
	base := strings.TrimSpace(s)
	for strings.HasSuffix(base, "[]") {
		base = base[:len(base)-2]
		d.Depth++
	}
	base = strings.TrimSpace(base)
	if base == "" {
		return Descriptor{}, malformed(op, s, "missing base type")
	}
	if strings.ContainsAny(base, "[];") {
		return Descriptor{}, malformed(op, s, "misplaced bracket")
	}
	if base == voidName && d.Depth > 0 {
		return Descriptor{}, malformed(op, s, "array of void")
	}
	if !strings.Contains(base, ".") && !IsPrimitive(base) && base != voidName {
		base = langPrefix + base
	}
	d.Base = base
	return d, nil
}

// Translate converts a wire class name to its nice name. Unparseable input is
// returned unchanged, which keeps odd server types displayable.
func Translate(className string) string {
	d, err := ParseClassName(className)
	if err != nil {
		return className
	}
	return d.String()
}

// TranslateNice converts a nice name to the wire class name.
func TranslateNice(nice string) (string, error) {
	d, err := ParseNiceName(nice)
	if err != nil {
		return "", err
	}
	return d.ClassName(), nil
}
