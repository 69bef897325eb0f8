// Package marshal converts between the strings a user or script supplies and
// the typed values sent to a managed object.
//
// Conversion follows the single-string-constructor rule: a declared type is
// resolved to a class, and the class builds a value from the text. Values that
// should not be converted at all travel as opaque handles (see
// [Marshaller.ToOpaqueReference]).
package marshal

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/joeycumines/jmxsh/internal/jmxerr"
	"github.com/joeycumines/jmxsh/internal/typename"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ObjectName is a managed object name, e.g. "java.lang:type=Memory".
type ObjectName string

func (n ObjectName) String() string { return string(n) }

// Domain returns the part before the first ':'.
func (n ObjectName) Domain() string {
	d, _, _ := strings.Cut(string(n), ":")
	return d
}

// HandlePrefix starts every opaque reference.
const HandlePrefix = "obj0x"

type constructor func(string) (any, error)

var constructors = map[string]constructor{
	"java.lang.String": func(s string) (any, error) { return s, nil },
	"java.lang.Integer": func(s string) (any, error) {
		v, err := strconv.ParseInt(s, 10, 32)
		return int32(v), err
	},
	"java.lang.Long": func(s string) (any, error) {
		return strconv.ParseInt(s, 10, 64)
	},
	"java.lang.Short": func(s string) (any, error) {
		v, err := strconv.ParseInt(s, 10, 16)
		return int16(v), err
	},
	"java.lang.Byte": func(s string) (any, error) {
		v, err := strconv.ParseInt(s, 10, 8)
		return int8(v), err
	},
	"java.lang.Double": func(s string) (any, error) {
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	},
	"java.lang.Float": func(s string) (any, error) {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
		return float32(v), err
	},
	// anything but a case-insensitive "true" is false
	"java.lang.Boolean": func(s string) (any, error) {
		return strings.EqualFold(s, "true"), nil
	},
	"java.math.BigInteger": func(s string) (any, error) {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		return v, nil
	},
	"java.math.BigDecimal": func(s string) (any, error) {
		v, ok := new(big.Float).SetString(s)
		if !ok || v.IsInf() {
			return nil, fmt.Errorf("invalid decimal %q", s)
		}
		return json.Number(s), nil
	},
	"javax.management.ObjectName": func(s string) (any, error) {
		_, props, ok := strings.Cut(s, ":")
		if !ok || !strings.Contains(props, "=") {
			return nil, fmt.Errorf("key properties cannot be empty: %q", s)
		}
		return ObjectName(s), nil
	},
}

// known classes without a usable string constructor
var noStringConstructor = map[string]struct{}{
	"java.lang.Character":                             {},
	"java.lang.Object":                                {},
	"java.lang.Number":                                {},
	"java.util.Map":                                   {},
	"java.util.List":                                  {},
	"java.util.Set":                                   {},
	"java.util.Date":                                  {},
	"java.lang.management.MemoryUsage":                {},
	"javax.management.Attribute":                      {},
	"javax.management.AttributeList":                  {},
	"javax.management.Notification":                   {},
	"javax.management.openmbean.CompositeData":        {},
	"javax.management.openmbean.CompositeDataSupport": {},
	"javax.management.openmbean.TabularData":          {},
}

// classes that resolve but whose constructor cannot be called
var inaccessible = map[string]struct{}{
	"java.lang.Class":  {},
	"java.lang.Void":   {},
	"java.lang.Math":   {},
	"java.lang.System": {},
}

// ResolveType expands the keywords accepted wherever a type is declared.
func ResolveType(name string) string {
	switch {
	case name == "char":
		return "java.lang.Character"
	case name == "int":
		return "java.lang.Integer"
	case name == "":
		return ""
	case !strings.Contains(name, "."):
		return "java.lang." + cases.Title(language.Und, cases.NoLower).String(name)
	default:
		return name
	}
}

// Marshaller owns the opaque handle table.
type Marshaller struct {
	mu      sync.Mutex
	handles map[string]any
	next    uint64
}

// New returns an empty Marshaller.
func New() *Marshaller {
	return &Marshaller{handles: make(map[string]any)}
}

// ToTypedValue converts ref to a value of the declared type. A live handle is
// returned unchanged whatever the declared type.
func (m *Marshaller) ToTypedValue(ref, typeName string) (any, error) {
	const op = "convert"
	if v, ok := m.Lookup(ref); ok {
		return v, nil
	}

	class := ResolveType(typeName)
	if class == "" {
		return nil, jmxerr.New(jmxerr.KindTypeNotResolvable, op, "no type given")
	}

	if strings.HasPrefix(class, "[") {
		if _, err := typename.ParseClassName(class); err == nil {
			return nil, jmxerr.New(jmxerr.KindNoStringConstructor, op,
				"cannot instantiate attribute of type: '%s' - cannot convert from string", class)
		}
	}
	if _, ok := noStringConstructor[class]; ok {
		return nil, jmxerr.New(jmxerr.KindNoStringConstructor, op,
			"cannot instantiate attribute of type: '%s' - cannot convert from string", class)
	}
	if _, ok := inaccessible[class]; ok {
		return nil, jmxerr.New(jmxerr.KindAccessFailed, op,
			"cannot instantiate attribute of type: '%s' - cannot access constructor", class)
	}
	ctor, ok := constructors[class]
	if !ok {
		return nil, jmxerr.New(jmxerr.KindTypeNotResolvable, op,
			"cannot instantiate attribute of type: '%s' - class not found locally", class)
	}
	v, err := ctor(ref)
	if err != nil {
		return nil, jmxerr.Wrap(jmxerr.KindConstructionFailed, op, err,
			"cannot instantiate attribute of type: '%s' - exception thrown in constructor", class)
	}
	return v, nil
}

// ToOpaqueReference stores v and returns its handle.
func (m *Marshaller) ToOpaqueReference(v any) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	ref := HandlePrefix + strconv.FormatUint(m.next, 16)
	m.handles[ref] = v
	return ref
}

// Lookup returns the value behind a live handle.
func (m *Marshaller) Lookup(ref string) (any, bool) {
	if !strings.HasPrefix(ref, HandlePrefix) {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.handles[ref]
	return v, ok
}

// Release drops a handle, reporting whether it was live.
func (m *Marshaller) Release(ref string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handles[ref]; !ok {
		return false
	}
	delete(m.handles, ref)
	return true
}

// Len returns the number of live handles.
func (m *Marshaller) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Format renders a protocol value for display.
func Format(v any) string {
	var sb strings.Builder
	format(&sb, v)
	return sb.String()
}

func format(sb *strings.Builder, v any) {
	switch v := v.(type) {
	case nil:
		sb.WriteString("null")
	case string:
		sb.WriteString(v)
	case json.Number:
		sb.WriteString(v.String())
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			sb.WriteString(strconv.FormatFloat(v, 'f', 1, 64))
		} else {
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
	case []any:
		sb.WriteByte('[')
		for i, e := range v {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, e)
		}
		sb.WriteByte(']')
	case map[string]any:
		sb.WriteByte('{')
		for i, k := range slices.Sorted(maps.Keys(v)) {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteByte('=')
			format(sb, v[k])
		}
		sb.WriteByte('}')
	default:
		fmt.Fprint(sb, v)
	}
}
