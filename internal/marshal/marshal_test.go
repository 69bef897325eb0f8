package marshal

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/joeycumines/jmxsh/internal/jmxerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveType(t *testing.T) {
	for in, want := range map[string]string{
		"int":                         "java.lang.Integer",
		"char":                        "java.lang.Character",
		"long":                        "java.lang.Long",
		"boolean":                     "java.lang.Boolean",
		"String":                      "java.lang.String",
		"string":                      "java.lang.String",
		"javax.management.ObjectName": "javax.management.ObjectName",
		"java.lang.Double":            "java.lang.Double",
	} {
		assert.Equal(t, want, ResolveType(in), in)
	}
}

func TestToTypedValue(t *testing.T) {
	m := New()
	for _, tc := range []struct {
		ref, typ string
		want     any
	}{
		{"42", "int", int32(42)},
		{"-7", "java.lang.Integer", int32(-7)},
		{"9000000000", "long", int64(9000000000)},
		{"12", "short", int16(12)},
		{"-3", "byte", int8(-3)},
		{"1.5", "double", 1.5},
		{"2.25", "float", float32(2.25)},
		{"TRUE", "boolean", true},
		{"yes", "boolean", false},
		{"hello", "String", "hello"},
		{"java.lang:type=Memory", "javax.management.ObjectName", ObjectName("java.lang:type=Memory")},
		{"3.14159", "java.math.BigDecimal", json.Number("3.14159")},
	} {
		got, err := m.ToTypedValue(tc.ref, tc.typ)
		require.NoError(t, err, "%s as %s", tc.ref, tc.typ)
		assert.Equal(t, tc.want, got, "%s as %s", tc.ref, tc.typ)
	}

	got, err := m.ToTypedValue("123456789012345678901234567890", "java.math.BigInteger")
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	assert.Equal(t, 0, want.Cmp(got.(*big.Int)))
}

func TestToTypedValueFailures(t *testing.T) {
	m := New()
	for _, tc := range []struct {
		ref, typ string
		kind     jmxerr.Kind
	}{
		{"abc", "int", jmxerr.KindConstructionFailed},
		{"99999999999", "int", jmxerr.KindConstructionFailed},
		{"1.2.3", "double", jmxerr.KindConstructionFailed},
		{"nokey", "javax.management.ObjectName", jmxerr.KindConstructionFailed},
		{"x", "char", jmxerr.KindNoStringConstructor},
		{"x", "Object", jmxerr.KindNoStringConstructor},
		{"x", "[Ljava.lang.String;", jmxerr.KindNoStringConstructor},
		{"x", "[I", jmxerr.KindTypeNotResolvable},
		{"x", "Class", jmxerr.KindAccessFailed},
		{"x", "com.example.Missing", jmxerr.KindTypeNotResolvable},
		{"x", "Frobnicator", jmxerr.KindTypeNotResolvable},
		{"x", "", jmxerr.KindTypeNotResolvable},
	} {
		_, err := m.ToTypedValue(tc.ref, tc.typ)
		require.Error(t, err, "%s as %s", tc.ref, tc.typ)
		assert.Equal(t, tc.kind, jmxerr.KindOf(err), "%s as %s: %v", tc.ref, tc.typ, err)
		assert.ErrorIs(t, err, jmxerr.ErrMarshalFailure)
	}
}

func TestOpaqueReferences(t *testing.T) {
	m := New()
	v := map[string]any{"used": json.Number("10")}
	ref := m.ToOpaqueReference(v)
	assert.True(t, strings.HasPrefix(ref, HandlePrefix))
	assert.NotEqual(t, ref, m.ToOpaqueReference(v))
	assert.Equal(t, 2, m.Len())

	// a live handle passes through whatever the declared type
	got, err := m.ToTypedValue(ref, "int")
	require.NoError(t, err)
	assert.Equal(t, v, got)

	assert.True(t, m.Release(ref))
	assert.False(t, m.Release(ref))
	_, ok := m.Lookup(ref)
	assert.False(t, ok)

	// once released the text is converted like any other string
	_, err = m.ToTypedValue(ref, "int")
	assert.ErrorIs(t, err, jmxerr.ErrConstructionFailed)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "null", Format(nil))
	assert.Equal(t, "abc", Format("abc"))
	assert.Equal(t, "42", Format(json.Number("42")))
	assert.Equal(t, "3.0", Format(3.0))
	assert.Equal(t, "true", Format(true))
	assert.Equal(t, "[1, two, null]", Format([]any{json.Number("1"), "two", nil}))
	assert.Equal(t, "{committed=5, used=[1]}", Format(map[string]any{
		"used":      []any{json.Number("1")},
		"committed": json.Number("5"),
	}))
	assert.Equal(t, "java.lang:type=Memory", Format(ObjectName("java.lang:type=Memory")))
	assert.Equal(t, "java.lang", ObjectName("java.lang:type=Memory").Domain())
}
