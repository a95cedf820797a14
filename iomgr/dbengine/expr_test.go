package dbengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstantExpressionRoundTrip(t *testing.T) {
	values := []Variant{
		NullVariant(),
		BoolVariant(true),
		BoolVariant(false),
		Int64Variant(-12345),
		Int64Variant(1 << 40),
		DoubleVariant(3.5),
		StringVariant("DEFAULT 'value'"),
		BinaryVariant([]byte{0x00, 0xFF, 0x10}),
	}
	for _, v := range values {
		expr := NewConstantExpression(v)
		data := expr.Serialize()

		parsed, n, err := DeserializeExpression(data)
		require.NoError(t, err)
		require.Equal(t, len(data), n)
		require.Equal(t, expr, parsed)

		// serialization is canonical: re-serializing yields identical bytes
		require.Equal(t, data, parsed.Serialize())
	}
}

func TestDeserializeExpressionRejectsGarbage(t *testing.T) {
	_, _, err := DeserializeExpression([]byte{})
	require.Error(t, err)

	_, _, err = DeserializeExpression([]byte{0x7F})
	require.Error(t, err)

	// constant expression with truncated string payload
	expr := NewConstantExpression(StringVariant("abcdef")).Serialize()
	_, _, err = DeserializeExpression(expr[:len(expr)-3])
	require.Error(t, err)
}
