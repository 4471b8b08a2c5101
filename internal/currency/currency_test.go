package currency

import (
	"testing"

	"expense-approval/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConverter(t *testing.T) *Converter {
	t.Helper()
	c, err := NewConverter("USD", Snapshot{"EUR": 1.08, "INR": 0.012})
	require.NoError(t, err)
	return c
}

func TestNormalize(t *testing.T) {
	c := testConverter(t)

	tests := []struct {
		name   string
		amount float64
		from   string
		want   float64
	}{
		{"reporting currency is identity", 100, "USD", 100},
		{"euro conversion", 50, "EUR", 54},
		{"rounds to two decimals", 10.555, "EUR", 11.4},
		{"lowercase code accepted", 100, "eur", 108},
		{"rupee conversion", 1000, "INR", 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Normalize(tt.amount, tt.from)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestNormalizeUnsupportedCurrency(t *testing.T) {
	c := testConverter(t)

	_, err := c.Normalize(100, "XYZ")
	assert.ErrorIs(t, err, apperr.ErrUnsupportedCurrency)

	_, err = c.Normalize(100, "")
	assert.ErrorIs(t, err, apperr.ErrUnsupportedCurrency)
}

func TestNormalizeDeterministic(t *testing.T) {
	c := testConverter(t)

	first, err := c.Normalize(123.45, "EUR")
	require.NoError(t, err)
	second, err := c.Normalize(123.45, "EUR")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReportingAlwaysSupported(t *testing.T) {
	c, err := NewConverter("USD", nil)
	require.NoError(t, err)

	assert.True(t, c.Supports("USD"))
	got, err := c.Normalize(42.42, "USD")
	require.NoError(t, err)
	assert.Equal(t, 42.42, got)
}

func TestSupported(t *testing.T) {
	c := testConverter(t)
	assert.Equal(t, []string{"EUR", "INR", "USD"}, c.Supported())
}

func TestNewConverterRejectsBadInput(t *testing.T) {
	_, err := NewConverter("", nil)
	assert.Error(t, err)

	_, err = NewConverter("USD", Snapshot{"EUR": 0})
	assert.Error(t, err)

	_, err = NewConverter("USD", Snapshot{"EUR": -1})
	assert.Error(t, err)
}
