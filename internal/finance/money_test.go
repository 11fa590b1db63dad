package finance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKurus_TL(t *testing.T) {
	assert.True(t, Kurus(12345).TL().Equal(decimal.RequireFromString("123.45")))
	assert.True(t, Kurus(0).TL().Equal(decimal.Zero))
	assert.True(t, Kurus(-500).TL().Equal(decimal.RequireFromString("-5")))
}

func TestKurus_String(t *testing.T) {
	assert.Equal(t, "123.45", Kurus(12345).String())
	assert.Equal(t, "0.00", Kurus(0).String())
	assert.Equal(t, "0.05", Kurus(5).String())
	assert.Equal(t, "-5.00", Kurus(-500).String())
}

func TestParseTL(t *testing.T) {
	tests := []struct {
		in   string
		want Kurus
	}{
		{"123.45", 12345},
		{"123", 12300},
		{"0.05", 5},
		{"0", 0},
		{"-5.00", -500},
		{"1234567.89", 123456789},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Sub-kuruş precision indicates an upstream bug and is rejected, not
// silently rounded.
func TestParseTL_Rejects(t *testing.T) {
	for _, in := range []string{"1.005", "0.001", "not-money", ""} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseTL(in)
			assert.Error(t, err)
		})
	}
}

func TestParseTL_RoundtripsString(t *testing.T) {
	k, err := ParseTL(Kurus(98765).String())
	require.NoError(t, err)
	assert.Equal(t, Kurus(98765), k)
}

func TestFormatTRY(t *testing.T) {
	out := FormatTRY(Kurus(123456))

	// Turkish locale: thousands separator and comma decimals.
	assert.Contains(t, out, "1.234,56")
}
