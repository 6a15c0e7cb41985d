package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMajorUnits(t *testing.T) {
	tests := []struct {
		raw      string
		currency string
		want     int64
	}{
		{"49.99", "USD", 4999},
		{"49", "USD", 4900},
		{"0.05", "EUR", 5},
		{"1000", "JPY", 1000},
		{"-12.30", "USD", -1230},
		{"0", "USD", 0},
		{".99", "USD", 99},
	}
	for _, tt := range tests {
		t.Run(tt.raw+" "+tt.currency, func(t *testing.T) {
			got, err := ParseMajorUnits(tt.raw, tt.currency)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMajorUnitsRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "abc", "49.999", "12.3.4", "1e3"} {
		_, err := ParseMajorUnits(raw, "USD")
		assert.Error(t, err, "input %q", raw)
	}
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$49.99", FormatMoney(Money{MinorUnits: 4999, Currency: "USD"}))
	assert.Equal(t, "€0.05", FormatMoney(Money{MinorUnits: 5, Currency: "EUR"}))
	assert.Equal(t, "¥1000", FormatMoney(Money{MinorUnits: 1000, Currency: "JPY"}))
	assert.Equal(t, "-$12.30", FormatMoney(Money{MinorUnits: -1230, Currency: "usd"}))
	assert.Equal(t, "49.99 CAD", FormatMoney(Money{MinorUnits: 4999, Currency: "CAD"}))
}
