package event

import (
	"fmt"
	"strconv"
	"strings"
)

// Currencies whose minor unit is the major unit. Amounts in these currencies
// never carry a fractional part.
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {},
	"KRW": {}, "MGA": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {},
	"VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// CurrencyExponent returns the number of minor-unit digits for a currency.
func CurrencyExponent(currency string) int {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(currency)]; ok {
		return 0
	}
	return 2
}

// ParseMajorUnits converts a decimal string in major units ("49.99") into
// minor units (4999). Parsing is fixed-point throughout; floats would drift
// across providers that express currency in different units.
func ParseMajorUnits(raw, currency string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	intPart := s
	fracPart := ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart = s[:dot]
		fracPart = s[dot+1:]
	}
	if intPart == "" {
		intPart = "0"
	}

	exponent := CurrencyExponent(currency)
	if len(fracPart) > exponent {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", raw, exponent)
	}
	for len(fracPart) < exponent {
		fracPart += "0"
	}

	major, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}

	scale := int64(1)
	for i := 0; i < exponent; i++ {
		scale *= 10
	}

	minor := major * scale
	if fracPart != "" {
		frac, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", raw)
		}
		minor += frac
	}

	if negative {
		minor = -minor
	}
	return minor, nil
}

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// FormatMoney renders a minor-unit amount for humans: "$49.99", "¥500",
// "49.99 CAD".
func FormatMoney(m Money) string {
	currency := strings.ToUpper(m.Currency)
	exponent := CurrencyExponent(currency)

	minor := m.MinorUnits
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}

	var amount string
	if exponent == 0 {
		amount = strconv.FormatInt(minor, 10)
	} else {
		scale := int64(1)
		for i := 0; i < exponent; i++ {
			scale *= 10
		}
		amount = fmt.Sprintf("%d.%0*d", minor/scale, exponent, minor%scale)
	}

	if symbol, ok := currencySymbols[currency]; ok {
		return sign + symbol + amount
	}
	if currency == "" {
		return sign + amount
	}
	return sign + amount + " " + currency
}
