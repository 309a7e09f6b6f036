package payment

import (
	"fmt"
	"math"
)

// usdRates are approximate conversion rates to USD, reviewed January 2026.
// The card processor settles in USD while trips are priced in the route's
// local currency.
var usdRates = map[string]float64{
	"USD": 1.0,
	"BOB": 0.145,
	"ARS": 0.001,
	"AUD": 0.67,
	"BRL": 0.20,
	"CAD": 0.74,
	"CLP": 0.0011,
	"CNY": 0.14,
	"COP": 0.00025,
	"CRC": 0.0019,
	"DKK": 0.14,
	"EUR": 1.10,
	"GBP": 1.27,
	"GTQ": 0.13,
	"HNL": 0.040,
	"INR": 0.012,
	"JPY": 0.0069,
	"KRW": 0.00075,
	"MXN": 0.059,
	"NIO": 0.027,
	"NOK": 0.094,
	"PEN": 0.27,
	"PYG": 0.00013,
	"RON": 0.22,
	"RUB": 0.010,
	"SEK": 0.096,
	"CHF": 1.17,
	"UYU": 0.025,
	"DOP": 0.017,
}

// zeroDecimalCurrencies have no fractional unit.
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
	"CLP": true,
	"PYG": true,
	"COP": true,
}

// ConvertToUSD converts an amount in the given currency to USD, rounded to
// cents. Unknown currencies pass through unchanged.
func ConvertToUSD(amount float64, currency string) float64 {
	if currency == "USD" {
		return roundCents(amount)
	}

	rate, ok := usdRates[currency]
	if !ok {
		rate = 1.0
	}
	return roundCents(amount * rate)
}

// roundCents rounds half up to whole cents. The epsilon absorbs binary float
// drift: 35 * 0.145 is 5.074999... in float64 and must land on 5.08.
func roundCents(v float64) float64 {
	return math.Round(v*100+1e-9) / 100
}

// MinimumInCurrency formats the local-currency equivalent of a USD minimum,
// rounding up so the stated floor is always chargeable.
func MinimumInCurrency(minimumUSD float64, currency string) string {
	rate, ok := usdRates[currency]
	if !ok {
		rate = 1.0
	}
	minimum := minimumUSD / rate

	if zeroDecimalCurrencies[currency] {
		return fmt.Sprintf("%.0f", math.Ceil(minimum))
	}
	return fmt.Sprintf("%.2f", minimum)
}

// SupportedCurrency reports whether a conversion rate is configured.
func SupportedCurrency(currency string) bool {
	_, ok := usdRates[currency]
	return ok
}
