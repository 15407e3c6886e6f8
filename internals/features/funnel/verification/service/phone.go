package service

import (
	"fmt"

	stepService "funnel_backend/internals/features/funnel/steps/service"
)

// CountryPrefix is prepended to national numbers before they reach the CRM.
const CountryPrefix = "55"

// minNormalized is prefix + 2-digit area code + 8-digit number.
const minNormalized = 12

// FormatPhone applies the national mask progressively, so partial input
// formats as the user types: "11999998888" → "(11) 99999-8888".
func FormatPhone(raw string) string {
	d := stepService.Digits(raw)
	if len(d) > 11 {
		d = d[:11]
	}
	switch {
	case len(d) <= 2:
		return d
	case len(d) <= 6:
		return fmt.Sprintf("(%s) %s", d[:2], d[2:])
	case len(d) <= 10:
		return fmt.Sprintf("(%s) %s-%s", d[:2], d[2:6], d[6:])
	default:
		return fmt.Sprintf("(%s) %s-%s", d[:2], d[2:7], d[7:])
	}
}

// Normalize returns the prefixed digit string sent to the CRM.
func Normalize(raw string) string {
	return CountryPrefix + stepService.Digits(raw)
}
