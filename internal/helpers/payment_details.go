package helpers

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrInvalidCardNumber = errors.New("invalid card number")

// ValidateLuhn checks a 13 to 19 digit card number. Spaces and dashes are
// ignored.
func ValidateLuhn(cardNumber string) bool {
	digits := onlyDigits(cardNumber)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func onlyDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func firstString(raw map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// SanitizePaymentDetails keeps only what may be stored about a payment
// instrument. A full card number is Luhn checked and reduced to its last
// four digits. CVV, expiry and any unknown key are dropped.
func SanitizePaymentDetails(raw map[string]interface{}) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if len(raw) == 0 {
		return out, nil
	}

	if upi := firstString(raw, "upi_id", "upiId"); upi != "" {
		out["upi_id"] = truncate(upi, 100)
	}

	if number := firstString(raw, "card_number", "cardNumber"); number != "" {
		if !ValidateLuhn(number) {
			return nil, ErrInvalidCardNumber
		}
		digits := onlyDigits(number)
		out["card_last4"] = digits[len(digits)-4:]
	} else if last4 := firstString(raw, "card_last4", "cardLast4"); last4 != "" {
		digits := onlyDigits(last4)
		if len(digits) != 4 {
			return nil, fmt.Errorf("card_last4 must be exactly 4 digits")
		}
		out["card_last4"] = digits
	}

	if cardType := firstString(raw, "card_type", "cardType"); cardType != "" {
		out["card_type"] = truncate(cardType, 40)
	}

	return out, nil
}
