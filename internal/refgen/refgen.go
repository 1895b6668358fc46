// Package refgen mints the consumer-facing references processors hand out:
// numeric cash-voucher codes carrying a Luhn digit and 18-digit CLABE numbers.
package refgen

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	DefaultVoucherLen = 14
	clabeLen          = 18
)

// Digits returns count uniformly distributed random decimal digits.
func Digits(count int) (string, error) {
	if count <= 0 {
		return "", nil
	}
	// only bytes below 250 are used so that b%10 has no modulo bias
	const threshold = 250
	var sb strings.Builder
	sb.Grow(count)
	buf := make([]byte, 64)
	for sb.Len() < count {
		n, err := rand.Read(buf)
		if err != nil {
			return "", err
		}
		for i := 0; i < n && sb.Len() < count; i++ {
			if b := buf[i]; b < threshold {
				sb.WriteByte('0' + (b % 10))
			}
		}
	}
	return sb.String(), nil
}

// Voucher returns a length digit reference whose last digit is a Luhn check
// digit. length must be between 10 and 19.
func Voucher(length int) (string, error) {
	if length < 10 || length > 19 {
		return "", fmt.Errorf("voucher length must be 10..19 (got %d)", length)
	}
	body, err := Digits(length - 1)
	if err != nil {
		return "", fmt.Errorf("rand: %w", err)
	}
	// a leading zero is dropped by some retail terminals
	if body[0] == '0' {
		body = "9" + body[1:]
	}
	return body + LuhnDigit(body), nil
}

func LuhnDigit(body string) string {
	sum, dbl := 0, true
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if dbl {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		dbl = !dbl
	}
	return string('0' + byte((10-(sum%10))%10))
}

func ValidLuhn(s string) bool {
	if len(s) < 2 || !IsDigits(s) {
		return false
	}
	return LuhnDigit(s[:len(s)-1])[0] == s[len(s)-1]
}

// CLABE returns an 18 digit Mexican interbank account number for bank and
// plaza (3 digits each) with a random account number.
func CLABE(bank, plaza string) (string, error) {
	if len(bank) != 3 || !IsDigits(bank) {
		return "", fmt.Errorf("bank code must be 3 digits")
	}
	if len(plaza) != 3 || !IsDigits(plaza) {
		return "", fmt.Errorf("plaza code must be 3 digits")
	}
	account, err := Digits(11)
	if err != nil {
		return "", fmt.Errorf("rand: %w", err)
	}
	body := bank + plaza + account
	return body + clabeDigit(body), nil
}

var clabeWeights = [3]int{3, 7, 1}

func clabeDigit(body string) string {
	sum := 0
	for i := 0; i < len(body); i++ {
		sum += (int(body[i]-'0') * clabeWeights[i%3]) % 10
	}
	return string('0' + byte((10-(sum%10))%10))
}

func ValidCLABE(s string) bool {
	if len(s) != clabeLen || !IsDigits(s) {
		return false
	}
	return clabeDigit(s[:clabeLen-1])[0] == s[clabeLen-1]
}

func IsDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// LastN returns the last n bytes of s, for logging references.
func LastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
