package checkout

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	FieldRecipientName = "recipientName"
	FieldPhoneNumber   = "phoneNumber"
	FieldAddress       = "address"
	FieldPaymentMethod = "paymentMethod"
)

// local mobile numbers: a leading 0 and 9 or 10 more digits
var phonePattern = regexp.MustCompile(`^0\d{9,10}$`)

type ShippingInfo struct {
	RecipientName string
	PhoneNumber   string
	Address       string
	Notes         string
}

// NormalizePhone strips everything but digits.
func NormalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func ValidPhone(s string) bool {
	return phonePattern.MatchString(NormalizePhone(s))
}

// Validate returns field name -> message for every invalid field. An empty
// map means the input may be submitted.
func Validate(info ShippingInfo) map[string]string {
	errs := make(map[string]string)

	if strings.TrimSpace(info.RecipientName) == "" {
		errs[FieldRecipientName] = "Recipient name is required"
	}

	switch {
	case strings.TrimSpace(info.PhoneNumber) == "":
		errs[FieldPhoneNumber] = "Phone number is required"
	case !ValidPhone(info.PhoneNumber):
		errs[FieldPhoneNumber] = "Phone number must be 10 or 11 digits starting with 0"
	}

	if strings.TrimSpace(info.Address) == "" {
		errs[FieldAddress] = "Address is required"
	}

	return errs
}

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid shipping info: " + strings.Join(parts, "; ")
}
