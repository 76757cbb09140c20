package payment

import (
	"regexp"
	"strings"

	"github.com/joao-fontenele/tableflow/internal/domain"
)

// Uganda numbering: MTN 077/078/076, Airtel 075/070/074.
var (
	ugandaPhone  = regexp.MustCompile(`^(256)?(77|78|76|75|70|74)[0-9]{7}$`)
	mtnPrefix    = regexp.MustCompile(`^(256)?(77|78|76)`)
	airtelPrefix = regexp.MustCompile(`^(256)?(75|70|74)`)
)

// clean drops whitespace, a leading "+" and the trunk "0" so that local and
// international spellings of the same number compare equal.
func clean(phone string) string {
	s := strings.Join(strings.Fields(phone), "")
	s = strings.TrimPrefix(s, "+")
	if strings.HasPrefix(s, "0") {
		s = s[1:]
	}
	return s
}

func ValidatePhone(phone string) bool {
	return ugandaPhone.MatchString(clean(phone))
}

// DetectMethod returns the mobile-money network a number belongs to.
func DetectMethod(phone string) (domain.PaymentMethod, bool) {
	s := clean(phone)
	switch {
	case mtnPrefix.MatchString(s):
		return domain.PaymentMTNMoMo, true
	case airtelPrefix.MatchString(s):
		return domain.PaymentAirtelMoney, true
	}
	return "", false
}

// FormatPhone normalises a number to the 256 international form.
func FormatPhone(phone string) string {
	s := clean(phone)
	if !strings.HasPrefix(s, "256") {
		s = "256" + s
	}
	return s
}

type MethodInfo struct {
	ID          domain.PaymentMethod `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
}

func SupportedMethods() []MethodInfo {
	return []MethodInfo{
		{ID: domain.PaymentCash, Name: domain.PaymentCash.Display(), Description: "Pay with cash when your order arrives"},
		{ID: domain.PaymentMTNMoMo, Name: domain.PaymentMTNMoMo.Display(), Description: "Pay with MTN Mobile Money (077, 078, 076)"},
		{ID: domain.PaymentAirtelMoney, Name: domain.PaymentAirtelMoney.Display(), Description: "Pay with Airtel Money (075, 070, 074)"},
	}
}
