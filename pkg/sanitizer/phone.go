package sanitizer

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegions are tried when the caller configures none.
var DefaultRegions = []string{"GB"}

// NormalizePhone converts phone to E.164. Numbers without a leading + are
// interpreted in each region in turn; the first successful parse wins.
func NormalizePhone(phone string, regions []string) string {
	phone = strings.TrimSpace(phone)

	if phone == "" {
		return ""
	}

	if len(regions) == 0 {
		regions = DefaultRegions
	}

	for _, region := range regions {
		parsedNumber, err := phonenumbers.Parse(phone, strings.ToUpper(region))
		if err == nil {
			return phonenumbers.Format(parsedNumber, phonenumbers.E164)
		}
	}
	return ""
}
