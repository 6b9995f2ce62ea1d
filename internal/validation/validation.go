package validation

import (
	"errors"
	"regexp"
)

var addressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidateAddress validates an EVM account address
func ValidateAddress(address string) error {
	if address == "" {
		return errors.New("address cannot be empty")
	}
	if !addressRegex.MatchString(address) {
		return errors.New("invalid address format")
	}
	return nil
}
