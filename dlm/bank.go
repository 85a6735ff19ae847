package dlm

import (
	"fmt"
	"path/filepath"
)

// BankID identifies one of the two storage banks.
type BankID uint8

const (
	Bank0 BankID = iota
	Bank1
)

// Other returns the opposite bank.
func (b BankID) Other() BankID {
	if b == Bank0 {
		return Bank1
	}

	return Bank0
}

func (b BankID) String() string {
	return fmt.Sprintf("bank_%d", b)
}

func (b BankID) suffix() byte {
	return '0' + byte(b)
}

// ParseBank returns the bank of dir, given by the last character of its cleaned path.
func ParseBank(dir string) (BankID, error) {
	dir = filepath.Clean(dir)

	switch dir[len(dir)-1] {
	case '0':
		return Bank0, nil
	case '1':
		return Bank1, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidBank, dir)
	}
}

// BankPath returns the directory of bank b, a sibling of dir differing only in its last character.
func BankPath(dir string, b BankID) (string, error) {
	if _, err := ParseBank(dir); err != nil {
		return "", err
	}

	dir = filepath.Clean(dir)

	return dir[:len(dir)-1] + string(b.suffix()), nil
}

// InactiveBank returns the bank not booted from and its directory, given the directory of the
// running bank.
func InactiveBank(current string) (BankID, string, error) {
	id, err := ParseBank(current)
	if err != nil {
		return 0, "", err
	}

	other := id.Other()
	path, err := BankPath(current, other)
	if err != nil {
		return 0, "", err
	}

	return other, path, nil
}
