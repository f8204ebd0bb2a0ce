package domain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// AddressLength is the size of a player account address in bytes.
const AddressLength = 20

// Address identifies a player account. It renders as an EIP-55 checksummed hex string.
type Address [AddressLength]byte

// ParseAddress accepts a 0x-prefixed 40 character hex string in any letter case.
// Mixed-case input must carry a valid checksum.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != AddressLength*2 {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	copy(a[:], b)
	if raw != strings.ToLower(raw) && raw != strings.ToUpper(raw) && "0x"+raw != a.Hex() {
		return Address{}, fmt.Errorf("%w: bad checksum %q", ErrInvalidAddress, s)
	}
	return a, nil
}

// MustParseAddress panics on malformed input. Meant for tests and constants.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Hex returns the EIP-55 checksummed form.
func (a Address) Hex() string {
	lower := hex.EncodeToString(a[:])
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := h.Sum(nil)

	out := []byte(lower)
	for i := range out {
		if out[i] < 'a' {
			continue
		}
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			out[i] -= 'a' - 'A'
		}
	}
	return "0x" + string(out)
}

func (a Address) String() string { return a.Hex() }

func (a Address) IsZero() bool { return a == Address{} }

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
