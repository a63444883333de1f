package domain

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// AddressLength is the raw byte length of an address.
const AddressLength = 32

// ErrInvalidAddress is returned when a string is not a base58-encoded 32-byte key.
var ErrInvalidAddress = errors.New("invalid address")

// Address identifies a caller (holder, seller, buyer, operator).
// Text form is base58 (Bitcoin alphabet) of 32 raw bytes.
type Address string

// ZeroAddress is the all-zero key. It never holds units.
var ZeroAddress = AddressFromBytes(make([]byte, AddressLength))

// ParseAddress validates and returns an Address.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(decoded) != AddressLength {
		return "", fmt.Errorf("%w: decoded length %d", ErrInvalidAddress, len(decoded))
	}
	return Address(s), nil
}

// AddressFromBytes encodes raw key bytes. Panics if len(b) != AddressLength.
func AddressFromBytes(b []byte) Address {
	if len(b) != AddressLength {
		panic(fmt.Sprintf("address must be %d bytes, got %d", AddressLength, len(b)))
	}
	return Address(base58.Encode(b))
}

// Bytes returns the raw key bytes, or nil if the address is malformed.
func (a Address) Bytes() []byte {
	decoded, err := base58.Decode(string(a))
	if err != nil || len(decoded) != AddressLength {
		return nil
	}
	return decoded
}

func (a Address) String() string {
	return string(a)
}

// IsZero reports whether a is empty or the all-zero key.
func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}

// DeriveProgramAddress derives a deterministic address for an engine component.
// Same algorithm as a Solana PDA:
// SHA256(seeds || bump || base || "ProgramDerivedAddress"), taking the first bump
// (255 downwards) whose hash is not a valid ed25519 point, so no private key
// can exist for the result.
func DeriveProgramAddress(base Address, seeds ...[]byte) (Address, byte, error) {
	baseBytes := base.Bytes()
	if baseBytes == nil {
		return "", 0, fmt.Errorf("derive program address: %w", ErrInvalidAddress)
	}

	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, 64)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, baseBytes...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)
		if !IsOnCurve(hash[:]) {
			return AddressFromBytes(hash[:]), bump, nil
		}
	}

	return "", 0, errors.New("derive program address: no viable bump seed")
}

// IsOnCurve reports whether point is a valid compressed edwards25519 point.
func IsOnCurve(point []byte) bool {
	if len(point) != AddressLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
