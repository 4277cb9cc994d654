// Package steamid provides the SteamID value type used throughout the API:
// a 64-bit identifier that is always valid (in range) once constructed, with
// conversions to and from its two other common textual/numeric encodings.
package steamid

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

const (
	// Min is the lowest 64-bit SteamID value considered valid: account
	// number 0, Y bit 1.
	Min = uint64(76561197960265729)
	// Max is the highest 64-bit SteamID value considered valid: the
	// largest 31-bit account number with the Y bit set.
	Max = uint64(76561202255233023)

	base = uint64(76561197960265728) // Min - 1; the "Y=0, account=0" anchor
)

var (
	// ErrOutOfRange is returned when a numeric value falls outside [Min, Max].
	ErrOutOfRange = errors.New("steamid: value out of range")
	// ErrMalformed is returned when a string does not match any known
	// SteamID text encoding.
	ErrMalformed = errors.New("steamid: malformed input")
)

var (
	reSteam2 = regexp.MustCompile(`^STEAM_([01]):([01]):([0-9]+)$`)
	reSteam3 = regexp.MustCompile(`^\[?U:1:([0-9]+)\]?$`)
)

// ID is a validated Steam64 identifier. The zero value is not a valid ID;
// always construct one through New, Parse, or FromAccountNumber.
type ID uint64

// New validates a raw 64-bit value and returns the corresponding ID.
func New(raw uint64) (ID, error) {
	if raw < Min || raw > Max {
		return 0, fmt.Errorf("%w: %d", ErrOutOfRange, raw)
	}
	return ID(raw), nil
}

// FromAccountNumber builds an ID from a 32-bit account number and the "Y"
// bit used by the STEAM_X:Y:Z encoding.
func FromAccountNumber(accountNumber uint32, y bool) (ID, error) {
	v := base + uint64(accountNumber)*2
	if y {
		v++
	}
	return New(v)
}

// Parse decodes a SteamID from any of its three standard text forms:
//
//	STEAM_X:Y:Z   (X is accepted as 0 or 1 but ignored, the "universe" bit)
//	U:1:N         (optionally bracketed: [U:1:N])
//	a bare base-10 Steam64 integer
func Parse(s string) (ID, error) {
	if m := reSteam2.FindStringSubmatch(s); m != nil {
		y := m[2] == "1"
		accountNumber, err := strconv.ParseUint(m[3], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrMalformed, s)
		}
		return FromAccountNumber(uint32(accountNumber), y)
	}

	if m := reSteam3.FindStringSubmatch(s); m != nil {
		raw, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrMalformed, s)
		}
		return New(base + raw)
	}

	raw, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrMalformed, s)
	}
	return New(raw)
}

// Uint64 returns the canonical Steam64 representation.
func (id ID) Uint64() uint64 { return uint64(id) }

// AccountNumber returns the 31-bit account number (the "Z" in STEAM_X:Y:Z).
func (id ID) AccountNumber() uint32 {
	return uint32((uint64(id) - base) >> 1)
}

// yBit returns the low bit of the 32-bit form (the "Y" in STEAM_X:Y:Z).
func (id ID) yBit() uint32 {
	return uint32((uint64(id) - base) & 1)
}

// AccountID32 returns the 32-bit "account number" form: the account number
// shifted left by one with the Y bit as its low bit. This is the value
// produced by FromAccountID32 and is distinct from AccountNumber, which
// reports only the 31-bit Z component.
func (id ID) AccountID32() uint32 {
	return uint32(uint64(id) - base)
}

// FromAccountID32 builds an ID from a combined 32-bit account id, where the
// low bit is Y and the remaining 31 bits are the account number.
func FromAccountID32(accountID32 uint32) (ID, error) {
	return New(base + uint64(accountID32))
}

// Steam2 renders the STEAM_X:Y:Z form. X is always reported as 1, matching
// the canonical form used by the current Steam client and web API.
func (id ID) Steam2() string {
	return fmt.Sprintf("STEAM_1:%d:%d", id.yBit(), id.AccountNumber())
}

// Steam3 renders the bracketed U:1:N form.
func (id ID) Steam3() string {
	return fmt.Sprintf("[U:1:%d]", uint64(id)-base)
}

// String renders the bare Steam64 integer, the form used in JSON payloads.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Value implements driver.Valuer, storing the ID as a plain bigint column.
func (id ID) Value() (driver.Value, error) {
	return int64(id), nil
}

// Scan implements sql.Scanner, restoring an ID from a bigint column.
func (id *ID) Scan(value any) error {
	switch v := value.(type) {
	case int64:
		*id = ID(v)
	case nil:
		*id = 0
	default:
		return fmt.Errorf("steamid: cannot scan %T into ID", value)
	}
	return nil
}

// MarshalJSON renders the ID as a JSON string (Steam64 integers overflow a
// JS float53, so clients expect a string here).
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or a JSON number, decoding
// through Parse in either case.
func (id *ID) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
