// Package perms implements the permission bitfield used to authorize admin
// actions. It is a plain value type: no I/O, no suspension points.
package perms

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

// Flags is an unsigned bitfield of permission bits. The zero value grants
// nothing.
type Flags uint32

const (
	Bans Flags = 1 << iota
	Records
	Servers
	Maps
	Admin

	// all is the union of every currently defined bit; used to reject
	// unknown bits at decode time.
	all = Bans | Records | Servers | Maps | Admin
)

var names = map[Flags]string{
	Bans:    "bans",
	Records: "records",
	Servers: "servers",
	Maps:    "maps",
	Admin:   "admin",
}

var bitsByName = map[string]Flags{
	"bans":    Bans,
	"records": Records,
	"servers": Servers,
	"maps":    Maps,
	"admin":   Admin,
}

// ErrUnknownBit is returned when decoding a bitfield or name list that
// references a bit this version of the service does not define.
var ErrUnknownBit = errors.New("perms: unknown permission bit")

// Contains reports whether self has every bit set in other.
func (f Flags) Contains(other Flags) bool {
	return f&other == other
}

// Decode validates a raw bitfield, rejecting any bit outside the known set.
func Decode(raw uint32) (Flags, error) {
	f := Flags(raw)
	if f&^all != 0 {
		return 0, fmt.Errorf("%w: %#x", ErrUnknownBit, raw&^uint32(all))
	}
	return f, nil
}

// Names returns the sorted bit names set in f, in a stable declaration
// order (bans, records, servers, maps, admin).
func (f Flags) Names() []string {
	order := []Flags{Bans, Records, Servers, Maps, Admin}
	out := make([]string, 0, len(order))
	for _, bit := range order {
		if f.Contains(bit) {
			out = append(out, names[bit])
		}
	}
	return out
}

// String renders the set bit names joined by "|", or "none" when empty.
func (f Flags) String() string {
	n := f.Names()
	if len(n) == 0 {
		return "none"
	}
	return strings.Join(n, "|")
}

// FromNames builds a Flags value from a list of bit names, rejecting any
// name that isn't one of the known bits.
func FromNames(names []string) (Flags, error) {
	var f Flags
	for _, n := range names {
		bit, ok := bitsByName[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknownBit, n)
		}
		f |= bit
	}
	return f, nil
}

// Value implements driver.Valuer so Flags stores as a plain integer column.
func (f Flags) Value() (driver.Value, error) {
	return int64(f), nil
}

// Scan implements sql.Scanner, reading the integer column back into f
// without re-validating against the known-bit set (already-stored rows are
// trusted; unknown bits only get rejected at the decode boundary).
func (f *Flags) Scan(value any) error {
	switch v := value.(type) {
	case int64:
		*f = Flags(v)
	case int32:
		*f = Flags(v)
	case nil:
		*f = 0
	default:
		return fmt.Errorf("perms: cannot scan %T into Flags", value)
	}
	return nil
}

// MarshalJSON renders f as a JSON array of bit names.
func (f Flags) MarshalJSON() ([]byte, error) {
	names := f.Names()
	var b strings.Builder
	b.WriteByte('[')
	for i, n := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(n)
		b.WriteByte('"')
	}
	b.WriteByte(']')
	return []byte(b.String()), nil
}

// UnmarshalJSON decodes a JSON array of bit names into f.
func (f *Flags) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	s = strings.TrimSpace(s)

	if s == "" {
		*f = 0
		return nil
	}

	parts := strings.Split(s, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, `"`)
		names = append(names, p)
	}

	decoded, err := FromNames(names)
	if err != nil {
		return err
	}
	*f = decoded
	return nil
}
