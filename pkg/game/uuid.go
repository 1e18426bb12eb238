// Package game holds protocol-independent game state: identity, slots,
// windows, block properties and entity metadata.
package game

import (
	"crypto/md5"
	"crypto/rand"

	"github.com/google/uuid"
)

// NewUUIDv4 generates a random UUID (version nibble 4, variant nibble B).
func NewUUIDv4() uuid.UUID {
	var u uuid.UUID
	rand.Read(u[:])
	u[6] = (u[6] & 0x0F) | 0x40
	u[8] = (u[8] & 0x0F) | 0xB0
	return u
}

// NewUUIDv3 derives a UUID from the MD5 of a string (version nibble 3,
// variant nibble B).
func NewUUIDv3(s string) uuid.UUID {
	u := uuid.UUID(md5.Sum([]byte(s)))
	u[6] = (u[6] & 0x0F) | 0x30
	u[8] = (u[8] & 0x0F) | 0xB0
	return u
}

// OfflineUUID returns the stable identity of a player in offline mode:
// the v3 UUID of the bare username.
func OfflineUUID(username string) uuid.UUID {
	return NewUUIDv3(username)
}

// ParseUUID accepts the canonical dashed form as well as 32 contiguous
// hex digits, case-insensitive.
func ParseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
