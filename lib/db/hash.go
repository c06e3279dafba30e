package db

import (
	"fmt"
	"github.com/ValentinKolb/kvs/lib/db/util"
	"github.com/cespare/xxhash/v2"
	"strings"
)

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

const (
	HashLetter = "letter"
	HashFNV    = "fnv"
	HashXX     = "xxhash"
)

// LetterHash buckets a key by its first byte: letters map to 0..25 (case-insensitive),
// digits to 0..9 and every other byte to byte % TableSize.
// The empty key maps to bucket 0.
func LetterHash(key string) int {
	if len(key) == 0 {
		return 0
	}
	c := key[0]
	switch {
	case c >= 'a' && c <= 'z':
		return int(c - 'a')
	case c >= 'A' && c <= 'Z':
		return int(c - 'A')
	case c >= '0' && c <= '9':
		return int(c - '0')
	default:
		return int(c) % TableSize
	}
}

// FNVHash buckets a key by its FNV-1a hash
func FNVHash(key string) int {
	return int(util.HashString(key) % TableSize)
}

// XXHash buckets a key by its xxhash64 digest
func XXHash(key string) int {
	return int(xxhash.Sum64String(key) % TableSize)
}

// HashByName returns the hash function registered under the given name
func HashByName(name string) (HashFunc, error) {
	switch strings.ToLower(name) {
	case "", HashLetter:
		return LetterHash, nil
	case HashFNV:
		return FNVHash, nil
	case HashXX:
		return XXHash, nil
	default:
		return nil, fmt.Errorf("invalid hash function %q (expected one of: %s, %s, %s)", name, HashLetter, HashFNV, HashXX)
	}
}
