// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flowtable

import (
	"encoding/binary"
	"math/bits"
	"strings"

	"github.com/OneOfOne/xxhash"

	"grimm.is/flowtrack/internal/errors"
)

// HashFunc maps a key to a 32-bit hash. The table reduces it modulo the
// bucket count. Implementations must be pure functions of the key.
type HashFunc func(FlowKey) uint32

// Hash names accepted by HashByName.
const (
	HashReference = "reference"
	HashMurmur    = "murmur"
	HashXX        = "xxhash"
)

// ReferenceHash multiplies the top address octets and the ports, each plus
// one, in wrapping 32-bit arithmetic. It is the default hash. Keys sharing
// top octets and ports land in the same bucket.
func ReferenceHash(k FlowKey) uint32 {
	return (k.LocalAddr>>24 + 1) *
		(k.RemoteAddr>>24 + 1) *
		(uint32(k.LocalPort) + 1) *
		(uint32(k.RemotePort) + 1)
}

func mhashAdd(hash, data uint32) uint32 {
	if data != 0 {
		data *= 0xcc9e2d51
		data = bits.RotateLeft32(data, 15)
		data *= 0x1b873593
		hash ^= data
	}
	hash = bits.RotateLeft32(hash, 13)
	return hash*5 + 0xe6546b64
}

func mhashFinish(hash uint32) uint32 {
	hash ^= hash >> 16
	hash *= 0x85ebca6b
	hash ^= hash >> 13
	hash *= 0xc2b2ae35
	hash ^= hash >> 16
	return hash
}

// MurmurHash mixes the key words murmur3-style. Word order keeps local and
// remote roles distinct.
func MurmurHash(k FlowKey) uint32 {
	h := mhashAdd(0, k.LocalAddr)
	h = mhashAdd(h, k.RemoteAddr)
	h = mhashAdd(h, uint32(k.LocalPort)<<16|uint32(k.RemotePort))
	return mhashFinish(h)
}

// XXHash hashes the 12-byte big-endian encoding of the key.
func XXHash(k FlowKey) uint32 {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[0:], k.LocalAddr)
	binary.BigEndian.PutUint32(buf[4:], k.RemoteAddr)
	binary.BigEndian.PutUint16(buf[8:], k.LocalPort)
	binary.BigEndian.PutUint16(buf[10:], k.RemotePort)
	return xxhash.Checksum32(buf[:])
}

// HashByName resolves a configured hash name. The empty name selects the
// reference hash.
func HashByName(name string) (HashFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", HashReference:
		return ReferenceHash, nil
	case HashMurmur:
		return MurmurHash, nil
	case HashXX:
		return XXHash, nil
	default:
		return nil, errors.Errorf(errors.KindValidation, "unknown hash %q", name)
	}
}
