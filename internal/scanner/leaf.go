// Leaf parsing: the fixed 396-byte compressed-leaf binary layout of spec §6.
package scanner

import (
	"encoding/binary"
	"errors"

	"github.com/ccoin/shieldengine/internal/field"
)

// ErrMalformedLeaf is returned when a leaf's length or layout does not
// match the fixed binary format; per spec §7 this is a per-leaf local
// error, never fatal to a scan.
var ErrMalformedLeaf = errors.New("scanner: malformed leaf")

// LeafSize is the total fixed size of a compressed leaf record.
const LeafSize = 396

const (
	offPoolID          = 0
	offCommitment      = 32
	offLeafIndex       = 64
	offEphemeralX      = 72
	offEphemeralY      = 104
	offEncryptedBuf    = 136
	encryptedBufLen    = 250
	offEncryptedLen    = 386
	offCreatedAtSlot   = 388
)

// Leaf is a parsed compressed leaf.
type Leaf struct {
	PoolID             [32]byte
	Commitment         field.Element
	LeafIndex          uint64
	StealthEphemeralX  [32]byte
	StealthEphemeralY  [32]byte
	EncryptedNote      []byte // the ciphertext_len-bounded slice of the fixed buffer
	CreatedAtSlot      int64
}

// HasEphemeral reports whether the leaf carries a non-zero stealth
// ephemeral point; an all-zero ephemeral signals an internal op (spec §6).
func (l Leaf) HasEphemeral() bool {
	return !isZero(l.StealthEphemeralX[:]) || !isZero(l.StealthEphemeralY[:])
}

// ParseLeaf decodes the fixed 396-byte layout. Records shorter than
// LeafSize are rejected per spec §6 ("shorter records are rejected").
func ParseLeaf(data []byte) (Leaf, error) {
	if len(data) < LeafSize {
		return Leaf{}, ErrMalformedLeaf
	}

	var l Leaf
	copy(l.PoolID[:], data[offPoolID:offPoolID+32])

	commitment, err := field.FromBytesBE(data[offCommitment : offCommitment+32])
	if err != nil {
		return Leaf{}, ErrMalformedLeaf
	}
	l.Commitment = commitment

	l.LeafIndex = binary.LittleEndian.Uint64(data[offLeafIndex : offLeafIndex+8])

	copy(l.StealthEphemeralX[:], data[offEphemeralX:offEphemeralX+32])
	copy(l.StealthEphemeralY[:], data[offEphemeralY:offEphemeralY+32])

	encLen := binary.LittleEndian.Uint16(data[offEncryptedLen : offEncryptedLen+2])
	if int(encLen) > encryptedBufLen {
		return Leaf{}, ErrMalformedLeaf
	}
	buf := data[offEncryptedBuf : offEncryptedBuf+encryptedBufLen]
	l.EncryptedNote = append([]byte(nil), buf[:encLen]...)

	l.CreatedAtSlot = int64(binary.LittleEndian.Uint64(data[offCreatedAtSlot : offCreatedAtSlot+8]))

	return l, nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
