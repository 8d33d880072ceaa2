// Package noteenc implements the per-note authenticated encryption of
// spec §4.F: a Poseidon-sponge keyed stream cipher over the note's wire
// representation, with a Poseidon-derived tag, grounded on parsdao-pars'
// sponge-based hashing style generalized into an absorb/squeeze cipher.
package noteenc

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/ccoin/shieldengine/internal/curve"
	"github.com/ccoin/shieldengine/internal/field"
	"github.com/ccoin/shieldengine/internal/note"
	"github.com/ccoin/shieldengine/internal/poseidon"
)

// ErrDecryptFailed is returned when the tag does not verify, or when the
// recomputed commitment does not match the commitment stored beside the
// ciphertext (spec §4.F: "a mismatch on commitment recomputation signals
// a malicious or corrupted leaf").
var ErrDecryptFailed = errors.New("noteenc: decryption failed")

const tagLen = 16

// variant tags used in the plaintext layout, independent of note.Variant's
// iota values so the wire format never silently shifts if note.Variant
// gains entries.
const (
	wireFungible byte = 0
	wirePosition byte = 1
	wireLP       byte = 2
)

// Encrypt encrypts n for recipientPub, drawing a fresh ephemeral keypair.
// It returns the wire format of spec §4.F:
// ephemeral.x(32) || ephemeral.y(32) || ciphertext_len(4 LE) || ciphertext || tag(16).
func Encrypt(recipientPub curve.Point, n note.Note) ([]byte, error) {
	e, err := curve.RandomScalar()
	if err != nil {
		return nil, err
	}
	E := curve.Generator().ScalarMul(e)
	S := recipientPub.ScalarMul(e)
	return encryptWithShared(E, S, n)
}

func encryptWithShared(E, S curve.Point, n note.Note) ([]byte, error) {
	k, err := derivationKey(S)
	if err != nil {
		return nil, err
	}
	plaintext, err := encode(n)
	if err != nil {
		return nil, err
	}
	ciphertext, err := xorKeystream(k, plaintext)
	if err != nil {
		return nil, err
	}
	tag, err := computeTag(k, ciphertext)
	if err != nil {
		return nil, err
	}

	ex := E.X().ToBytesBE()
	ey := E.Y().ToBytesBE()

	out := make([]byte, 0, 32+32+4+len(ciphertext)+tagLen)
	out = append(out, ex[:]...)
	out = append(out, ey[:]...)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(ciphertext)))
	out = append(out, lenBuf[:]...)
	out = append(out, ciphertext...)
	out = append(out, tag...)
	return out, nil
}

// Decrypt parses the wire format and decrypts it using sk (the recipient's
// stealth spending key, or the canonical spending key when the ephemeral
// is zero). It returns ErrDecryptFailed on tag mismatch.
func Decrypt(sk *big.Int, wire []byte) (note.Note, error) {
	if len(wire) < 32+32+4+tagLen {
		return nil, ErrDecryptFailed
	}
	var ex, ey [32]byte
	copy(ex[:], wire[0:32])
	copy(ey[:], wire[32:64])

	ephemeral, err := decodeEphemeral(ex, ey)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	clen := binary.LittleEndian.Uint32(wire[64:68])
	rest := wire[68:]
	if uint64(len(rest)) != uint64(clen)+tagLen {
		return nil, ErrDecryptFailed
	}
	ciphertext := rest[:clen]
	tag := rest[clen:]

	k, err := decryptionKey(sk, ephemeral)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	gotTag, err := computeTag(k, ciphertext)
	if err != nil || !constantTimeEqual(gotTag, tag) {
		return nil, ErrDecryptFailed
	}

	plaintext, err := xorKeystream(k, ciphertext)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	return decode(plaintext)
}

// TryDecryptAny decrypts wire once, taking the note variant from the
// plaintext's leading variant byte, and returns the note only if its tag
// verifies and its recomputed commitment matches storedCommitment.
func TryDecryptAny(sk *big.Int, wire []byte, storedCommitment field.Element) (note.Note, error) {
	n, err := Decrypt(sk, wire)
	if err != nil {
		return nil, err
	}
	c, err := n.Commitment()
	if err != nil {
		return nil, err
	}
	if !c.Equal(storedCommitment) {
		return nil, ErrDecryptFailed
	}
	return n, nil
}

func decodeEphemeral(x, y [32]byte) (curve.Point, error) {
	xe, err := field.FromBytesBE(x[:])
	if err != nil {
		return curve.Point{}, err
	}
	ye, err := field.FromBytesBE(y[:])
	if err != nil {
		return curve.Point{}, err
	}
	if xe.IsZero() && ye.IsZero() {
		return curve.Identity(), nil
	}
	p := curve.FromXY(xe, ye)
	return p, nil
}

func decryptionKey(sk *big.Int, ephemeral curve.Point) (field.Element, error) {
	var S curve.Point
	if ephemeral.Equal(curve.Identity()) {
		S = curve.Generator().ScalarMul(sk)
	} else {
		S = ephemeral.ScalarMul(sk)
	}
	return derivationKey(S)
}

func derivationKey(S curve.Point) (field.Element, error) {
	return poseidon.HashWithDomain(poseidon.DomainNoteEncryption, S.X())
}

func computeTag(k field.Element, ciphertext []byte) ([]byte, error) {
	chunks := chunkToFields(ciphertext)
	h, err := poseidon.HashWithDomain(poseidon.DomainMAC, append([]field.Element{k}, chunks...)...)
	if err != nil {
		return nil, err
	}
	b := h.ToBytesBE()
	return b[:tagLen], nil
}

// xorKeystream derives a Poseidon-based keystream from k and XORs it with
// data, so the same function encrypts and decrypts.
func xorKeystream(k field.Element, data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	for offset := 0; offset < len(data); offset += 32 {
		idx := uint64(offset / 32)
		ks, err := poseidon.HashWithDomain(poseidon.DomainNoteEncryption, k, field.FromUint64(idx))
		if err != nil {
			return nil, err
		}
		block := ks.ToBytesBE()
		end := offset + 32
		if end > len(data) {
			end = len(data)
		}
		for i := offset; i < end; i++ {
			out[i] = data[i] ^ block[i-offset]
		}
	}
	return out, nil
}

// chunkToFields reduces ciphertext into 32-byte-aligned field elements for
// absorption into the tag hash; the final partial chunk is zero-padded.
func chunkToFields(data []byte) []field.Element {
	var out []field.Element
	for offset := 0; offset < len(data); offset += 32 {
		end := offset + 32
		var buf [32]byte
		if end > len(data) {
			copy(buf[:], data[offset:])
		} else {
			copy(buf[:], data[offset:end])
		}
		out = append(out, field.ReduceBytes(buf[:]))
	}
	return out
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

func encode(n note.Note) ([]byte, error) {
	switch v := n.(type) {
	case note.Fungible:
		buf := make([]byte, 0, 1+32+32+8+32)
		buf = append(buf, wireFungible)
		buf = appendField(buf, v.StealthPubX)
		buf = appendField(buf, v.TokenMint)
		buf = appendU64(buf, v.Amount)
		buf = appendField(buf, v.Rand)
		return buf, nil
	case note.Position:
		buf := make([]byte, 0, 1+32+32+1+8+8+2+8+32)
		buf = append(buf, wirePosition)
		buf = appendField(buf, v.StealthPubX)
		buf = appendField(buf, v.MarketID)
		if v.IsLong {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = appendU64(buf, v.Margin)
		buf = appendU64(buf, v.Size)
		buf = appendU16(buf, v.Leverage)
		buf = appendU64(buf, v.EntryPrice)
		buf = appendField(buf, v.Rand)
		return buf, nil
	case note.LP:
		buf := make([]byte, 0, 1+32+32+8+32)
		buf = append(buf, wireLP)
		buf = appendField(buf, v.StealthPubX)
		buf = appendField(buf, v.PoolID)
		buf = appendU64(buf, v.LPAmount)
		buf = appendField(buf, v.Rand)
		return buf, nil
	default:
		return nil, note.ErrUnknownVariant
	}
}

func decode(buf []byte) (note.Note, error) {
	if len(buf) < 1 {
		return nil, note.ErrUnknownVariant
	}
	tag := buf[0]
	buf = buf[1:]
	switch tag {
	case wireFungible:
		if len(buf) != 32+32+8+32 {
			return nil, ErrDecryptFailed
		}
		pubX, mint, rand, amount, _, err := readFungible(buf)
		if err != nil {
			return nil, err
		}
		return note.Fungible{StealthPubX: pubX, TokenMint: mint, Amount: amount, Rand: rand}, nil
	case wirePosition:
		if len(buf) != 32+32+1+8+8+2+8+32 {
			return nil, ErrDecryptFailed
		}
		return readPosition(buf)
	case wireLP:
		if len(buf) != 32+32+8+32 {
			return nil, ErrDecryptFailed
		}
		pubX, poolID, rand, lpAmount, err := readLP(buf)
		if err != nil {
			return nil, err
		}
		return note.LP{StealthPubX: pubX, PoolID: poolID, LPAmount: lpAmount, Rand: rand}, nil
	default:
		return nil, note.ErrUnknownVariant
	}
}

func readFungible(buf []byte) (pubX, mint, rnd field.Element, amount uint64, off int, err error) {
	pubX, err = field.FromBytesBE(buf[0:32])
	if err != nil {
		return
	}
	mint, err = field.FromBytesBE(buf[32:64])
	if err != nil {
		return
	}
	amount = binary.BigEndian.Uint64(buf[64:72])
	rnd, err = field.FromBytesBE(buf[72:104])
	return pubX, mint, rnd, amount, 104, err
}

func readPosition(buf []byte) (note.Position, error) {
	pubX, err := field.FromBytesBE(buf[0:32])
	if err != nil {
		return note.Position{}, err
	}
	marketID, err := field.FromBytesBE(buf[32:64])
	if err != nil {
		return note.Position{}, err
	}
	isLong := buf[64] != 0
	margin := binary.BigEndian.Uint64(buf[65:73])
	size := binary.BigEndian.Uint64(buf[73:81])
	leverage := binary.BigEndian.Uint16(buf[81:83])
	entryPrice := binary.BigEndian.Uint64(buf[83:91])
	rnd, err := field.FromBytesBE(buf[91:123])
	if err != nil {
		return note.Position{}, err
	}
	return note.Position{
		StealthPubX: pubX,
		MarketID:    marketID,
		IsLong:      isLong,
		Margin:      margin,
		Size:        size,
		Leverage:    leverage,
		EntryPrice:  entryPrice,
		Rand:        rnd,
	}, nil
}

func readLP(buf []byte) (pubX, poolID, rnd field.Element, lpAmount uint64, err error) {
	pubX, err = field.FromBytesBE(buf[0:32])
	if err != nil {
		return
	}
	poolID, err = field.FromBytesBE(buf[32:64])
	if err != nil {
		return
	}
	lpAmount = binary.BigEndian.Uint64(buf[64:72])
	rnd, err = field.FromBytesBE(buf[72:104])
	return
}

func appendField(buf []byte, e field.Element) []byte {
	b := e.ToBytesBE()
	return append(buf, b[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendU16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}
