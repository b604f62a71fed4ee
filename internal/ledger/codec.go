package ledger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedTransaction = errors.New("malformed transaction")
	ErrUnsupportedAuth      = errors.New("unsupported authorization type")
)

// Codec serializes and deserializes single-signature transactions.
// Only the token-transfer payload is fully decoded; other payload kinds
// are parsed to their type tag so callers can reject them by kind.
type Codec struct{}

// Deserialize decodes raw signed transaction bytes.
func (Codec) Deserialize(raw []byte) (*Transaction, error) {
	r := newReader(raw)
	tx := &Transaction{Raw: append([]byte(nil), raw...)}

	tx.Version = r.byte()
	tx.ChainID = r.uint32()
	if authType := r.byte(); authType != AuthStandard {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedAuth, authType)
	}
	tx.Auth.HashMode = r.byte()
	r.bytes(tx.Auth.Signer[:])
	tx.Auth.Nonce = r.uint64()
	tx.Auth.Fee = r.uint64()
	tx.Auth.KeyEncoding = r.byte()
	r.bytes(tx.Auth.Signature[:])
	tx.AnchorMode = r.byte()
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, r.err)
	}

	if mode := r.byte(); mode != PostConditionModeAllow {
		return nil, fmt.Errorf("%w: post-condition mode 0x%02x", ErrMalformedTransaction, mode)
	}
	if n := r.uint32(); n != 0 {
		return nil, fmt.Errorf("%w: %d post conditions not supported", ErrMalformedTransaction, n)
	}

	tx.PayloadType = r.byte()
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, r.err)
	}
	if tx.PayloadType != PayloadTokenTransfer {
		// Envelope decoded; the payload body has no known layout here.
		return tx, nil
	}

	if pt := r.byte(); pt != PrincipalStandard {
		return nil, fmt.Errorf("%w: recipient principal type 0x%02x", ErrMalformedTransaction, pt)
	}
	version := r.byte()
	var hash [addressHashLen]byte
	r.bytes(hash[:])
	tx.Amount = r.uint64()
	memo := make([]byte, MemoLength)
	r.bytes(memo)
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, r.err)
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedTransaction, r.remaining())
	}

	tx.Recipient = EncodeAddress(version, hash)
	tx.Memo = strings.TrimRight(string(memo), "\x00")
	return tx, nil
}

// Serialize renders a token-transfer transaction to wire bytes.
func (Codec) Serialize(tx *Transaction) ([]byte, error) {
	if tx.PayloadType != PayloadTokenTransfer {
		return nil, fmt.Errorf("serialize: payload type 0x%02x not supported", tx.PayloadType)
	}
	version, hash, err := DecodeAddress(tx.Recipient)
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	if len(tx.Memo) > MemoLength {
		return nil, fmt.Errorf("serialize: memo exceeds %d bytes", MemoLength)
	}

	var buf bytes.Buffer
	buf.WriteByte(tx.Version)
	writeUint32(&buf, tx.ChainID)
	buf.WriteByte(AuthStandard)
	buf.WriteByte(tx.Auth.HashMode)
	buf.Write(tx.Auth.Signer[:])
	writeUint64(&buf, tx.Auth.Nonce)
	writeUint64(&buf, tx.Auth.Fee)
	buf.WriteByte(tx.Auth.KeyEncoding)
	buf.Write(tx.Auth.Signature[:])
	buf.WriteByte(tx.AnchorMode)
	buf.WriteByte(PostConditionModeAllow)
	writeUint32(&buf, 0)
	buf.WriteByte(PayloadTokenTransfer)
	buf.WriteByte(PrincipalStandard)
	buf.WriteByte(version)
	buf.Write(hash[:])
	writeUint64(&buf, tx.Amount)
	memo := make([]byte, MemoLength)
	copy(memo, tx.Memo)
	buf.Write(memo)

	return buf.Bytes(), nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

type reader struct {
	data []byte
	off  int
	err  error
}

func newReader(data []byte) *reader { return &reader{data: data} }

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("truncated at offset %d (need %d bytes)", r.off, n)
		return nil
	}
	out := r.data[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) bytes(dst []byte) {
	b := r.take(len(dst))
	if b != nil {
		copy(dst, b)
	}
}

func (r *reader) uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) remaining() int { return len(r.data) - r.off }
