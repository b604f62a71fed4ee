// Package ledger implements the chain collaborator used by the
// settlement core: a binary codec for token-transfer transactions, a
// secp256k1 signer for the funding account, and an HTTP client for the
// node's ingestion and account endpoints.
package ledger

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Crockford base32 alphabet used by principal addresses.
const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Single-signature address version bytes. The version character is the
// second letter of the rendered address ("SP...", "ST...").
const (
	AddressVersionMainnet = 22 // 'P'
	AddressVersionTestnet = 26 // 'T'
)

const (
	addressLen     = 41 // 'S' + version char + 39 payload chars
	addressHashLen = 20
	checksumLen    = 4
)

var ErrInvalidAddress = errors.New("invalid address")

var c32Value = func() map[byte]int {
	m := make(map[byte]int, len(c32Alphabet))
	for i := 0; i < len(c32Alphabet); i++ {
		m[c32Alphabet[i]] = i
	}
	return m
}()

// ValidAddress reports whether addr satisfies the principal address
// format for any supported network.
func ValidAddress(addr string) bool {
	_, _, err := DecodeAddress(addr)
	return err == nil
}

// DecodeAddress parses a principal address into its version byte and
// hash160, verifying the embedded checksum.
func DecodeAddress(addr string) (version byte, hash [addressHashLen]byte, err error) {
	addr = strings.ToUpper(strings.TrimSpace(addr))
	if len(addr) != addressLen || addr[0] != 'S' {
		return 0, hash, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	v, ok := c32Value[addr[1]]
	if !ok {
		return 0, hash, fmt.Errorf("%w: bad version character in %q", ErrInvalidAddress, addr)
	}

	n := new(big.Int)
	for i := 2; i < len(addr); i++ {
		d, ok := c32Value[addr[i]]
		if !ok {
			return 0, hash, fmt.Errorf("%w: bad character %q in %q", ErrInvalidAddress, addr[i], addr)
		}
		n.Lsh(n, 5)
		n.Or(n, big.NewInt(int64(d)))
	}

	var payload [addressHashLen + checksumLen]byte
	if n.BitLen() > len(payload)*8 {
		return 0, hash, fmt.Errorf("%w: payload overflow in %q", ErrInvalidAddress, addr)
	}
	n.FillBytes(payload[:])

	copy(hash[:], payload[:addressHashLen])
	want := addressChecksum(byte(v), hash)
	if string(payload[addressHashLen:]) != string(want[:]) {
		return 0, hash, fmt.Errorf("%w: checksum mismatch in %q", ErrInvalidAddress, addr)
	}
	return byte(v), hash, nil
}

// EncodeAddress renders a version byte and hash160 as a principal
// address.
func EncodeAddress(version byte, hash [addressHashLen]byte) string {
	check := addressChecksum(version, hash)

	var payload [addressHashLen + checksumLen]byte
	copy(payload[:], hash[:])
	copy(payload[addressHashLen:], check[:])

	n := new(big.Int).SetBytes(payload[:])
	digits := make([]byte, 0, addressLen-2)
	base := big.NewInt(32)
	mod := new(big.Int)
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		digits = append(digits, c32Alphabet[mod.Int64()])
	}
	for len(digits) < addressLen-2 {
		digits = append(digits, '0')
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}

	return "S" + string(c32Alphabet[version]) + string(digits)
}

// AddressVersion returns the single-signature address version byte for
// a network name.
func AddressVersion(network string) byte {
	if network == NetworkMainnet {
		return AddressVersionMainnet
	}
	return AddressVersionTestnet
}

func addressChecksum(version byte, hash [addressHashLen]byte) [checksumLen]byte {
	buf := make([]byte, 0, 1+addressHashLen)
	buf = append(buf, version)
	buf = append(buf, hash[:]...)
	first := sha256.Sum256(buf)
	second := sha256.Sum256(first[:])
	var out [checksumLen]byte
	copy(out[:], second[:checksumLen])
	return out
}
