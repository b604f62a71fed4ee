package ledger

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/ripemd160"
)

// Key is a funding-account signing key.
type Key struct {
	priv *btcec.PrivateKey
}

// ParseKey decodes a 32-byte hex-encoded secp256k1 private key. A
// trailing 01 compression suffix is tolerated.
func ParseKey(s string) (*Key, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) == 66 && strings.HasSuffix(s, "01") {
		s = s[:64]
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("ledger: invalid key hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("ledger: key must be 32 bytes, got %d", len(raw))
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return &Key{priv: priv}, nil
}

// Hash160 returns ripemd160(sha256(compressed pubkey)), the signer
// field of a spending condition.
func (k *Key) Hash160() [hash160Len]byte {
	var out [hash160Len]byte
	sha := sha256.Sum256(k.priv.PubKey().SerializeCompressed())
	h := ripemd160.New()
	h.Write(sha[:])
	copy(out[:], h.Sum(nil))
	return out
}

// Address renders the key's principal address for a network.
func (k *Key) Address(network string) string {
	return EncodeAddress(AddressVersion(network), k.Hash160())
}

// Sign fills the transaction's spending condition with the key's signer
// hash and a recoverable signature over the presign digest, then
// refreshes Raw.
func (k *Key) Sign(tx *Transaction) error {
	tx.Auth.HashMode = HashModeP2PKH
	tx.Auth.Signer = k.Hash160()
	tx.Auth.KeyEncoding = 0x00
	tx.Auth.Signature = [signatureLen]byte{}

	digest, err := sighash(tx)
	if err != nil {
		return err
	}
	sig := btcecdsa.SignCompact(k.priv, digest[:], true)
	copy(tx.Auth.Signature[:], sig)

	raw, err := Codec{}.Serialize(tx)
	if err != nil {
		return err
	}
	tx.Raw = raw
	return nil
}

// VerifySignature checks that the transaction's signature recovers to a
// key whose hash160 matches the spending condition's signer.
func VerifySignature(tx *Transaction) error {
	cleared := *tx
	cleared.Auth.Signature = [signatureLen]byte{}
	digest, err := sighash(&cleared)
	if err != nil {
		return err
	}
	pub, _, err := btcecdsa.RecoverCompact(tx.Auth.Signature[:], digest[:])
	if err != nil {
		return fmt.Errorf("ledger: signature recovery failed: %w", err)
	}

	sha := sha256.Sum256(pub.SerializeCompressed())
	h := ripemd160.New()
	h.Write(sha[:])
	if !bytes.Equal(h.Sum(nil), tx.Auth.Signer[:]) {
		return fmt.Errorf("ledger: signature does not match signer")
	}
	return nil
}

// TxID is the hex digest identifying a serialized transaction.
func TxID(raw []byte) string {
	sum := sha512.Sum512_256(raw)
	return hex.EncodeToString(sum[:])
}

// sighash is the presign digest: the transaction serialized with a
// zeroed signature field.
func sighash(tx *Transaction) ([32]byte, error) {
	cleared := *tx
	cleared.Auth.Signature = [signatureLen]byte{}
	raw, err := Codec{}.Serialize(&cleared)
	if err != nil {
		return [32]byte{}, err
	}
	return sha512.Sum512_256(raw), nil
}
