package ledger

import (
	"errors"
	"testing"
)

const testKeyHex = "edf9aee84d9b7abc145504dde6726c64f369d37ee34ded868fabd876c26570bc"

func testRecipient() string {
	var hash [addressHashLen]byte
	for i := range hash {
		hash[i] = byte(i + 1)
	}
	return EncodeAddress(AddressVersionTestnet, hash)
}

func signedTransfer(t *testing.T, amount uint64) *Transaction {
	t.Helper()
	key, err := ParseKey(testKeyHex)
	if err != nil {
		t.Fatalf("ParseKey failed: %v", err)
	}
	svc := NewService(nil, NetworkTestnet)
	tx, err := svc.BuildTransfer(testRecipient(), amount, key, 7, "test transfer")
	if err != nil {
		t.Fatalf("BuildTransfer failed: %v", err)
	}
	return tx
}

func TestSerializeDeserializeRoundtrip(t *testing.T) {
	tx := signedTransfer(t, 1_052_632)

	got, err := Codec{}.Deserialize(tx.Raw)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if got.PayloadType != PayloadTokenTransfer {
		t.Errorf("PayloadType = 0x%02x, want token transfer", got.PayloadType)
	}
	if got.Amount != 1_052_632 {
		t.Errorf("Amount = %d, want 1052632", got.Amount)
	}
	if got.Recipient != testRecipient() {
		t.Errorf("Recipient = %q, want %q", got.Recipient, testRecipient())
	}
	if got.Memo != "test transfer" {
		t.Errorf("Memo = %q", got.Memo)
	}
	if got.Auth.Nonce != 7 {
		t.Errorf("Nonce = %d, want 7", got.Auth.Nonce)
	}
	if got.Auth.Fee != DefaultFee {
		t.Errorf("Fee = %d, want %d", got.Auth.Fee, DefaultFee)
	}
	if got.Version != TxVersionTestnet || got.ChainID != ChainIDTestnet {
		t.Errorf("network fields: version 0x%02x chain 0x%08x", got.Version, got.ChainID)
	}
}

func TestSignatureRecovers(t *testing.T) {
	tx := signedTransfer(t, 500)

	parsed, err := Codec{}.Deserialize(tx.Raw)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if err := VerifySignature(parsed); err != nil {
		t.Errorf("VerifySignature failed: %v", err)
	}

	// Tampering with the amount must break recovery.
	parsed.Amount++
	if err := VerifySignature(parsed); err == nil {
		t.Error("VerifySignature accepted a tampered transaction")
	}
}

func TestDeserializeNonTransferPayload(t *testing.T) {
	tx := signedTransfer(t, 500)
	raw := append([]byte(nil), tx.Raw...)

	// Payload type tag sits after the fixed envelope.
	const payloadTypeOffset = 1 + 4 + 1 + (1 + 20 + 8 + 8 + 1 + 65) + 1 + 1 + 4
	raw[payloadTypeOffset] = 0x02 // contract call
	raw = raw[:payloadTypeOffset+1]

	got, err := Codec{}.Deserialize(raw)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if got.PayloadType != 0x02 {
		t.Errorf("PayloadType = 0x%02x, want 0x02", got.PayloadType)
	}
	if got.Amount != 0 || got.Recipient != "" {
		t.Error("non-transfer payload should leave transfer fields empty")
	}
}

func TestDeserializeMalformed(t *testing.T) {
	tx := signedTransfer(t, 500)

	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"truncated envelope", tx.Raw[:40]},
		{"truncated payload", tx.Raw[:len(tx.Raw)-10]},
		{"trailing bytes", append(append([]byte(nil), tx.Raw...), 0xAA)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := (Codec{}).Deserialize(tt.raw); !errors.Is(err, ErrMalformedTransaction) {
				t.Errorf("got %v, want ErrMalformedTransaction", err)
			}
		})
	}
}

func TestDeserializeUnsupportedAuth(t *testing.T) {
	tx := signedTransfer(t, 500)
	raw := append([]byte(nil), tx.Raw...)
	raw[5] = 0x05 // sponsored auth

	if _, err := (Codec{}).Deserialize(raw); !errors.Is(err, ErrUnsupportedAuth) {
		t.Errorf("got %v, want ErrUnsupportedAuth", err)
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", testKeyHex, false},
		{"0x prefix", "0x" + testKeyHex, false},
		{"compression suffix", testKeyHex + "01", false},
		{"short", testKeyHex[:10], true},
		{"not hex", "zz" + testKeyHex[2:], true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseKey(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseKey(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestTxIDDeterministic(t *testing.T) {
	tx := signedTransfer(t, 123)
	a, b := TxID(tx.Raw), TxID(tx.Raw)
	if a != b {
		t.Error("TxID not deterministic")
	}
	if len(a) != 64 {
		t.Errorf("TxID length = %d, want 64", len(a))
	}

	other := signedTransfer(t, 124)
	if TxID(other.Raw) == a {
		t.Error("distinct transactions share a txid")
	}
}
