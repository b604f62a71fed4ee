package ledger

import "context"

// Network names accepted in configuration.
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
)

// Transaction wire constants.
const (
	TxVersionMainnet = 0x00
	TxVersionTestnet = 0x80

	ChainIDMainnet = 0x00000001
	ChainIDTestnet = 0x80000000

	AuthStandard = 0x04

	HashModeP2PKH = 0x00

	AnchorModeAny = 0x03

	PostConditionModeAllow = 0x01

	PrincipalStandard = 0x05

	// PayloadTokenTransfer is the plain asset-transfer payload kind.
	// Everything else (contract calls, coinbase, etc.) is rejected as
	// payment.
	PayloadTokenTransfer = 0x00

	MemoLength = 34

	signatureLen = 65
	hash160Len   = 20
)

// SpendingCondition is the single-signature authorization of a
// transaction.
type SpendingCondition struct {
	HashMode    byte
	Signer      [hash160Len]byte
	Nonce       uint64
	Fee         uint64
	KeyEncoding byte
	Signature   [signatureLen]byte
}

// Transaction is the decoded form of a signed transaction. For payload
// kinds other than PayloadTokenTransfer only the envelope fields are
// populated.
type Transaction struct {
	Version     byte
	ChainID     uint32
	Auth        SpendingCondition
	AnchorMode  byte
	PayloadType byte

	// Token transfer payload fields.
	Recipient string
	Amount    uint64
	Memo      string

	// Raw holds the exact serialized bytes, preserved so a broadcast
	// submits what the payer signed.
	Raw []byte
}

// Client is the collaborator surface the settlement core consumes.
type Client interface {
	// Deserialize decodes opaque signed transaction bytes.
	Deserialize(raw []byte) (*Transaction, error)

	// Broadcast submits a signed transaction to the node's ingestion
	// endpoint and returns the txid on acceptance. Acceptance here is
	// the service's payment oracle; there is no retry.
	Broadcast(ctx context.Context, tx *Transaction) (string, error)

	// BuildTransfer constructs and signs a token transfer from the
	// key's account.
	BuildTransfer(recipient string, amount uint64, key *Key, nonce uint64, memo string) (*Transaction, error)

	// AccountNonce fetches the next sequence number for an address.
	AccountNonce(ctx context.Context, address string) (uint64, error)
}
