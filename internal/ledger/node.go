package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultFee is the flat fee attached to refill transfers, in
// reference-asset minor units.
const DefaultFee = 3000

// NodeClient talks to a chain node's HTTP API. Broadcast acceptance by
// the ingestion endpoint is all the service ever checks; confirmation
// state is out of scope.
type NodeClient struct {
	BaseURL string
	Client  *http.Client
}

// NewNodeClient builds a client for the node at baseURL.
func NewNodeClient(baseURL string, timeout time.Duration) *NodeClient {
	return &NodeClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

type rejection struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// Broadcast submits raw transaction bytes to the ingestion endpoint and
// returns the txid the node reports. A non-2xx response is returned as
// an error carrying the node's rejection reason. No retries.
func (n *NodeClient) Broadcast(ctx context.Context, raw []byte) (string, error) {
	url := n.BaseURL + "/v2/transactions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("ledger: build broadcast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := n.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger: broadcast: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("ledger: read broadcast response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var rej rejection
		if json.Unmarshal(body, &rej) == nil && rej.Error != "" {
			if rej.Reason != "" {
				return "", fmt.Errorf("ledger: node rejected transaction: %s (%s)", rej.Error, rej.Reason)
			}
			return "", fmt.Errorf("ledger: node rejected transaction: %s", rej.Error)
		}
		return "", fmt.Errorf("ledger: node rejected transaction: status %d", resp.StatusCode)
	}

	// The node answers with the txid as a JSON string.
	var txid string
	if err := json.Unmarshal(body, &txid); err != nil {
		txid = strings.Trim(strings.TrimSpace(string(body)), `"`)
	}
	if txid == "" {
		return "", fmt.Errorf("ledger: node returned empty txid")
	}
	return strings.TrimPrefix(txid, "0x"), nil
}

type accountInfo struct {
	Nonce uint64 `json:"nonce"`
}

// AccountNonce fetches the next sequence number for an address.
func (n *NodeClient) AccountNonce(ctx context.Context, address string) (uint64, error) {
	url := fmt.Sprintf("%s/v2/accounts/%s?proof=0", n.BaseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("ledger: build account request: %w", err)
	}

	resp, err := n.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ledger: account lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ledger: account lookup for %s: status %d", address, resp.StatusCode)
	}
	var info accountInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return 0, fmt.Errorf("ledger: decode account response: %w", err)
	}
	return info.Nonce, nil
}

// Service combines the codec, signer, and node client into the Client
// surface the settlement core consumes.
type Service struct {
	codec   Codec
	node    *NodeClient
	network string
}

// NewService builds a ledger client for the given node and network.
func NewService(node *NodeClient, network string) *Service {
	return &Service{node: node, network: network}
}

// Network reports which network this client targets.
func (s *Service) Network() string { return s.network }

// Deserialize decodes opaque signed transaction bytes.
func (s *Service) Deserialize(raw []byte) (*Transaction, error) {
	return s.codec.Deserialize(raw)
}

// Broadcast submits a transaction's raw bytes to the node.
func (s *Service) Broadcast(ctx context.Context, tx *Transaction) (string, error) {
	return s.node.Broadcast(ctx, tx.Raw)
}

// BuildTransfer constructs and signs a token transfer for this network.
func (s *Service) BuildTransfer(recipient string, amount uint64, key *Key, nonce uint64, memo string) (*Transaction, error) {
	if !ValidAddress(recipient) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, recipient)
	}
	tx := &Transaction{
		Version:     TxVersionTestnet,
		ChainID:     ChainIDTestnet,
		AnchorMode:  AnchorModeAny,
		PayloadType: PayloadTokenTransfer,
		Recipient:   recipient,
		Amount:      amount,
		Memo:        memo,
	}
	if s.network == NetworkMainnet {
		tx.Version = TxVersionMainnet
		tx.ChainID = ChainIDMainnet
	}
	tx.Auth.Nonce = nonce
	tx.Auth.Fee = DefaultFee

	if err := key.Sign(tx); err != nil {
		return nil, fmt.Errorf("ledger: sign transfer: %w", err)
	}
	return tx, nil
}

// AccountNonce fetches the next sequence number for an address.
func (s *Service) AccountNonce(ctx context.Context, address string) (uint64, error) {
	return s.node.AccountNonce(ctx, address)
}

var _ Client = (*Service)(nil)
