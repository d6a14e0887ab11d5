package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Verification failure reasons
const (
	ReasonOK               = "ok"
	ReasonInvalidTxHash    = "invalid_tx_hash"
	ReasonPending          = "transaction_pending"
	ReasonNotFound         = "receipt_not_found"
	ReasonReverted         = "transaction_reverted"
	ReasonWrongContract    = "wrong_contract"
	ReasonWrongIssuer      = "wrong_issuer"
	ReasonEventNotFound    = "event_not_found"
	ReasonHashMismatch     = "credential_hash_mismatch"
	ReasonContractCreation = "contract_creation"
)

// ReceiptFetcher is the subset of the JSON-RPC client the verifier needs
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// VerifyRequest asks whether a transaction recorded a credential
type VerifyRequest struct {
	TxHash string
	// ExpectedHash, when set, must appear in a CredentialIssued log
	ExpectedHash *common.Hash
}

// VerifyResult is the outcome of a verification. OK is false with a Reason
// for every check that did not pass; RPC failures are returned as errors.
type VerifyResult struct {
	OK             bool   `json:"ok"`
	Reason         string `json:"reason"`
	TxHash         string `json:"tx_hash"`
	BlockNumber    uint64 `json:"block_number,omitempty"`
	From           string `json:"from,omitempty"`
	To             string `json:"to,omitempty"`
	CredentialHash string `json:"credential_hash,omitempty"`
	CredentialID   string `json:"credential_id,omitempty"`
	Holder         string `json:"holder,omitempty"`
	MetadataURI    string `json:"metadata_uri,omitempty"`
}

// IssuedEvent is a decoded CredentialIssued log
type IssuedEvent struct {
	CredentialHash common.Hash
	Holder         common.Address
	CredentialID   *big.Int
	MetadataURI    string
}

// Verifier checks credential transactions against the registry contract
type Verifier struct {
	fetcher  ReceiptFetcher
	contract common.Address
	issuer   *common.Address
}

// NewVerifier creates a verifier. issuer may be nil to accept any sender.
func NewVerifier(fetcher ReceiptFetcher, contract common.Address, issuer *common.Address) *Verifier {
	return &Verifier{fetcher: fetcher, contract: contract, issuer: issuer}
}

// ParseTxHash validates a 0x-prefixed 32 byte hash
func ParseTxHash(raw string) (common.Hash, bool) {
	raw = strings.TrimSpace(raw)
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

// Verify runs every check on the transaction: receipt exists, execution
// succeeded, it targeted the registry, it came from the issuer and, when an
// expected hash is given, emitted a matching CredentialIssued event.
func (v *Verifier) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	result := &VerifyResult{TxHash: req.TxHash}

	txHash, ok := ParseTxHash(req.TxHash)
	if !ok {
		result.Reason = ReasonInvalidTxHash
		return result, nil
	}
	result.TxHash = txHash.Hex()

	tx, pending, err := v.fetcher.TransactionByHash(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			result.Reason = ReasonNotFound
			return result, nil
		}
		return nil, fmt.Errorf("failed to fetch transaction: %w", err)
	}
	if pending {
		result.Reason = ReasonPending
		return result, nil
	}

	receipt, err := v.fetcher.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			result.Reason = ReasonNotFound
			return result, nil
		}
		return nil, fmt.Errorf("failed to fetch receipt: %w", err)
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}

	from, err := v.sender(ctx, tx)
	if err != nil {
		return nil, err
	}
	result.From = from.Hex()

	if tx.To() == nil {
		result.Reason = ReasonContractCreation
		return result, nil
	}
	result.To = tx.To().Hex()

	if receipt.Status != types.ReceiptStatusSuccessful {
		result.Reason = ReasonReverted
		return result, nil
	}
	if *tx.To() != v.contract {
		result.Reason = ReasonWrongContract
		return result, nil
	}
	if v.issuer != nil && from != *v.issuer {
		result.Reason = ReasonWrongIssuer
		return result, nil
	}

	events := v.issuedEvents(receipt)
	if req.ExpectedHash != nil {
		var match *IssuedEvent
		for i := range events {
			if events[i].CredentialHash == *req.ExpectedHash {
				match = &events[i]
				break
			}
		}
		if match == nil {
			if len(events) == 0 {
				result.Reason = ReasonEventNotFound
			} else {
				result.Reason = ReasonHashMismatch
				result.CredentialHash = events[0].CredentialHash.Hex()
			}
			return result, nil
		}
		events = []IssuedEvent{*match}
	}

	if len(events) > 0 {
		e := events[0]
		result.CredentialHash = e.CredentialHash.Hex()
		result.Holder = e.Holder.Hex()
		result.MetadataURI = e.MetadataURI
		if e.CredentialID != nil {
			result.CredentialID = e.CredentialID.String()
		}
	}

	result.OK = true
	result.Reason = ReasonOK
	return result, nil
}

// ConfirmResult reports whether a submitted transaction has been mined
type ConfirmResult struct {
	Mined       bool
	Success     bool
	BlockNumber uint64
}

// Confirm looks up the receipt of a submitted transaction. A missing receipt
// means the transaction is still pending.
func (v *Verifier) Confirm(ctx context.Context, txHash common.Hash) (ConfirmResult, error) {
	receipt, err := v.fetcher.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return ConfirmResult{}, nil
		}
		return ConfirmResult{}, fmt.Errorf("failed to fetch receipt: %w", err)
	}

	res := ConfirmResult{Mined: true, Success: receipt.Status == types.ReceiptStatusSuccessful}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return res, nil
}

func (v *Verifier) sender(ctx context.Context, tx *types.Transaction) (common.Address, error) {
	chainID := tx.ChainId()
	if chainID == nil || chainID.Sign() == 0 {
		id, err := v.fetcher.ChainID(ctx)
		if err != nil {
			return common.Address{}, fmt.Errorf("failed to fetch chain id: %w", err)
		}
		chainID = id
	}
	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover sender: %w", err)
	}
	return from, nil
}

// issuedEvents decodes every CredentialIssued log emitted by the registry
func (v *Verifier) issuedEvents(receipt *types.Receipt) []IssuedEvent {
	event := registryABI.Events[eventIssued]

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}

	var out []IssuedEvent
	for _, l := range receipt.Logs {
		if l == nil || l.Address != v.contract || len(l.Topics) == 0 || l.Topics[0] != event.ID {
			continue
		}

		fields := make(map[string]interface{})
		if err := abi.ParseTopicsIntoMap(fields, indexed, l.Topics[1:]); err != nil {
			continue
		}
		if err := registryABI.UnpackIntoMap(fields, eventIssued, l.Data); err != nil {
			continue
		}

		var e IssuedEvent
		if h, ok := fields["credentialHash"].([32]byte); ok {
			e.CredentialHash = common.Hash(h)
		}
		if a, ok := fields["holder"].(common.Address); ok {
			e.Holder = a
		}
		if id, ok := fields["credentialId"].(*big.Int); ok {
			e.CredentialID = id
		}
		if uri, ok := fields["metadataURI"].(string); ok {
			e.MetadataURI = uri
		}
		out = append(out, e)
	}
	return out
}

// EncodeIssuedLog builds a CredentialIssued log as the registry would emit
// it. Used by tooling and tests that need receipts without a node.
func EncodeIssuedLog(contract common.Address, hash common.Hash, holder common.Address, id *big.Int, uri string) (*types.Log, error) {
	event := registryABI.Events[eventIssued]

	var nonIndexed abi.Arguments
	for _, input := range event.Inputs {
		if !input.Indexed {
			nonIndexed = append(nonIndexed, input)
		}
	}
	data, err := nonIndexed.Pack(id, uri)
	if err != nil {
		return nil, err
	}

	return &types.Log{
		Address: contract,
		Topics: []common.Hash{
			event.ID,
			hash,
			common.BytesToHash(common.LeftPadBytes(holder.Bytes(), 32)),
		},
		Data: data,
	}, nil
}

// SameAddress compares two hex addresses case-insensitively
func SameAddress(a, b string) bool {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return bytes.Equal(common.HexToAddress(a).Bytes(), common.HexToAddress(b).Bytes())
}
