package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrIssuerNotConfigured is returned when no signing key is available
var ErrIssuerNotConfigured = errors.New("credential issuer key is not configured")

// Issuer submits signed registry transactions
type Issuer struct {
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey
	chainID  *big.Int
	address  common.Address
}

// NewIssuer binds the registry at address with a hex encoded private key
func NewIssuer(backend bind.ContractBackend, address common.Address, keyHex string, chainID *big.Int) (*Issuer, error) {
	keyHex = strings.TrimPrefix(strings.TrimSpace(keyHex), "0x")
	if keyHex == "" {
		return nil, ErrIssuerNotConfigured
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer key: %w", err)
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("chain id is required to sign transactions")
	}

	return &Issuer{
		contract: bind.NewBoundContract(address, registryABI, backend, backend, backend),
		key:      key,
		chainID:  chainID,
		address:  crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address is the account transactions are sent from
func (i *Issuer) Address() common.Address {
	return i.address
}

func (i *Issuer) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(i.key, i.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Issue sends issueCredential(holder, hash, uri) and returns the transaction
// hash without waiting for it to be mined
func (i *Issuer) Issue(ctx context.Context, holder common.Address, hash common.Hash, metadataURI string) (common.Hash, error) {
	opts, err := i.transactOpts(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	tx, err := i.contract.Transact(opts, methodIssue, holder, [32]byte(hash), metadataURI)
	if err != nil {
		return common.Hash{}, fmt.Errorf("issueCredential failed: %w", err)
	}
	return tx.Hash(), nil
}

// Revoke sends revokeCredential(hash)
func (i *Issuer) Revoke(ctx context.Context, hash common.Hash) (common.Hash, error) {
	opts, err := i.transactOpts(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	tx, err := i.contract.Transact(opts, methodRevoke, [32]byte(hash))
	if err != nil {
		return common.Hash{}, fmt.Errorf("revokeCredential failed: %w", err)
	}
	return tx.Hash(), nil
}
