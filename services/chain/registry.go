package chain

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Registry is what the API and background jobs need from the chain
type Registry interface {
	Issue(ctx context.Context, holder common.Address, hash common.Hash, metadataURI string) (common.Hash, error)
	Revoke(ctx context.Context, hash common.Hash) (common.Hash, error)
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
	Confirm(ctx context.Context, txHash common.Hash) (ConfirmResult, error)
}

// Config holds the registry connection settings
type Config struct {
	RPCURL          string
	ChainID         int64
	ContractAddress string
	IssuerKey       string
	IssuerAddress   string
}

// Client combines the verifier and, when a key is configured, the issuer
type Client struct {
	*Verifier
	issuer *Issuer
	rpc    *ethclient.Client
}

// Dial connects to the JSON-RPC endpoint and binds the registry contract
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("chain RPC URL is not configured")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid registry contract address %q", cfg.ContractAddress)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rpc, err := ethclient.DialContext(dialCtx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain RPC: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = rpc.ChainID(dialCtx)
		if err != nil {
			rpc.Close()
			return nil, fmt.Errorf("failed to fetch chain id: %w", err)
		}
	}

	contract := common.HexToAddress(cfg.ContractAddress)

	var issuerAddr *common.Address
	if common.IsHexAddress(cfg.IssuerAddress) {
		a := common.HexToAddress(cfg.IssuerAddress)
		issuerAddr = &a
	}

	client := &Client{rpc: rpc}

	if cfg.IssuerKey != "" {
		issuer, err := NewIssuer(rpc, contract, cfg.IssuerKey, chainID)
		if err != nil {
			rpc.Close()
			return nil, err
		}
		client.issuer = issuer
		if issuerAddr == nil {
			a := issuer.Address()
			issuerAddr = &a
		}
		log.Printf("[CHAIN] issuing from %s on chain %s", issuer.Address().Hex(), chainID)
	} else {
		log.Println("[CHAIN] no issuer key configured, running in verify-only mode")
	}

	client.Verifier = NewVerifier(rpc, contract, issuerAddr)
	return client, nil
}

// Issue submits an issuance transaction
func (c *Client) Issue(ctx context.Context, holder common.Address, hash common.Hash, metadataURI string) (common.Hash, error) {
	if c.issuer == nil {
		return common.Hash{}, ErrIssuerNotConfigured
	}
	return c.issuer.Issue(ctx, holder, hash, metadataURI)
}

// Revoke submits a revocation transaction
func (c *Client) Revoke(ctx context.Context, hash common.Hash) (common.Hash, error) {
	if c.issuer == nil {
		return common.Hash{}, ErrIssuerNotConfigured
	}
	return c.issuer.Revoke(ctx, hash)
}

// Close releases the RPC connection
func (c *Client) Close() {
	c.rpc.Close()
}
