package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Backend is the subset of ethclient.Client the key provider needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// KeyProvider is a Provider backed by a JSON-RPC node and a locally held
// private key. Chain changes on the node are detected by polling.
type KeyProvider struct {
	backend      Backend
	key          *ecdsa.PrivateKey
	address      common.Address
	pollInterval time.Duration
}

// NewKeyProvider builds a provider. An empty hexKey yields a provider that
// can read the chain but never grants account access. A non-positive
// pollInterval means DefaultPollInterval.
func NewKeyProvider(backend Backend, hexKey string, pollInterval time.Duration) (*KeyProvider, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	p := &KeyProvider{backend: backend, pollInterval: pollInterval}
	if hexKey == "" {
		return p, nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse wallet private key: %w", err)
	}
	p.key = key
	p.address = crypto.PubkeyToAddress(key.PublicKey)
	return p, nil
}

func (p *KeyProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if p.key == nil {
		return nil, &ProviderError{Code: CodeUnauthorized, Message: "no account configured"}
	}
	return []common.Address{p.address}, nil
}

func (p *KeyProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	if p.key == nil {
		return nil, nil
	}
	return []common.Address{p.address}, nil
}

func (p *KeyProvider) ChainID(ctx context.Context) (*big.Int, error) {
	return p.backend.ChainID(ctx)
}

func (p *KeyProvider) SwitchChain(ctx context.Context, chainID *big.Int) error {
	current, err := p.backend.ChainID(ctx)
	if err != nil {
		return err
	}
	if current.Cmp(chainID) != 0 {
		return &ProviderError{Code: CodeChainNotAdded, Message: "Unrecognized chain ID"}
	}
	return nil
}

func (p *KeyProvider) SendTransaction(ctx context.Context, from common.Address, req TxRequest) (common.Hash, error) {
	if p.key == nil || from != p.address {
		return common.Hash{}, &ProviderError{Code: CodeUnauthorized, Message: "account not authorized"}
	}

	chainID, err := p.backend.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain id: %w", err)
	}
	nonce, err := p.backend.PendingNonceAt(ctx, p.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := p.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	to := req.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      req.GasLimit,
		To:       &to,
		Value:    value,
		Data:     req.Data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), p.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := p.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	return signed.Hash(), nil
}

func (p *KeyProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return p.backend.TransactionReceipt(ctx, hash)
}

func (p *KeyProvider) Subscribe(ctx context.Context) (<-chan Event, error) {
	last, err := p.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial chain id: %w", err)
	}

	events := make(chan Event, 1)
	go func() {
		defer close(events)
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			current, err := p.backend.ChainID(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("wallet: chain id poll failed: %v", err)
				}
				continue
			}
			if current.Cmp(last) == 0 {
				continue
			}
			last = current
			select {
			case events <- Event{Kind: EventChainChanged, ChainID: current}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
