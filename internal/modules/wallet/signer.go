package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrReverted is returned when a mined transaction has a failed status.
var ErrReverted = errors.New("transaction reverted")

// Signer sends transactions from the connected account.
type Signer interface {
	Address() common.Address
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
	// WaitMined blocks until the transaction has a receipt or ctx ends.
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

type providerSigner struct {
	provider     Provider
	from         common.Address
	pollInterval time.Duration
}

func (s *providerSigner) Address() common.Address { return s.from }

func (s *providerSigner) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	hash, err := s.provider.SendTransaction(ctx, s.from, req)
	if err != nil {
		if isUserRejection(err) {
			return common.Hash{}, fmt.Errorf("transaction rejected by user: %w", err)
		}
		return common.Hash{}, err
	}
	return hash, nil
}

func (s *providerSigner) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.provider.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
			}
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("read receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
