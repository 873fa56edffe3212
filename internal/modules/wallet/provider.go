package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// Standard EIP-1193 / EIP-3326 provider error codes.
const (
	CodeUserRejected  = 4001
	CodeUnauthorized  = 4100
	CodeDisconnected  = 4900
	CodeChainNotAdded = 4902
)

var (
	ErrProviderNotFound = errors.New("no wallet provider found, install a wallet extension")
	ErrUserRejected     = errors.New("user rejected the connection request")
	ErrNotConnected     = errors.New("wallet not connected")
)

// Provider is the request/event surface of an injected wallet.
type Provider interface {
	// RequestAccounts asks the user for account access (eth_requestAccounts).
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Accounts returns already-authorised accounts without prompting (eth_accounts).
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainID *big.Int) error
	SendTransaction(ctx context.Context, from common.Address, req TxRequest) (common.Hash, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	// Subscribe streams accountsChanged/chainChanged until ctx is done.
	Subscribe(ctx context.Context) (<-chan Event, error)
}

type EventKind int

const (
	EventAccountsChanged EventKind = iota + 1
	EventChainChanged
)

type Event struct {
	Kind     EventKind
	Accounts []common.Address
	ChainID  *big.Int
}

// TxRequest is a native-currency transfer or contract call.
type TxRequest struct {
	To       common.Address
	Value    *big.Int
	GasLimit uint64
	Data     []byte
}

// ProviderError is a coded provider failure. It satisfies rpc.Error so
// errors coming from a real JSON-RPC endpoint are classified the same way.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string  { return fmt.Sprintf("provider error %d: %s", e.Code, e.Message) }
func (e *ProviderError) ErrorCode() int { return e.Code }

var _ rpc.Error = (*ProviderError)(nil)

// errorCode returns the JSON-RPC code carried by err, if any.
func errorCode(err error) (int, bool) {
	var coded rpc.Error
	if errors.As(err, &coded) {
		return coded.ErrorCode(), true
	}
	return 0, false
}

func isUserRejection(err error) bool {
	code, ok := errorCode(err)
	return ok && code == CodeUserRejected
}
