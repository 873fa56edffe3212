package wallet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SepoliaChainID is the default network for the demo storefronts.
var SepoliaChainID = big.NewInt(11155111)

// State is a snapshot of the adapter for callers and JSON responses.
type State struct {
	Account   string `json:"account,omitempty"`
	ChainID   string `json:"chain_id,omitempty"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// Adapter wraps a Provider and keeps the connected account and chain in
// sync with provider events.
type Adapter struct {
	provider    Provider
	receiptPoll time.Duration

	mu        sync.RWMutex
	account   common.Address
	chainID   *big.Int
	connected bool
	lastErr   string
	watchGen  uint64
	stopWatch context.CancelFunc
}

type Option func(*Adapter)

// DefaultPollInterval is used when a non-positive poll interval is given.
const DefaultPollInterval = time.Second

// WithReceiptPoll sets how often signers poll for a mined receipt.
// Non-positive values keep DefaultPollInterval.
func WithReceiptPoll(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.receiptPoll = d
		}
	}
}

// NewAdapter creates an adapter. A nil provider means no wallet is installed.
func NewAdapter(provider Provider, opts ...Option) *Adapter {
	a := &Adapter{provider: provider, receiptPoll: DefaultPollInterval}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Connect(ctx context.Context) (State, error) {
	if a.provider == nil {
		a.setError(ErrProviderNotFound)
		return a.State(), ErrProviderNotFound
	}

	accounts, err := a.provider.RequestAccounts(ctx)
	if err != nil {
		if isUserRejection(err) {
			a.setError(ErrUserRejected)
			return a.State(), ErrUserRejected
		}
		a.setError(err)
		return a.State(), fmt.Errorf("request accounts: %w", err)
	}
	if len(accounts) == 0 {
		a.setError(ErrNotConnected)
		return a.State(), ErrNotConnected
	}

	chainID, err := a.provider.ChainID(ctx)
	if err != nil {
		a.setError(err)
		return a.State(), fmt.Errorf("read chain id: %w", err)
	}

	a.mu.Lock()
	a.account = accounts[0]
	a.chainID = chainID
	a.connected = true
	a.lastErr = ""
	a.mu.Unlock()

	a.startWatch()
	return a.State(), nil
}

// Disconnect clears local state. Providers have no reliable disconnect signal.
func (a *Adapter) Disconnect() {
	a.reset()
}

func (a *Adapter) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := State{Connected: a.connected, Error: a.lastErr}
	if a.connected {
		s.Account = a.account.Hex()
	}
	if a.chainID != nil {
		s.ChainID = hexutil.EncodeBig(a.chainID)
	}
	return s
}

// Signer returns a transaction signer for the connected account.
func (a *Adapter) Signer() (Signer, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected {
		return nil, ErrNotConnected
	}
	return &providerSigner{provider: a.provider, from: a.account, pollInterval: a.receiptPoll}, nil
}

// SwitchChain asks the wallet to move to chainID. A successful switch
// arrives as a chainChanged event, which resets the adapter.
func (a *Adapter) SwitchChain(ctx context.Context, chainID *big.Int) error {
	if a.provider == nil {
		return ErrProviderNotFound
	}
	if err := a.provider.SwitchChain(ctx, chainID); err != nil {
		if code, ok := errorCode(err); ok && code == CodeChainNotAdded {
			return fmt.Errorf("chain %s is not configured in the wallet: %w", hexutil.EncodeBig(chainID), err)
		}
		if isUserRejection(err) {
			return ErrUserRejected
		}
		return fmt.Errorf("switch chain: %w", err)
	}
	return nil
}

func (a *Adapter) startWatch() {
	ctx, cancel := context.WithCancel(context.Background())
	events, err := a.provider.Subscribe(ctx)
	if err != nil {
		cancel()
		log.Printf("wallet: event subscription unavailable: %v", err)
		return
	}

	a.mu.Lock()
	if a.stopWatch != nil {
		a.stopWatch()
	}
	a.watchGen++
	gen := a.watchGen
	a.stopWatch = cancel
	a.mu.Unlock()

	go func() {
		for ev := range events {
			a.handle(gen, ev)
		}
	}()
}

func (a *Adapter) handle(gen uint64, ev Event) {
	a.mu.Lock()
	if gen != a.watchGen {
		a.mu.Unlock()
		return
	}

	switch ev.Kind {
	case EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			a.mu.Unlock()
			a.reset()
			return
		}
		a.account = ev.Accounts[0]
		a.connected = true
		a.lastErr = ""
		a.mu.Unlock()
	case EventChainChanged:
		a.mu.Unlock()
		log.Printf("wallet: chain changed to %v, resetting state", ev.ChainID)
		a.reset()
	default:
		a.mu.Unlock()
	}
}

func (a *Adapter) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopWatch != nil {
		a.stopWatch()
		a.stopWatch = nil
	}
	a.watchGen++
	a.account = common.Address{}
	a.chainID = nil
	a.connected = false
	a.lastErr = ""
}

func (a *Adapter) setError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if errors.Is(err, ErrProviderNotFound) || errors.Is(err, ErrUserRejected) {
		a.lastErr = err.Error()
		return
	}
	a.lastErr = "failed to connect wallet"
}
