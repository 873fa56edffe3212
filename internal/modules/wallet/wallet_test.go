package wallet

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"

	"github.com/georgemunganga/pharma-gateway/internal/modules/auth"
	"github.com/georgemunganga/pharma-gateway/internal/pharmaapi"
)

type fakeProvider struct {
	mu        sync.Mutex
	accounts  []common.Address
	chainID   *big.Int
	reqErr    error
	switchErr error
	events    chan Event
	receipts  map[common.Hash]*types.Receipt
	sent      []TxRequest
}

func newFakeProvider(accounts ...common.Address) *fakeProvider {
	return &fakeProvider{
		accounts: accounts,
		chainID:  big.NewInt(11155111),
		events:   make(chan Event, 4),
		receipts: map[common.Hash]*types.Receipt{},
	}
}

func (f *fakeProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if f.reqErr != nil {
		return nil, f.reqErr
	}
	return f.accounts, nil
}

func (f *fakeProvider) Accounts(ctx context.Context) ([]common.Address, error) { return f.accounts, nil }

func (f *fakeProvider) ChainID(ctx context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeProvider) SwitchChain(ctx context.Context, chainID *big.Int) error { return f.switchErr }

func (f *fakeProvider) SendTransaction(ctx context.Context, from common.Address, req TxRequest) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return common.BigToHash(big.NewInt(int64(len(f.sent)))), nil
}

func (f *fakeProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeProvider) Subscribe(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-f.events:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (f *fakeProvider) setReceipt(hash common.Hash, r *types.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[hash] = r
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

var alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
var bob = common.HexToAddress("0x2222222222222222222222222222222222222222")

func TestConnectWithoutProvider(t *testing.T) {
	a := NewAdapter(nil)
	state, err := a.Connect(context.Background())
	if !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
	if state.Connected || state.Error == "" {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestConnectUserRejected(t *testing.T) {
	p := newFakeProvider(alice)
	p.reqErr = &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}
	a := NewAdapter(p)
	_, err := a.Connect(context.Background())
	if !errors.Is(err, ErrUserRejected) {
		t.Fatalf("expected ErrUserRejected, got %v", err)
	}
	if a.State().Connected {
		t.Fatalf("adapter should not be connected")
	}
}

func TestConnectStoresAccountAndChain(t *testing.T) {
	a := NewAdapter(newFakeProvider(alice))
	defer a.Disconnect()
	state, err := a.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !state.Connected || state.Account != alice.Hex() || state.ChainID != "0xaa36a7" {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestAccountsChangedEvents(t *testing.T) {
	p := newFakeProvider(alice)
	a := NewAdapter(p)
	defer a.Disconnect()
	if _, err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	p.events <- Event{Kind: EventAccountsChanged, Accounts: []common.Address{bob}}
	waitFor(t, func() bool { return a.State().Account == bob.Hex() })

	p.events <- Event{Kind: EventAccountsChanged}
	waitFor(t, func() bool { return !a.State().Connected })
}

func TestChainChangedResetsState(t *testing.T) {
	p := newFakeProvider(alice)
	a := NewAdapter(p)
	if _, err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	p.events <- Event{Kind: EventChainChanged, ChainID: big.NewInt(1)}
	waitFor(t, func() bool {
		s := a.State()
		return !s.Connected && s.ChainID == "" && s.Account == ""
	})
	if _, err := a.Signer(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after reset, got %v", err)
	}
}

func TestDisconnectClearsState(t *testing.T) {
	a := NewAdapter(newFakeProvider(alice))
	if _, err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	a.Disconnect()
	if s := a.State(); s.Connected || s.Account != "" {
		t.Fatalf("unexpected state after disconnect %+v", s)
	}
}

func TestSwitchChainErrors(t *testing.T) {
	p := newFakeProvider(alice)
	a := NewAdapter(p)

	p.switchErr = &ProviderError{Code: CodeChainNotAdded, Message: "Unrecognized chain ID"}
	err := a.SwitchChain(context.Background(), SepoliaChainID)
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("expected not configured error, got %v", err)
	}

	p.switchErr = &ProviderError{Code: CodeUserRejected, Message: "no"}
	if err := a.SwitchChain(context.Background(), SepoliaChainID); !errors.Is(err, ErrUserRejected) {
		t.Fatalf("expected ErrUserRejected, got %v", err)
	}
}

func TestSignerWaitMined(t *testing.T) {
	p := newFakeProvider(alice)
	a := NewAdapter(p, WithReceiptPoll(5*time.Millisecond))
	defer a.Disconnect()
	if _, err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	signer, err := a.Signer()
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	hash, err := signer.SendTransaction(context.Background(), TxRequest{To: bob, Value: big.NewInt(1), GasLimit: 21000})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.setReceipt(hash, &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(42)})
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	receipt, err := signer.WaitMined(ctx, hash)
	if err != nil {
		t.Fatalf("wait mined: %v", err)
	}
	if receipt.BlockNumber.Int64() != 42 {
		t.Fatalf("unexpected block %v", receipt.BlockNumber)
	}
}

func TestNonPositivePollIntervalsFallBack(t *testing.T) {
	p := newFakeProvider(alice)
	a := NewAdapter(p, WithReceiptPoll(0), WithReceiptPoll(-time.Second))
	defer a.Disconnect()
	if a.receiptPoll != DefaultPollInterval {
		t.Fatalf("receipt poll %v", a.receiptPoll)
	}
	if _, err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	signer, _ := a.Signer()
	hash, _ := signer.SendTransaction(context.Background(), TxRequest{To: bob, Value: big.NewInt(1), GasLimit: 21000})
	p.setReceipt(hash, &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(7)})
	if _, err := signer.WaitMined(context.Background(), hash); err != nil {
		t.Fatalf("wait mined: %v", err)
	}

	kp, err := NewKeyProvider(&fakeBackend{chainID: big.NewInt(1)}, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if kp.pollInterval != DefaultPollInterval {
		t.Fatalf("key provider poll %v", kp.pollInterval)
	}
	ctx, cancel := context.WithCancel(context.Background())
	events, err := kp.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	for range events {
	}
}

func TestSignerWaitMinedReverted(t *testing.T) {
	p := newFakeProvider(alice)
	a := NewAdapter(p, WithReceiptPoll(5*time.Millisecond))
	defer a.Disconnect()
	if _, err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	signer, _ := a.Signer()
	hash, _ := signer.SendTransaction(context.Background(), TxRequest{To: bob})
	p.setReceipt(hash, &types.Receipt{Status: types.ReceiptStatusFailed})
	if _, err := signer.WaitMined(context.Background(), hash); !errors.Is(err, ErrReverted) {
		t.Fatalf("expected ErrReverted, got %v", err)
	}
}

type fakeBackend struct {
	mu      sync.Mutex
	chainID *big.Int
	sent    []*types.Transaction
}

func (b *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.chainID), nil
}

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 7, nil
}

func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

func (b *fakeBackend) setChain(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chainID = big.NewInt(id)
}

func TestKeyProviderSignsTransfers(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	backend := &fakeBackend{chainID: big.NewInt(11155111)}
	hexKey := common.Bytes2Hex(crypto.FromECDSA(key))
	p, err := NewKeyProvider(backend, "0x"+hexKey, time.Second)
	if err != nil {
		t.Fatalf("new key provider: %v", err)
	}

	accounts, err := p.RequestAccounts(context.Background())
	if err != nil || len(accounts) != 1 {
		t.Fatalf("accounts %v err %v", accounts, err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	if accounts[0] != from {
		t.Fatalf("account mismatch %s", accounts[0].Hex())
	}

	hash, err := p.SendTransaction(context.Background(), from, TxRequest{To: bob, Value: big.NewInt(5), GasLimit: 21000})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(backend.sent) != 1 {
		t.Fatalf("expected one broadcast tx, got %d", len(backend.sent))
	}
	tx := backend.sent[0]
	if tx.Hash() != hash || tx.Nonce() != 7 || tx.Gas() != 21000 || *tx.To() != bob {
		t.Fatalf("unexpected tx %+v", tx)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(11155111)), tx)
	if err != nil || sender != from {
		t.Fatalf("sender %s err %v", sender.Hex(), err)
	}
}

func TestKeyProviderWithoutKey(t *testing.T) {
	p, err := NewKeyProvider(&fakeBackend{chainID: big.NewInt(1)}, "", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.RequestAccounts(context.Background())
	if code, ok := errorCode(err); !ok || code != CodeUnauthorized {
		t.Fatalf("expected code 4100, got %v", err)
	}
	if _, err := NewKeyProvider(&fakeBackend{}, "zz", time.Second); err == nil {
		t.Fatalf("expected invalid key error")
	}
}

func TestKeyProviderSwitchChainMismatch(t *testing.T) {
	p, _ := NewKeyProvider(&fakeBackend{chainID: big.NewInt(1)}, "", time.Second)
	err := p.SwitchChain(context.Background(), SepoliaChainID)
	if code, ok := errorCode(err); !ok || code != CodeChainNotAdded {
		t.Fatalf("expected 4902, got %v", err)
	}
}

func TestKeyProviderEmitsChainChanged(t *testing.T) {
	backend := &fakeBackend{chainID: big.NewInt(11155111)}
	p, _ := NewKeyProvider(backend, "", 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	events, err := p.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	backend.setChain(1)

	select {
	case ev := <-events:
		if ev.Kind != EventChainChanged || ev.ChainID.Int64() != 1 {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no chainChanged event")
	}

	cancel()
	for range events {
	}
}

func setupHandler(t *testing.T, a *Adapter) (*chi.Mux, string) {
	t.Helper()
	sessions := auth.NewSessions(auth.NewVault("test"))
	sess, err := sessions.Create("tok-1", pharmaapi.User{ID: "1"})
	if err != nil {
		t.Fatal(err)
	}
	r := chi.NewRouter()
	NewHandler(a, auth.RequireSession(sessions)).RegisterRoutes(r)
	return r, sess.ID
}

func signedIn(method, path, body, sid string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(auth.SessionHeader, sid)
	return req
}

func TestHandlerConnectWithoutProvider(t *testing.T) {
	r, sid := setupHandler(t, NewAdapter(nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedIn(http.MethodPost, "/api/v1/wallet/connect", "", sid))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHandlerConnectAndState(t *testing.T) {
	a := NewAdapter(newFakeProvider(alice))
	defer a.Disconnect()
	r, sid := setupHandler(t, a)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedIn(http.MethodPost, "/api/v1/wallet/connect", "", sid))
	if w.Code != http.StatusOK {
		t.Fatalf("connect code %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/wallet/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), alice.Hex()) {
		t.Fatalf("state code %d body %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, signedIn(http.MethodPost, "/api/v1/wallet/switch-chain", `{"chain_id":"nope"}`, sid))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("switch-chain code %d", w.Code)
	}
}

func TestHandlerAnonymousCannotDriveWallet(t *testing.T) {
	a := NewAdapter(newFakeProvider(alice))
	defer a.Disconnect()
	r, _ := setupHandler(t, a)

	for _, path := range []string{"/api/v1/wallet/connect", "/api/v1/wallet/disconnect", "/api/v1/wallet/switch-chain"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"chain_id":"0xaa36a7"}`)))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, w.Code)
		}
	}
	if a.State().Connected {
		t.Fatalf("anonymous connect must not reach the provider")
	}
}
