package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/georgemunganga/pharma-gateway/internal/modules/cart"
	"github.com/georgemunganga/pharma-gateway/internal/modules/catalog"
	"github.com/georgemunganga/pharma-gateway/internal/modules/wallet"
	"github.com/georgemunganga/pharma-gateway/internal/pharmaapi"
)

// transferGas is the fixed gas limit of a plain ETH transfer.
const transferGas = 21000

// DefaultMineTimeout bounds how long a broadcast transfer is watched.
const DefaultMineTimeout = 10 * time.Minute

// Service defines checkout business logic.
type Service interface {
	// Quote prices the session's cart in ETH without sending anything.
	Quote(ctx context.Context, sessionID string) (*Quote, error)
	// Checkout pays for the session's cart from the connected wallet. Once
	// the transfer is broadcast it is watched independently of ctx; if ctx
	// ends first the submitted record is returned with ErrPending. On
	// ErrTransaction the cart is left as it was.
	Checkout(ctx context.Context, sessionID string) (*Record, error)
	GetByID(ctx context.Context, id string) (*Record, error)
}

// Carts is the slice of the cart service checkout uses.
type Carts interface {
	Get(ctx context.Context, sessionID string) (*cart.Cart, error)
	RemovePaid(ctx context.Context, sessionID string, paid map[int64]int) (*cart.Cart, error)
}

// Wallet supplies the paying account.
type Wallet interface {
	Signer() (wallet.Signer, error)
	State() wallet.State
}

// Recorder stores a mined purchase with the backend.
type Recorder interface {
	RecordPurchase(ctx context.Context, p pharmaapi.Purchase) (*pharmaapi.PurchaseReceipt, error)
}

type service struct {
	repo        Repository
	carts       Carts
	wallet      Wallet
	rates       Rates
	recorder    Recorder
	receiver    common.Address
	mineTimeout time.Duration

	mu       sync.Mutex
	inFlight map[string]bool
}

// Option configures the checkout service.
type Option func(*service)

// WithMineTimeout sets how long a broadcast transfer is watched before the
// record is left submitted. Non-positive values keep the default.
func WithMineTimeout(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.mineTimeout = d
		}
	}
}

func NewService(repo Repository, carts Carts, w Wallet, rates Rates, recorder Recorder, receiver common.Address, opts ...Option) Service {
	s := &service{
		repo:        repo,
		carts:       carts,
		wallet:      w,
		rates:       rates,
		recorder:    recorder,
		receiver:    receiver,
		mineTimeout: DefaultMineTimeout,
		inFlight:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Quote(ctx context.Context, sessionID string) (*Quote, error) {
	c, err := s.nonEmptyCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	q := ConvertUSDToETH(ctx, s.rates, c.Total())
	q.Receiver = s.receiver.Hex()
	return &q, nil
}

func (s *service) Checkout(ctx context.Context, sessionID string) (*Record, error) {
	if !s.begin(sessionID) {
		return nil, ErrInProgress
	}
	settling := false
	defer func() {
		if !settling {
			s.end(sessionID)
		}
	}()

	c, err := s.nonEmptyCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	signer, err := s.wallet.Signer()
	if err != nil {
		return nil, err
	}

	// Ledger writes outlive the request.
	bg := context.WithoutCancel(ctx)

	q := ConvertUSDToETH(ctx, s.rates, c.Total())
	now := time.Now().UTC()
	rec := &Record{
		ID:         uuid.New(),
		SessionID:  sessionID,
		Customer:   signer.Address().Hex(),
		Items:      linesFrom(c),
		TotalUSD:   q.TotalUSD,
		AmountETH:  q.AmountETH,
		USDPerETH:  q.USDPerETH,
		RateSource: q.RateSource,
		Receiver:   s.receiver.Hex(),
		ChainID:    s.wallet.State().ChainID,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	// Persisted as pending before the transfer is sent.
	if err := s.repo.Create(bg, rec); err != nil {
		return nil, fmt.Errorf("create checkout: %w", err)
	}

	hash, err := signer.SendTransaction(ctx, wallet.TxRequest{
		To:       s.receiver,
		Value:    catalog.EtherToWei(q.AmountETH),
		GasLimit: transferGas,
	})
	if err != nil {
		return s.failed(bg, rec, err)
	}
	rec.TxHash = hash.Hex()
	if err := rec.transition(StatusSubmitted); err != nil {
		return nil, err
	}
	s.save(bg, rec)
	submitted := clone(rec)

	settling = true
	done := make(chan settled, 1)
	go func() {
		defer s.end(sessionID)
		out, err := s.settle(bg, signer, rec, hash)
		done <- settled{rec: out, err: err}
	}()

	select {
	case res := <-done:
		return res.rec, res.err
	case <-ctx.Done():
		log.Printf("checkout: %s left waiting on %s, finishing in background", sessionID, rec.TxHash)
		return &submitted, ErrPending
	}
}

type settled struct {
	rec *Record
	err error
}

// settle waits for the transfer to be mined and finishes the record. A wait
// that times out leaves the record submitted.
func (s *service) settle(ctx context.Context, signer wallet.Signer, rec *Record, hash common.Hash) (*Record, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.mineTimeout)
	defer cancel()

	receipt, err := signer.WaitMined(waitCtx, hash)
	if err != nil {
		if waitCtx.Err() != nil {
			log.Printf("checkout: %s not mined after %s, left submitted", rec.TxHash, s.mineTimeout)
			out := clone(rec)
			return &out, ErrPending
		}
		return s.failed(ctx, rec, err)
	}
	if receipt.BlockNumber != nil {
		n := receipt.BlockNumber.Uint64()
		rec.BlockNumber = &n
	}
	if err := rec.transition(StatusSuccess); err != nil {
		return nil, err
	}

	rec.Recorded = s.record(ctx, rec)
	if _, err := s.carts.RemovePaid(ctx, rec.SessionID, paidQuantities(rec.Items)); err != nil {
		log.Printf("checkout: could not remove paid items from cart %s after payment %s: %v", rec.SessionID, rec.TxHash, err)
	}
	s.save(ctx, rec)
	return rec, nil
}

func (s *service) begin(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[sessionID] {
		return false
	}
	s.inFlight[sessionID] = true
	return true
}

func (s *service) end(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, sessionID)
}

func (s *service) GetByID(ctx context.Context, id string) (*Record, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.repo.GetByID(ctx, uid)
}

func (s *service) nonEmptyCart(ctx context.Context, sessionID string) (*cart.Cart, error) {
	c, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, cart.ErrEmptyCart
	}
	return c, nil
}

// record posts the purchase to the backend. Failure is logged only; the
// payment already happened.
func (s *service) record(ctx context.Context, rec *Record) bool {
	if s.recorder == nil {
		return false
	}
	medicine := make([]pharmaapi.Medicine, 0, len(rec.Items))
	for _, l := range rec.Items {
		medicine = append(medicine, pharmaapi.Medicine{
			ID: l.DrugID, Name: l.Name, Qty: l.Quantity, PriceUSD: l.PriceUSD.InexactFloat64(),
		})
	}
	_, err := s.recorder.RecordPurchase(ctx, pharmaapi.Purchase{
		Customer:    rec.Customer,
		Medicine:    medicine,
		PriceETH:    json.Number(rec.AmountETH.String()),
		TxHash:      rec.TxHash,
		ChainID:     rec.ChainID,
		BlockNumber: rec.BlockNumber,
	})
	if err != nil {
		log.Printf("checkout: warning: purchase %s not recorded: %s", rec.TxHash, pharmaapi.Detail(err))
		return false
	}
	return true
}

func (s *service) failed(ctx context.Context, rec *Record, cause error) (*Record, error) {
	rec.LastError = cause.Error()
	if err := rec.transition(StatusError); err != nil {
		return nil, err
	}
	s.save(ctx, rec)
	return rec, fmt.Errorf("%w: %w", ErrTransaction, cause)
}

// save persists progress. Write failures are logged and do not abort the
// checkout.
func (s *service) save(ctx context.Context, rec *Record) {
	if err := s.repo.Update(ctx, rec); err != nil {
		log.Printf("checkout: could not update record %s: %v", rec.ID, err)
	}
}

func paidQuantities(lines []Line) map[int64]int {
	paid := make(map[int64]int, len(lines))
	for _, l := range lines {
		paid[l.DrugID] += l.Quantity
	}
	return paid
}

func linesFrom(c *cart.Cart) []Line {
	lines := make([]Line, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, Line{DrugID: it.DrugID, Name: it.Name, Quantity: it.Quantity, PriceUSD: it.UnitPrice})
	}
	return lines
}
