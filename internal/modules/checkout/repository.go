package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines data access for checkout records.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	Update(ctx context.Context, rec *Record) error
}

// Schema creates the checkouts table.
const Schema = `
CREATE TABLE IF NOT EXISTS checkouts (
	id            UUID PRIMARY KEY,
	session_id    TEXT NOT NULL,
	customer      TEXT,
	items         JSONB NOT NULL,
	total_usd     NUMERIC(20,8) NOT NULL,
	amount_eth    NUMERIC(30,18) NOT NULL,
	usd_per_eth   NUMERIC(30,8) NOT NULL,
	rate_source   TEXT NOT NULL,
	receiver      TEXT NOT NULL,
	tx_hash       TEXT,
	chain_id      TEXT,
	block_number  BIGINT,
	status        TEXT NOT NULL,
	recorded      BOOLEAN NOT NULL DEFAULT FALSE,
	last_error    TEXT,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
)`

type postgresRepo struct{ db *sql.DB }

func NewPostgresRepository(db *sql.DB) Repository { return &postgresRepo{db: db} }

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}

func (r *postgresRepo) Create(ctx context.Context, rec *Record) error {
	items, err := json.Marshal(rec.Items)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO checkouts
		  (id, session_id, customer, items, total_usd, amount_eth, usd_per_eth,
		   rate_source, receiver, status, recorded, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		rec.ID, rec.SessionID, nilIfEmpty(rec.Customer), items,
		rec.TotalUSD, rec.AmountETH, rec.USDPerETH,
		rec.RateSource, rec.Receiver, rec.Status, rec.Recorded,
		rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (r *postgresRepo) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := r.scan(r.db.QueryRowContext(ctx, selectSQL+" WHERE id=$1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (r *postgresRepo) Update(ctx context.Context, rec *Record) error {
	var block interface{}
	if rec.BlockNumber != nil {
		block = int64(*rec.BlockNumber)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE checkouts
		SET customer=$1, tx_hash=$2, chain_id=$3, block_number=$4, status=$5,
		    recorded=$6, last_error=$7, updated_at=$8
		WHERE id=$9`,
		nilIfEmpty(rec.Customer), nilIfEmpty(rec.TxHash), nilIfEmpty(rec.ChainID), block,
		rec.Status, rec.Recorded, nilIfEmpty(rec.LastError), time.Now().UTC(), rec.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectSQL = `
	SELECT id, session_id, customer, items, total_usd, amount_eth, usd_per_eth,
	       rate_source, receiver, tx_hash, chain_id, block_number, status,
	       recorded, last_error, created_at, updated_at
	FROM checkouts`

type rowScanner interface{ Scan(dest ...interface{}) error }

func (r *postgresRepo) scan(row rowScanner) (*Record, error) {
	rec := &Record{}
	var customer, txHash, chainID, lastErr sql.NullString
	var block sql.NullInt64
	var items []byte

	err := row.Scan(
		&rec.ID, &rec.SessionID, &customer, &items,
		&rec.TotalUSD, &rec.AmountETH, &rec.USDPerETH,
		&rec.RateSource, &rec.Receiver, &txHash, &chainID, &block,
		&rec.Status, &rec.Recorded, &lastErr, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Customer = customer.String
	rec.TxHash = txHash.String
	rec.ChainID = chainID.String
	rec.LastError = lastErr.String
	if block.Valid {
		n := uint64(block.Int64)
		rec.BlockNumber = &n
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &rec.Items); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

type memoryRepo struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Record
}

// NewMemoryRepository keeps records in process, for runs without a database.
func NewMemoryRepository() Repository {
	return &memoryRepo{records: make(map[uuid.UUID]Record)}
}

func (r *memoryRepo) Create(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = clone(rec)
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := clone(&rec)
	return &out, nil
}

func (r *memoryRepo) Update(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; !ok {
		return ErrNotFound
	}
	r.records[rec.ID] = clone(rec)
	return nil
}

func clone(rec *Record) Record {
	out := *rec
	out.Items = append([]Line(nil), rec.Items...)
	if rec.BlockNumber != nil {
		n := *rec.BlockNumber
		out.BlockNumber = &n
	}
	return out
}
