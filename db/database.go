package db

import (
	"context"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/pkg/errors"

	"go-bridge-quorum/logger"
	"go-bridge-quorum/model"
)

// PgxIface is the subset of *pgxpool.Pool the store uses.
type PgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Close()
}

type Database struct {
	Pool PgxIface
}

func NewDatabase(pool PgxIface) *Database {
	return &Database{
		Pool: pool,
	}
}

/*
This method creates the tables if they do not exist yet
*/
func (db *Database) Migrate(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, Schema)
	if err != nil {
		logger.LogError(err)
		return err
	}
	return nil
}

func (db *Database) Begin(ctx context.Context) (Tx, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		logger.LogError(err)
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error {
	err := t.tx.Commit(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return ErrTxDone
	}
	return err
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return ErrTxDone
	}
	return err
}

func (t *pgTx) exec(ctx context.Context, sql string, args ...interface{}) error {
	_, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		logger.LogError(err)
		return err
	}
	return nil
}

func parseAmount(dst *uint256.Int, s string) error {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return errors.Wrapf(err, "numeric %q", s)
	}
	dst.Set(v)
	return nil
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{Status: pgtype.Null}
	}
	return pgtype.Timestamptz{Time: t, Status: pgtype.Present}
}

/*
This method loads the bridge configuration row and locks it for the rest of the transaction
*/
func (t *pgTx) BridgeState(ctx context.Context) (*model.BridgeState, error) {
	var (
		s                                        model.BridgeState
		admin, collector                         []byte
		threshold, feeBps, nonce                 int64
		maxPerTx, minPerTx, dailyCap, dailyTotal string
		accumulated                              string
	)
	err := t.tx.QueryRow(ctx,
		`SELECT admin, threshold, paused, max_per_tx::text, min_per_tx::text, daily_cap::text, daily_total::text,
			window_start, fee_bps, fee_collector, accumulated_fees::text, withdrawal_nonce
		FROM bridge_state WHERE id = 1 FOR UPDATE`,
	).Scan(&admin, &threshold, &s.Paused, &maxPerTx, &minPerTx, &dailyCap, &dailyTotal,
		&s.Limits.WindowStart, &feeBps, &collector, &accumulated, &nonce)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotInitialized
	}
	if err != nil {
		logger.LogError(err)
		return nil, err
	}
	s.Admin = common.BytesToAddress(admin)
	s.Threshold = uint64(threshold)
	s.Fees.FeeBps = uint64(feeBps)
	s.Fees.FeeCollector = common.BytesToAddress(collector)
	s.WithdrawalNonce = uint64(nonce)
	for _, f := range []struct {
		dst *uint256.Int
		src string
	}{
		{&s.Limits.MaxPerTx, maxPerTx},
		{&s.Limits.MinPerTx, minPerTx},
		{&s.Limits.DailyCap, dailyCap},
		{&s.Limits.DailyTotal, dailyTotal},
		{&s.Fees.AccumulatedFees, accumulated},
	} {
		if err := parseAmount(f.dst, f.src); err != nil {
			logger.LogError(err)
			return nil, err
		}
	}
	return &s, nil
}

func (t *pgTx) SaveBridgeState(ctx context.Context, s *model.BridgeState) error {
	return t.exec(ctx,
		`INSERT INTO bridge_state (id, admin, threshold, paused, max_per_tx, min_per_tx, daily_cap, daily_total,
			window_start, fee_bps, fee_collector, accumulated_fees, withdrawal_nonce)
		VALUES (1, $1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10, $11::numeric, $12)
		ON CONFLICT (id) DO UPDATE SET admin = EXCLUDED.admin, threshold = EXCLUDED.threshold,
			paused = EXCLUDED.paused, max_per_tx = EXCLUDED.max_per_tx, min_per_tx = EXCLUDED.min_per_tx,
			daily_cap = EXCLUDED.daily_cap, daily_total = EXCLUDED.daily_total,
			window_start = EXCLUDED.window_start, fee_bps = EXCLUDED.fee_bps,
			fee_collector = EXCLUDED.fee_collector, accumulated_fees = EXCLUDED.accumulated_fees,
			withdrawal_nonce = EXCLUDED.withdrawal_nonce`,
		s.Admin.Bytes(),
		int64(s.Threshold),
		s.Paused,
		s.Limits.MaxPerTx.Dec(),
		s.Limits.MinPerTx.Dec(),
		s.Limits.DailyCap.Dec(),
		s.Limits.DailyTotal.Dec(),
		s.Limits.WindowStart,
		int64(s.Fees.FeeBps),
		s.Fees.FeeCollector.Bytes(),
		s.Fees.AccumulatedFees.Dec(),
		int64(s.WithdrawalNonce),
	)
}

func (t *pgTx) IsValidator(ctx context.Context, addr common.Address) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM validators WHERE address = $1)", addr.Bytes()).Scan(&ok)
	if err != nil {
		logger.LogError(err)
		return false, err
	}
	return ok, nil
}

func (t *pgTx) SetValidator(ctx context.Context, addr common.Address, active bool) error {
	if active {
		return t.exec(ctx, "INSERT INTO validators (address) VALUES ($1) ON CONFLICT DO NOTHING", addr.Bytes())
	}
	return t.exec(ctx, "DELETE FROM validators WHERE address = $1", addr.Bytes())
}

func (t *pgTx) Validators(ctx context.Context) ([]common.Address, error) {
	return t.addresses(ctx, "SELECT address FROM validators ORDER BY address")
}

func (t *pgTx) addresses(ctx context.Context, sql string, args ...interface{}) ([]common.Address, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		logger.LogError(err)
		return nil, err
	}
	defer rows.Close()

	var out []common.Address
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			logger.LogError(err)
			return nil, err
		}
		out = append(out, common.BytesToAddress(b))
	}
	return out, rows.Err()
}

func (t *pgTx) Attestation(ctx context.Context, id model.EventID) (*model.AttestationRecord, error) {
	var (
		rec         = model.AttestationRecord{ID: id}
		recipient   []byte
		amount      string
		count       int64
		processedAt pgtype.Timestamptz
	)
	err := t.tx.QueryRow(ctx,
		`SELECT recipient, amount::text, confirmation_count, processed, processed_at
		FROM attestations WHERE event_id = $1`, id.Bytes(),
	).Scan(&recipient, &amount, &count, &rec.Processed, &processedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.LogError(err)
		return nil, err
	}
	rec.Recipient = common.BytesToAddress(recipient)
	rec.ConfirmationCount = uint64(count)
	if processedAt.Status == pgtype.Present {
		rec.ProcessedAt = processedAt.Time
	}
	if err := parseAmount(&rec.Amount, amount); err != nil {
		logger.LogError(err)
		return nil, err
	}
	rec.ConfirmedBy, err = t.Voters(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (t *pgTx) SaveAttestation(ctx context.Context, rec *model.AttestationRecord) error {
	return t.exec(ctx,
		`INSERT INTO attestations (event_id, recipient, amount, confirmation_count, processed, processed_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)
		ON CONFLICT (event_id) DO UPDATE SET confirmation_count = EXCLUDED.confirmation_count,
			processed = EXCLUDED.processed, processed_at = EXCLUDED.processed_at`,
		rec.ID.Bytes(),
		rec.Recipient.Bytes(),
		rec.Amount.Dec(),
		int64(rec.ConfirmationCount),
		rec.Processed,
		timestamptz(rec.ProcessedAt),
	)
}

func (t *pgTx) HasAttested(ctx context.Context, id model.EventID, validator common.Address) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM attestation_votes WHERE event_id = $1 AND validator = $2)",
		id.Bytes(), validator.Bytes(),
	).Scan(&ok)
	if err != nil {
		logger.LogError(err)
		return false, err
	}
	return ok, nil
}

func (t *pgTx) AddVote(ctx context.Context, id model.EventID, validator common.Address) error {
	return t.exec(ctx, "INSERT INTO attestation_votes (event_id, validator) VALUES ($1, $2)", id.Bytes(), validator.Bytes())
}

func (t *pgTx) Voters(ctx context.Context, id model.EventID) ([]common.Address, error) {
	return t.addresses(ctx, "SELECT validator FROM attestation_votes WHERE event_id = $1 ORDER BY validator", id.Bytes())
}

/*
This method loads the multisig wallet with its owners in slot order and locks the wallet row
*/
func (t *pgTx) Wallet(ctx context.Context) (*model.Wallet, error) {
	var (
		w                  model.Wallet
		address, initiator []byte
		required, nextID   int64
	)
	err := t.tx.QueryRow(ctx,
		"SELECT address, initiator, required, next_call_id FROM multisig_wallet WHERE id = 1 FOR UPDATE",
	).Scan(&address, &initiator, &required, &nextID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotInitialized
	}
	if err != nil {
		logger.LogError(err)
		return nil, err
	}
	owners, err := t.addresses(ctx, "SELECT address FROM multisig_owners ORDER BY slot")
	if err != nil {
		return nil, err
	}
	w.Address = common.BytesToAddress(address)
	w.Initiator = common.BytesToAddress(initiator)
	w.Required = uint64(required)
	w.NextCallID = uint64(nextID)
	w.Owners = model.NewOwnerSet(owners...)
	return &w, nil
}

func (t *pgTx) SaveWallet(ctx context.Context, w *model.Wallet) error {
	err := t.exec(ctx,
		`INSERT INTO multisig_wallet (id, address, initiator, required, next_call_id) VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET required = EXCLUDED.required, next_call_id = EXCLUDED.next_call_id`,
		w.Address.Bytes(), w.Initiator.Bytes(), int64(w.Required), int64(w.NextCallID),
	)
	if err != nil {
		return err
	}
	if err := t.exec(ctx, "DELETE FROM multisig_owners"); err != nil {
		return err
	}
	for slot, owner := range w.Owners.List() {
		if err := t.exec(ctx, "INSERT INTO multisig_owners (address, slot) VALUES ($1, $2)", owner.Bytes(), slot); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) Call(ctx context.Context, id uint64) (*model.PendingCall, error) {
	var (
		c           = model.PendingCall{ID: id}
		destination []byte
		value       string
	)
	err := t.tx.QueryRow(ctx,
		"SELECT destination, value::text, payload, executed FROM multisig_calls WHERE call_id = $1", int64(id),
	).Scan(&destination, &value, &c.Payload, &c.Executed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.LogError(err)
		return nil, err
	}
	c.Destination = common.BytesToAddress(destination)
	if err := parseAmount(&c.Value, value); err != nil {
		logger.LogError(err)
		return nil, err
	}
	c.ConfirmedBy, err = t.Confirmations(ctx, id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *pgTx) SaveCall(ctx context.Context, c *model.PendingCall) error {
	payload := c.Payload
	if payload == nil {
		payload = []byte{}
	}
	return t.exec(ctx,
		`INSERT INTO multisig_calls (call_id, destination, value, payload, executed) VALUES ($1, $2, $3::numeric, $4, $5)
		ON CONFLICT (call_id) DO UPDATE SET executed = EXCLUDED.executed`,
		int64(c.ID), c.Destination.Bytes(), c.Value.Dec(), payload, c.Executed,
	)
}

func (t *pgTx) IsConfirmed(ctx context.Context, id uint64, owner common.Address) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM multisig_confirmations WHERE call_id = $1 AND owner = $2)",
		int64(id), owner.Bytes(),
	).Scan(&ok)
	if err != nil {
		logger.LogError(err)
		return false, err
	}
	return ok, nil
}

func (t *pgTx) SetConfirmed(ctx context.Context, id uint64, owner common.Address, confirmed bool) error {
	if confirmed {
		return t.exec(ctx,
			"INSERT INTO multisig_confirmations (call_id, owner) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			int64(id), owner.Bytes())
	}
	return t.exec(ctx, "DELETE FROM multisig_confirmations WHERE call_id = $1 AND owner = $2", int64(id), owner.Bytes())
}

func (t *pgTx) Confirmations(ctx context.Context, id uint64) ([]common.Address, error) {
	return t.addresses(ctx, "SELECT owner FROM multisig_confirmations WHERE call_id = $1 ORDER BY owner", int64(id))
}

func (t *pgTx) AppendRecord(ctx context.Context, rec *model.Record) error {
	var seq int64
	err := t.tx.QueryRow(ctx,
		"INSERT INTO audit_records (source, kind, recorded_at, payload) VALUES ($1, $2, $3, $4::jsonb) RETURNING seq",
		rec.Source, rec.Kind, rec.Timestamp, string(rec.Payload),
	).Scan(&seq)
	if err != nil {
		logger.LogError(err)
		return err
	}
	rec.Seq = uint64(seq)
	return nil
}

/*
This method lists audit records after a sequence number, optionally filtered by source
*/
func (t *pgTx) Records(ctx context.Context, source string, after uint64, limit int) ([]model.Record, error) {
	if limit <= 0 {
		limit = 1000
	}
	// seq is a bigserial, nothing lies beyond MaxInt64
	if after > math.MaxInt64 {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx,
		`SELECT seq, source, kind, recorded_at, payload::text FROM audit_records
		WHERE seq > $1 AND ($2 = '' OR source = $2) ORDER BY seq LIMIT $3`,
		int64(after), source, limit,
	)
	if err != nil {
		logger.LogError(err)
		return nil, err
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var (
			rec     model.Record
			seq     int64
			payload string
		)
		if err := rows.Scan(&seq, &rec.Source, &rec.Kind, &rec.Timestamp, &payload); err != nil {
			logger.LogError(err)
			return nil, err
		}
		rec.Seq = uint64(seq)
		rec.Payload = []byte(payload)
		out = append(out, rec)
	}
	return out, rows.Err()
}
