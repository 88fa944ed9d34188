package db

// Schema creates every table the engines persist to. Amounts are NUMERIC(78,0)
// so any uint256 fits; addresses and event ids are raw bytes.
const Schema = `
CREATE TABLE IF NOT EXISTS bridge_state (
	id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	admin BYTEA NOT NULL,
	threshold BIGINT NOT NULL,
	paused BOOLEAN NOT NULL,
	max_per_tx NUMERIC(78,0) NOT NULL,
	min_per_tx NUMERIC(78,0) NOT NULL,
	daily_cap NUMERIC(78,0) NOT NULL,
	daily_total NUMERIC(78,0) NOT NULL,
	window_start TIMESTAMPTZ NOT NULL,
	fee_bps BIGINT NOT NULL,
	fee_collector BYTEA NOT NULL,
	accumulated_fees NUMERIC(78,0) NOT NULL,
	withdrawal_nonce BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS validators (
	address BYTEA PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS attestations (
	event_id BYTEA PRIMARY KEY,
	recipient BYTEA NOT NULL,
	amount NUMERIC(78,0) NOT NULL,
	confirmation_count BIGINT NOT NULL,
	processed BOOLEAN NOT NULL,
	processed_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS attestation_votes (
	event_id BYTEA NOT NULL,
	validator BYTEA NOT NULL,
	PRIMARY KEY (event_id, validator)
);
CREATE TABLE IF NOT EXISTS multisig_wallet (
	id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	address BYTEA NOT NULL,
	initiator BYTEA NOT NULL,
	required BIGINT NOT NULL,
	next_call_id BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS multisig_owners (
	address BYTEA PRIMARY KEY,
	slot INT NOT NULL
);
CREATE TABLE IF NOT EXISTS multisig_calls (
	call_id BIGINT PRIMARY KEY,
	destination BYTEA NOT NULL,
	value NUMERIC(78,0) NOT NULL,
	payload BYTEA NOT NULL,
	executed BOOLEAN NOT NULL
);
CREATE TABLE IF NOT EXISTS multisig_confirmations (
	call_id BIGINT NOT NULL,
	owner BYTEA NOT NULL,
	PRIMARY KEY (call_id, owner)
);
CREATE TABLE IF NOT EXISTS audit_records (
	seq BIGSERIAL PRIMARY KEY,
	source TEXT NOT NULL,
	kind TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL,
	payload JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_records_source_seq ON audit_records (source, seq);
`
