package state

// Schema is the DDL for the four tables spec.md §6 prescribes. The
// engine does not run migrations itself (out of scope); Schema is
// exported so the daemon entrypoint or an operator tool can apply it.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id          BIGSERIAL PRIMARY KEY,
	pubkey      BYTEA NOT NULL UNIQUE,
	balance_le  BYTEA NOT NULL,
	nonce       BIGINT NOT NULL,
	leaf_index  BIGINT NOT NULL UNIQUE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_accounts_leaf_index ON accounts (leaf_index);

CREATE TABLE IF NOT EXISTS nullifiers (
	nullifier   BYTEA PRIMARY KEY,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transactions (
	id          UUID PRIMARY KEY,
	tx_type     TEXT NOT NULL,
	nullifier   BYTEA,
	data        JSONB NOT NULL,
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions (status);

CREATE TABLE IF NOT EXISTS sync_state (
	key    TEXT PRIMARY KEY,
	value  BYTEA NOT NULL
);
`
