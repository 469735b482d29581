package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abhirupinspace/veilocity/internal/corerr"
)

// Config describes how to reach the durable store, in the shape of
// the teacher's internal/storage/postgres.go Config.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// DefaultConfig mirrors the teacher's DefaultConfig: sane values for
// a local development Postgres instance.
func DefaultConfig() Config {
	return Config{
		Host:     "localhost",
		Port:     5432,
		User:     "veilocity",
		Password: "veilocity",
		Database: "veilocity",
		SSLMode:  "disable",
		MaxConns: 10,
	}
}

func (c Config) connString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode, c.MaxConns,
	)
}

// PostgresStore is the production Store backend, grounded on the
// teacher's PostgresStore (internal/storage/postgres.go) but
// implementing the accounts/nullifiers/transactions/sync_state schema
// spec.md §6 prescribes rather than the teacher's block/DAG schema.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, pings, and returns a ready store. Callers
// are responsible for applying Schema beforehand (e.g. via a migration
// step outside the engine's scope).
func NewPostgresStore(ctx context.Context, cfg Config) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.connString())
	if err != nil {
		return nil, fmt.Errorf("state: connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("state: pinging postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// ApplySchema connects to cfg's database and executes Schema. It
// exists for callers (the daemon entrypoint, an operator tool) that
// have no migration system of their own to reach for.
func ApplySchema(ctx context.Context, cfg Config) error {
	pool, err := pgxpool.New(ctx, cfg.connString())
	if err != nil {
		return fmt.Errorf("state: connecting to postgres for schema: %w", err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("state: applying schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, rec AccountRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (pubkey, balance_le, nonce, leaf_index)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pubkey) DO NOTHING
	`, rec.Pubkey[:], rec.BalanceLE[:], int64(rec.Nonce), int64(rec.LeafIndex))
	if err != nil {
		return fmt.Errorf("state: inserting account: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccountByPubkey(ctx context.Context, pubkey [32]byte) (*AccountRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT pubkey, balance_le, nonce, leaf_index, created_at, updated_at
		FROM accounts WHERE pubkey = $1
	`, pubkey[:])
	return scanAccountRow(row)
}

func scanAccountRow(row pgx.Row) (*AccountRecord, error) {
	var rec AccountRecord
	var pub, bal []byte
	var nonce, leafIndex int64
	err := row.Scan(&pub, &bal, &nonce, &leafIndex, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, corerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("state: scanning account: %w", err)
	}
	copy(rec.Pubkey[:], pub)
	copy(rec.BalanceLE[:], bal)
	rec.Nonce = uint64(nonce)
	rec.LeafIndex = uint64(leafIndex)
	return &rec, nil
}

func (s *PostgresStore) UpdateAccount(ctx context.Context, pubkey [32]byte, balanceLE [16]byte, nonce uint64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET balance_le = $2, nonce = $3, updated_at = now()
		WHERE pubkey = $1
	`, pubkey[:], balanceLE[:], int64(nonce))
	if err != nil {
		return fmt.Errorf("state: updating account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return corerr.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListAccountsByIndexAsc(ctx context.Context) ([]AccountRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pubkey, balance_le, nonce, leaf_index, created_at, updated_at
		FROM accounts ORDER BY leaf_index ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("state: listing accounts: %w", err)
	}
	defer rows.Close()

	var out []AccountRecord
	for rows.Next() {
		rec, err := scanAccountRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) IsNullifierUsed(ctx context.Context, nullifier [32]byte) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM nullifiers WHERE nullifier = $1)
	`, nullifier[:]).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("state: checking nullifier: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) MarkNullifierUsed(ctx context.Context, nullifier [32]byte) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO nullifiers (nullifier) VALUES ($1)
		ON CONFLICT (nullifier) DO NOTHING
	`, nullifier[:])
	if err != nil {
		return fmt.Errorf("state: marking nullifier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return corerr.ErrNullifierUsed
	}
	return nil
}

func (s *PostgresStore) UnmarkNullifierUsed(ctx context.Context, nullifier [32]byte) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM nullifiers WHERE nullifier = $1`, nullifier[:])
	if err != nil {
		return fmt.Errorf("state: unmarking nullifier: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNullifiers(ctx context.Context) ([][32]byte, error) {
	rows, err := s.pool.Query(ctx, `SELECT nullifier FROM nullifiers`)
	if err != nil {
		return nil, fmt.Errorf("state: listing nullifiers: %w", err)
	}
	defer rows.Close()

	var out [][32]byte
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("state: scanning nullifier: %w", err)
		}
		var n [32]byte
		copy(n[:], b)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetSyncCheckpoint(ctx context.Context) (uint64, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM sync_state WHERE key = 'last_synced_block'`).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("state: reading sync checkpoint: %w", err)
	}
	return decodeUint64LE(value), true, nil
}

func (s *PostgresStore) SetSyncCheckpoint(ctx context.Context, block uint64) error {
	value := encodeUint64LE(block)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_state (key, value) VALUES ('last_synced_block', $1)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, value)
	if err != nil {
		return fmt.Errorf("state: writing sync checkpoint: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendTransaction(ctx context.Context, entry JournalEntry) error {
	data, err := json.Marshal(journalData{
		Amount:    entry.Amount,
		TxHash:    entry.TxHash,
		Recipient: entry.Recipient,
	})
	if err != nil {
		return fmt.Errorf("state: marshaling journal data: %w", err)
	}

	var nullifier []byte
	if entry.Nullifier != nil {
		nullifier = entry.Nullifier[:]
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO transactions (id, tx_type, nullifier, data, status)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID[:], entry.Type.String(), nullifier, data, entry.Status.String())
	if err != nil {
		return fmt.Errorf("state: appending transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTransactionStatusByNullifier(ctx context.Context, nullifier [32]byte, status TransactionStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transactions SET status = $2, updated_at = now() WHERE nullifier = $1
	`, nullifier[:], status.String())
	if err != nil {
		return fmt.Errorf("state: updating transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return corerr.ErrNotFound
	}
	return nil
}

// journalData is the JSON shape of the transactions.data column.
type journalData struct {
	Amount    string `json:"amount"`
	TxHash    string `json:"tx_hash"`
	Recipient string `json:"recipient"`
}

func encodeUint64LE(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func decodeUint64LE(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
