package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/lib/pq"
)

var tableName = regexp.MustCompile("^[a-zA-Z0-9_]+$")

type PostgresConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Table   string `mapstructure:"table"`
}

// PostgresOutput inserts events into a JSONB table, ignoring replays.
type PostgresOutput struct {
	db    *sql.DB
	table string
}

func NewPostgresOutput(url, table string) (*PostgresOutput, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %s", table)
	}
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	p, err := newPostgresOutput(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func newPostgresOutput(db *sql.DB, table string) (*PostgresOutput, error) {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id SERIAL PRIMARY KEY,
			network TEXT NOT NULL,
			block_number BIGINT,
			tx_hash TEXT,
			log_index INT,
			event_name TEXT,
			data JSONB,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE (network, tx_hash, log_index)
		);
		CREATE INDEX IF NOT EXISTS idx_%s_block ON %s (block_number);
	`, table, table, table)
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &PostgresOutput{db: db, table: table}, nil
}

func (p *PostgresOutput) Name() string { return "postgres" }

func (p *PostgresOutput) Send(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const cols = 6
	valueStrings := make([]string, 0, len(events))
	valueArgs := make([]interface{}, 0, len(events)*cols)
	for i, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		n := i * cols
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6))
		valueArgs = append(valueArgs, ev.Network, ev.Log.BlockNumber, ev.Log.TxHash.Hex(), ev.Log.Index, ev.EventName, data)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (network, block_number, tx_hash, log_index, event_name, data) VALUES %s ON CONFLICT (network, tx_hash, log_index) DO NOTHING",
		p.table, strings.Join(valueStrings, ","))
	if _, err := tx.ExecContext(ctx, stmt, valueArgs...); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresOutput) Close() error { return p.db.Close() }
