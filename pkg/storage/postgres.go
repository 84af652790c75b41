package storage

import (
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq"
)

// PostgresStore implements the Persistence interface
type PostgresStore struct {
	db               *sql.DB
	tableName        string
	deploymentsTable string
}

// NewPostgresStore initializes PostgreSQL storage.
// connStr: Connection string
// tablePrefix: Table prefix (defaults to "fundme_") -> tables are prefix + "checkpoints" and prefix + "deployments"
func NewPostgresStore(connStr string, tablePrefix string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if tablePrefix == "" {
		tablePrefix = "fundme_"
	}

	store := &PostgresStore{
		db:               db,
		tableName:        tablePrefix + "checkpoints",
		deploymentsTable: tablePrefix + "deployments",
	}

	if err := store.initTable(); err != nil {
		return nil, err
	}

	return store, nil
}

// initTable automatically creates the cursor and deployment tables
func (p *PostgresStore) initTable() error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		task_key VARCHAR(255) PRIMARY KEY,
		block_height BIGINT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`, p.tableName)
	if _, err := p.db.Exec(query); err != nil {
		return err
	}

	query = fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		network VARCHAR(64) NOT NULL,
		name VARCHAR(128) NOT NULL,
		address VARCHAR(42) NOT NULL,
		tx_hash VARCHAR(66) NOT NULL,
		block_number BIGINT NOT NULL,
		deployed_at TIMESTAMP NOT NULL,
		PRIMARY KEY (network, name)
	);
	`, p.deploymentsTable)
	_, err := p.db.Exec(query)
	return err
}

func (p *PostgresStore) LoadCursor(key string) (uint64, error) {
	var height uint64
	query := fmt.Sprintf("SELECT block_height FROM %s WHERE task_key = $1", p.tableName)
	err := p.db.QueryRow(query, key).Scan(&height)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return height, nil
}

func (p *PostgresStore) SaveCursor(key string, height uint64) error {
	// Upsert using Postgres ON CONFLICT syntax
	query := fmt.Sprintf(`
	INSERT INTO %s (task_key, block_height, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (task_key)
	DO UPDATE SET block_height = EXCLUDED.block_height, updated_at = NOW();
	`, p.tableName)
	_, err := p.db.Exec(query, key, height)
	return err
}

func (p *PostgresStore) SaveDeployment(d Deployment) error {
	query := fmt.Sprintf(`
	INSERT INTO %s (network, name, address, tx_hash, block_number, deployed_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (network, name)
	DO UPDATE SET address = EXCLUDED.address, tx_hash = EXCLUDED.tx_hash,
		block_number = EXCLUDED.block_number, deployed_at = EXCLUDED.deployed_at;
	`, p.deploymentsTable)
	_, err := p.db.Exec(query, d.Network, d.Name, d.Address.Hex(), d.TxHash.Hex(), d.BlockNumber, d.DeployedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row rowScanner) (Deployment, error) {
	var (
		d             Deployment
		address, hash string
	)
	if err := row.Scan(&d.Network, &d.Name, &address, &hash, &d.BlockNumber, &d.DeployedAt); err != nil {
		return Deployment{}, err
	}
	d.Address = common.HexToAddress(address)
	d.TxHash = common.HexToHash(hash)
	return d, nil
}

func (p *PostgresStore) LoadDeployment(network, name string) (Deployment, error) {
	query := fmt.Sprintf("SELECT network, name, address, tx_hash, block_number, deployed_at FROM %s WHERE network = $1 AND name = $2", p.deploymentsTable)
	d, err := scanDeployment(p.db.QueryRow(query, network, name))
	if err == sql.ErrNoRows {
		return Deployment{}, ErrDeploymentNotFound
	}
	return d, err
}

func (p *PostgresStore) ListDeployments(network string) ([]Deployment, error) {
	query := fmt.Sprintf("SELECT network, name, address, tx_hash, block_number, deployed_at FROM %s WHERE network = $1 ORDER BY name", p.deploymentsTable)
	rows, err := p.db.Query(query, network)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
