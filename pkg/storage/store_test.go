package storage

import (
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDeployment = Deployment{
	Network:     "sepolia",
	Name:        "FundMe",
	Address:     common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
	TxHash:      common.HexToHash("0x01"),
	BlockNumber: 12,
	DeployedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
}

// --- Memory Store Tests ---

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore("test_")
	err := s.SaveCursor("task1", 100)
	assert.NoError(t, err)

	h, err := s.LoadCursor("task1")
	assert.NoError(t, err)
	assert.Equal(t, uint64(100), h)

	h, err = s.LoadCursor("unknown")
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), h)

	// Memory store Close is no-op
	assert.NoError(t, s.Close())
}

func TestMemoryStore_Deployments(t *testing.T) {
	s := NewMemoryStore("")

	_, err := s.LoadDeployment("sepolia", "FundMe")
	assert.ErrorIs(t, err, ErrDeploymentNotFound)

	mock := testDeployment
	mock.Name = "MockV3Aggregator"
	require.NoError(t, s.SaveDeployment(mock))
	require.NoError(t, s.SaveDeployment(testDeployment))

	d, err := s.LoadDeployment("sepolia", "FundMe")
	require.NoError(t, err)
	assert.Equal(t, testDeployment, d)

	list, err := s.ListDeployments("sepolia")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "FundMe", list[0].Name)
	assert.Equal(t, "MockV3Aggregator", list[1].Name)

	// replace
	moved := testDeployment
	moved.Address = common.HexToAddress("0x02")
	require.NoError(t, s.SaveDeployment(moved))
	d, err = s.LoadDeployment("sepolia", "FundMe")
	require.NoError(t, err)
	assert.Equal(t, moved.Address, d.Address)

	list, err = s.ListDeployments("goerli")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOpen(t *testing.T) {
	s, err := Open(Options{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open(Options{Driver: "mongo"})
	assert.ErrorContains(t, err, "unknown storage driver")

	s, err = Open(Options{Driver: "redis", Addr: "localhost:65432"})
	assert.Error(t, err)
	assert.Nil(t, s)
}

// --- Postgres Store Tests ---

func TestPostgresStore_InitTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := &PostgresStore{
		db:               db,
		tableName:        "custom_checkpoints",
		deploymentsTable: "custom_deployments",
	}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS custom_checkpoints")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS custom_deployments")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.initTable()
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InitTableError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &PostgresStore{db: db, tableName: "t_checkpoints", deploymentsTable: "t_deployments"}
	mock.ExpectExec("CREATE TABLE").WillReturnError(assert.AnError)
	assert.Error(t, store.initTable())
}

func TestPostgresStore_SaveLoad(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := &PostgresStore{
		db:        db,
		tableName: "fundme_checkpoints",
	}

	// 1. Save
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fundme_checkpoints")).
		WithArgs("task1", 100).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.SaveCursor("task1", 100)
	assert.NoError(t, err)

	// 2. Save error
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fundme_checkpoints")).
		WillReturnError(assert.AnError)
	err = store.SaveCursor("task1", 100)
	assert.Error(t, err)

	// 3. Load
	rows := sqlmock.NewRows([]string{"block_height"}).AddRow(200)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT block_height FROM fundme_checkpoints")).
		WithArgs("task1").
		WillReturnRows(rows)

	h, err := store.LoadCursor("task1")
	assert.NoError(t, err)
	assert.Equal(t, uint64(200), h)

	// 4. Load not found (should return 0, no error)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT block_height")).
		WithArgs("task2").
		WillReturnError(sql.ErrNoRows)
	h, err = store.LoadCursor("task2")
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), h)

	// 5. Load error
	mock.ExpectQuery(regexp.QuoteMeta("SELECT block_height")).
		WillReturnError(assert.AnError)
	_, err = store.LoadCursor("task3")
	assert.Error(t, err)

	// 6. Close
	mock.ExpectClose()
	assert.NoError(t, store.Close())
}

func TestPostgresStore_Deployments(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &PostgresStore{db: db, tableName: "fundme_checkpoints", deploymentsTable: "fundme_deployments"}
	d := testDeployment

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fundme_deployments")).
		WithArgs(d.Network, d.Name, d.Address.Hex(), d.TxHash.Hex(), d.BlockNumber, d.DeployedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.SaveDeployment(d))

	cols := []string{"network", "name", "address", "tx_hash", "block_number", "deployed_at"}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT network, name, address, tx_hash, block_number, deployed_at FROM fundme_deployments WHERE network = $1 AND name = $2")).
		WithArgs("sepolia", "FundMe").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(d.Network, d.Name, d.Address.Hex(), d.TxHash.Hex(), int64(d.BlockNumber), d.DeployedAt))
	got, err := store.LoadDeployment("sepolia", "FundMe")
	require.NoError(t, err)
	assert.Equal(t, d, got)

	mock.ExpectQuery(regexp.QuoteMeta("FROM fundme_deployments WHERE network = $1 AND name = $2")).
		WithArgs("sepolia", "Missing").
		WillReturnError(sql.ErrNoRows)
	_, err = store.LoadDeployment("sepolia", "Missing")
	assert.ErrorIs(t, err, ErrDeploymentNotFound)

	mock.ExpectQuery(regexp.QuoteMeta("FROM fundme_deployments WHERE network = $1 ORDER BY name")).
		WithArgs("sepolia").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(d.Network, "FundMe", d.Address.Hex(), d.TxHash.Hex(), int64(12), d.DeployedAt).
			AddRow(d.Network, "MockV3Aggregator", d.Address.Hex(), d.TxHash.Hex(), int64(11), d.DeployedAt))
	list, err := store.ListDeployments("sepolia")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, uint64(11), list[1].BlockNumber)

	mock.ExpectQuery("FROM fundme_deployments").WillReturnError(assert.AnError)
	_, err = store.ListDeployments("sepolia")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// NewPostgresStore involves a real sql.Open, so only the failure path is covered here.
func TestNewPostgresStore_InvalidURL(t *testing.T) {
	_, err := NewPostgresStore("postgres://invalid-url?param=^^", "prefix")
	assert.Error(t, err)
}

// --- Redis Store Tests ---

func TestRedisStore_SaveLoad(t *testing.T) {
	db, mock := redismock.NewClientMock()

	store := &RedisStore{
		client: db,
		prefix: "fm:",
	}

	mock.ExpectSet("fm:task1", uint64(100), time.Duration(0)).SetVal("OK")
	err := store.SaveCursor("task1", 100)
	assert.NoError(t, err)

	mock.ExpectSet("fm:task1", uint64(100), time.Duration(0)).SetErr(assert.AnError)
	err = store.SaveCursor("task1", 100)
	assert.Error(t, err)

	mock.ExpectGet("fm:task1").SetVal("500")
	h, err := store.LoadCursor("task1")
	assert.NoError(t, err)
	assert.Equal(t, uint64(500), h)

	mock.ExpectGet("fm:task2").SetErr(redis.Nil)
	h, err = store.LoadCursor("task2")
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), h)

	mock.ExpectGet("fm:task3").SetErr(assert.AnError)
	_, err = store.LoadCursor("task3")
	assert.Error(t, err)

	assert.NoError(t, store.Close())
}

func TestRedisStore_Deployments(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := &RedisStore{client: db, prefix: "fm:"}

	payload, err := json.Marshal(testDeployment)
	require.NoError(t, err)

	mock.ExpectHSet("fm:deployments:sepolia", "FundMe", string(payload)).SetVal(1)
	require.NoError(t, store.SaveDeployment(testDeployment))

	mock.ExpectHGet("fm:deployments:sepolia", "FundMe").SetVal(string(payload))
	d, err := store.LoadDeployment("sepolia", "FundMe")
	require.NoError(t, err)
	assert.Equal(t, testDeployment.Address, d.Address)
	assert.True(t, testDeployment.DeployedAt.Equal(d.DeployedAt))

	mock.ExpectHGet("fm:deployments:sepolia", "Missing").RedisNil()
	_, err = store.LoadDeployment("sepolia", "Missing")
	assert.ErrorIs(t, err, ErrDeploymentNotFound)

	mock.ExpectHGet("fm:deployments:sepolia", "Broken").SetVal("{not json")
	_, err = store.LoadDeployment("sepolia", "Broken")
	assert.Error(t, err)

	other := testDeployment
	other.Name = "MockV3Aggregator"
	otherPayload, _ := json.Marshal(other)
	mock.ExpectHGetAll("fm:deployments:sepolia").SetVal(map[string]string{
		"MockV3Aggregator": string(otherPayload),
		"FundMe":           string(payload),
	})
	list, err := store.ListDeployments("sepolia")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "FundMe", list[0].Name)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRedisStore_PingFail(t *testing.T) {
	// localhost:65432 is typically unreachable in CI
	_, err := NewRedisStore("localhost:65432", "", 0, "p_")
	assert.Error(t, err)
}
