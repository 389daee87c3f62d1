package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fxledger/internal/durable"
	"github.com/roach88/fxledger/internal/ledger"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"accounts", "rates", "log_entries"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found after idempotent opens", table)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	assert.Error(t, err)
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	assert.NoError(t, s.verifyPragma(ctx, "journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma(ctx, "synchronous", "2"))
	assert.NoError(t, s.verifyPragma(ctx, "user_version", "1"))
}

func TestOpen_SchemaIndexes(t *testing.T) {
	s := createTestStore(t)

	var name string
	err := s.db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'log_entries' AND name = 'idx_log_entries_ok'`,
	).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "idx_log_entries_ok", name)
}

func TestOpen_NewerSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 2")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	assert.NoError(t, s.Close())
}

func TestLoad_EmptyDatabase(t *testing.T) {
	s := createTestStore(t)

	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Accounts)
	assert.Empty(t, snap.Rates)
	assert.Empty(t, snap.Log)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	want := createTestSnapshot()

	require.NoError(t, s.Save(ctx, want, ledger.ArtifactAll))

	got, err := s.Load(ctx)
	require.NoError(t, err)

	require.Len(t, got.Accounts, 2)
	assert.Equal(t, int64(7), got.Accounts[0].ID, "insertion order preserved")
	assert.Equal(t, "50.25", got.Accounts[1].Balance.String())

	assert.Equal(t, "1.11111", got.Rates[ledger.Pair{Base: "EUR", Counter: "USD"}].String())

	require.Len(t, got.Log, 2)
	assert.Equal(t, "entry-1", got.Log[0].ID)
	assert.Nil(t, got.Log[0].Observation)
	require.NotNil(t, got.Log[1].Observation)
	assert.Equal(t, "Not enough funds on counter currency account", *got.Log[1].Observation)
	assert.True(t, want.Log[0].Timestamp.Equal(got.Log[0].Timestamp))
	assert.Equal(t, "50", got.Log[0].Request.BaseAmount.String())
}

func TestSave_AppendsLogIncrementally(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	snap := createTestSnapshot()

	first := &ledger.Snapshot{Log: snap.Log[:1]}
	require.NoError(t, s.Save(ctx, first, ledger.ArtifactLog))
	require.NoError(t, s.Save(ctx, snap, ledger.ArtifactLog))
	// Saving the same log again inserts nothing.
	require.NoError(t, s.Save(ctx, snap, ledger.ArtifactLog))

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM log_entries").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestSave_RejectsShrinkingLog(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, createTestSnapshot(), ledger.ArtifactLog))
	err := s.Save(ctx, &ledger.Snapshot{}, ledger.ArtifactLog)
	assert.Error(t, err)
}

func TestSave_ReplacesAccountsAndRates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, createTestSnapshot(), ledger.ArtifactAll))

	next := createTestSnapshot()
	next.Accounts = next.Accounts[:1]
	delete(next.Rates, ledger.Pair{Base: "EUR", Counter: "USD"})
	require.NoError(t, s.Save(ctx, next, ledger.ArtifactAccounts|ledger.ArtifactRates))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Accounts, 1)
	assert.Len(t, got.Rates, 1)
	assert.Len(t, got.Log, 2, "log untouched")
}

func TestSave_FailureWritesNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	bad := createTestSnapshot()
	// Duplicate currency violates the UNIQUE constraint after the first insert.
	bad.Accounts = append(bad.Accounts, ledger.Account{ID: 99, Currency: "EUR"})

	err := s.Save(ctx, bad, ledger.ArtifactAll)
	require.Error(t, err)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.Accounts)
	assert.Empty(t, got.Rates)
	assert.Empty(t, got.Log)
}

func TestLoad_CorruptValue(t *testing.T) {
	s := createTestStore(t)
	_, err := s.db.Exec(`INSERT INTO accounts (id, currency, balance, position) VALUES (1, 'USD', 'lots', 0)`)
	require.NoError(t, err)

	_, err = s.Load(context.Background())
	var corrupt *durable.CorruptError
	assert.ErrorAs(t, err, &corrupt)
}
