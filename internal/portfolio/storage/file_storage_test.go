package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/crypto-trading-core/internal/portfolio"
)

func sampleState() *portfolio.State {
	return &portfolio.State{
		Version:     "1.0",
		CashBalance: 75000,
		InitialCash: 100000,
		Positions: []portfolio.Position{
			{
				Symbol:     "BTCUSDT",
				Side:       portfolio.SideLong,
				Amount:     0.5,
				EntryPrice: 50000,
				Status:     portfolio.StatusOpen,
			},
		},
		Transactions: []portfolio.Transaction{
			{
				Timestamp: time.Now().UTC(),
				Type:      portfolio.TransactionOpen,
				Symbol:    "BTCUSDT",
				Amount:    0.5,
				Price:     50000,
			},
		},
	}
}

// TestSaveAndLoadRoundTrip persists and restores the full state.
func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	fs := NewFileStorage(path)

	require.NoError(t, fs.Save(sampleState()))

	loaded, err := fs.Load()
	require.NoError(t, err)
	assert.InDelta(t, 75000.0, loaded.CashBalance, 1e-9)
	require.Len(t, loaded.Positions, 1)
	assert.Equal(t, "BTCUSDT", loaded.Positions[0].Symbol)
	assert.Len(t, loaded.Transactions, 1)
	assert.False(t, loaded.LastUpdated.IsZero())
}

// TestSaveCreatesParentDirectory builds missing directories on construction.
func TestSaveCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "state.json")
	fs := NewFileStorage(path)

	require.NoError(t, fs.Save(sampleState()))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

// TestSaveNilState is rejected.
func TestSaveNilState(t *testing.T) {
	fs := NewFileStorage(filepath.Join(t.TempDir(), "state.json"))
	assert.Error(t, fs.Save(nil))
}

// TestLoadMissingFile reports a descriptive error.
func TestLoadMissingFile(t *testing.T) {
	fs := NewFileStorage(filepath.Join(t.TempDir(), "absent.json"))

	_, err := fs.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

// TestLoadRejectsCorruptJSON fails loudly rather than restoring garbage.
func TestLoadRejectsCorruptJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	fs := NewFileStorage(path)
	_, err := fs.Load()
	assert.Error(t, err)
}

// TestLoadValidation rejects semantically invalid state.
func TestLoadValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	fs := NewFileStorage(path)

	bad := sampleState()
	bad.Positions[0].Amount = -1
	require.NoError(t, fs.Save(bad))

	_, err := fs.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-positive amount")

	dup := sampleState()
	dup.Positions = append(dup.Positions, dup.Positions[0])
	require.NoError(t, fs.Save(dup))

	_, err = fs.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

// TestLockUnlockLifecycle creates and removes the lock file.
func TestLockUnlockLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	fs := NewFileStorage(path)

	require.NoError(t, fs.Lock())
	_, err := os.Stat(path + ".lock")
	assert.NoError(t, err)

	// Re-locking the same handle is an error.
	assert.Error(t, fs.Lock())

	require.NoError(t, fs.Unlock())
	_, err = os.Stat(path + ".lock")
	assert.True(t, os.IsNotExist(err))

	// Unlock is idempotent.
	assert.NoError(t, fs.Unlock())
}

// TestLockHeldByAnotherProcess refuses a fresh foreign lock.
func TestLockHeldByAnotherProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	first := NewFileStorage(path)
	require.NoError(t, first.Lock())

	second := NewFileStorage(path)
	err := second.Lock()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by another process")
}

// TestStaleLockIsStolen a lock older than the stale age is replaced.
func TestStaleLockIsStolen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	stale := `{"timestamp":"` + time.Now().Add(-time.Hour).Format(time.RFC3339) + `","pid":1}`
	require.NoError(t, os.WriteFile(path+".lock", []byte(stale), 0644))

	fs := NewFileStorage(path)
	assert.NoError(t, fs.Lock())
}

// TestCorruptLockIsRemoved an unreadable lock file does not wedge startup.
func TestCorruptLockIsRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path+".lock", []byte("garbage"), 0644))

	fs := NewFileStorage(path)
	assert.NoError(t, fs.Lock())
}

// TestBackupCopiesStateFile writes a timestamped copy.
func TestBackupCopiesStateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	fs := NewFileStorage(path)
	require.NoError(t, fs.Save(sampleState()))

	backupPath, err := fs.Backup()
	require.NoError(t, err)
	assert.Contains(t, backupPath, ".backup_")

	_, err = os.Stat(backupPath)
	assert.NoError(t, err)
}
