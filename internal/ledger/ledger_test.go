package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	l, err := Load(filepath.Join(t.TempDir(), "synced_bookmarks.json"))
	require.NoError(t, err)
	require.NotNil(t, l)

	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 0, l.FingerprintCount())
	assert.True(t, l.LastSync().IsZero())
}

func TestLoad_CorruptFileFallsBackToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synced_bookmarks.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	l, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))
	require.NotNil(t, l)
	assert.Equal(t, 0, l.Len())

	l.RecordDelivery("b1", "fp1")
	require.NoError(t, l.Persist())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, reloaded.Contains("b1"))
}

func TestLoad_LegacyFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synced_bookmarks.json")
	legacy := `{"synced_ids": ["a", "b"], "last_sync": "2024-03-01T10:20:30.123456", "total_synced": 2}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	l, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1, l.Version())
	assert.True(t, l.Contains("a"))
	assert.True(t, l.Contains("b"))
	assert.Equal(t, 0, l.FingerprintCount())
	assert.Equal(t, 2024, l.LastSync().Year())

	require.NoError(t, l.Persist())
	assert.Equal(t, CurrentVersion, l.Version())
}

func TestPersist_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "synced_bookmarks.json")
	fixed := time.Date(2025, 5, 4, 3, 2, 1, 0, time.UTC)

	l := New(path)
	l.now = func() time.Time { return fixed }
	l.RecordDelivery("b2", "fp2")
	l.RecordDelivery("b1", "fp1")
	l.RecordDelivery("b1", "fp1")
	l.RecordDelivery("b3", "")
	require.NoError(t, l.Persist())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var file fileFormat
	require.NoError(t, json.Unmarshal(data, &file))
	assert.Equal(t, 2, file.Version)
	assert.Equal(t, []string{"b1", "b2", "b3"}, file.SyncedIDs)
	assert.Equal(t, []string{"fp1", "fp2"}, file.SyncedFingerprints)
	assert.Equal(t, 3, file.TotalSynced)
	assert.Equal(t, "2025-05-04T03:02:01Z", file.LastSync)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, reloaded.Contains("b3"))
	assert.True(t, reloaded.ContainsFingerprint("fp2"))
	assert.True(t, reloaded.LastSync().Equal(fixed))
}

func TestContainsFingerprint_EmptyNeverMatches(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "l.json"))
	l.RecordDelivery("b1", "")

	assert.False(t, l.ContainsFingerprint(""))
	assert.Equal(t, 0, l.FingerprintCount())
}

func TestPersist_CrashBeforeRenameKeepsPreviousLedger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synced_bookmarks.json")

	l := New(path)
	l.RecordDelivery("b1", "fp1")
	require.NoError(t, l.Persist())
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	l.RecordDelivery("b2", "fp2")
	l.rename = func(oldpath, newpath string) error {
		return errors.New("simulated crash")
	}
	err = l.Persist()
	require.Error(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, reloaded.Contains("b1"))
	assert.False(t, reloaded.Contains("b2"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be cleaned up")
}

func TestPersist_UnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	l := New(filepath.Join(blocker, "ledger.json"))
	l.RecordDelivery("b1", "fp1")

	assert.Error(t, l.Persist())
	assert.True(t, l.Contains("b1"), "in-memory state survives a failed persist")
}
