package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"vault-zap/pkg/types"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "notifications.json"))
	require.NoError(t, err)
	return s
}

func TestStorageRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	saved, _, err := s.Insert(types.Notification{
		Type:          types.NotificationLifi,
		Status:        types.NotificationPending,
		FromAddress:   common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"),
		FromChainID:   137,
		FromTokenName: "USDC",
		FromAmount:    "12.5",
		ToChainID:     1,
		TxHash:        "0xabc",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), saved.ID)

	reopened, err := NewStorage(s.FilePath())
	require.NoError(t, err)
	got, err := reopened.Get(saved.ID)
	require.NoError(t, err)
	require.Equal(t, saved, got)
	require.Equal(t, 1, reopened.Count())
}

func TestStorageIDsIncrement(t *testing.T) {
	s := newTestStorage(t)

	first, _, err := s.Insert(types.Notification{Type: types.NotificationPortals})
	require.NoError(t, err)
	second, _, err := s.Insert(types.Notification{Type: types.NotificationPortals})
	require.NoError(t, err)
	require.Equal(t, first.ID+1, second.ID)

	// IDs are not reused after a delete
	_, err = s.Delete(second.ID)
	require.NoError(t, err)
	third, _, err := s.Insert(types.Notification{Type: types.NotificationPortals})
	require.NoError(t, err)
	require.Equal(t, second.ID+1, third.ID)

	list := s.List()
	require.Len(t, list, 2)
	require.Equal(t, first.ID, list[0].ID)
	require.Equal(t, third.ID, list[1].ID)
}

func TestStorageSharedBetweenInstances(t *testing.T) {
	a := newTestStorage(t)
	b, err := NewStorage(a.FilePath())
	require.NoError(t, err)

	_, _, err = a.Insert(types.Notification{Type: types.NotificationLifi})
	require.NoError(t, err)
	fromB, _, err := b.Insert(types.Notification{Type: types.NotificationLifi})
	require.NoError(t, err)
	require.Equal(t, int64(2), fromB.ID)

	require.NoError(t, a.Reload())
	require.Equal(t, 2, a.Count())
}

func TestStorageMissingEntries(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Get(7)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Delete(7)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Modify(7, func(*types.Notification) error { return nil })
	require.ErrorIs(t, err, ErrNotFound)

	_, err = os.Stat(s.FilePath())
	require.True(t, os.IsNotExist(err))
}

func TestStorageRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewStorage(path)
	require.Error(t, err)
}

func TestStorageInsertIsIdempotentPerKey(t *testing.T) {
	s := newTestStorage(t)

	first, created, err := s.Insert(types.Notification{Key: "k1", Type: types.NotificationLifi, TxHash: "0x1"})
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := s.Insert(types.Notification{Key: "k1", Type: types.NotificationLifi, TxHash: "0x2"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first, again)
	require.Equal(t, 1, s.Count())
}
