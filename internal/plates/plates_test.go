package plates

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	list := Generate("CAT", 896, 1010)
	require.Equal(t, "CAT-0896", list[0])
	require.Equal(t, "CAT-1010", list[len(list)-1])
	for _, p := range list {
		require.False(t, strings.Contains(p[4:], "4"), p)
	}
	require.NotContains(t, list, "CAT-0904")
	require.Contains(t, list, "CAT-0999")

	all := Generate(DefaultPrefix, DefaultFrom, DefaultTo)
	// 9^4 four digit strings without a 4, minus the ones below 896
	below := len(Generate(DefaultPrefix, 0, DefaultFrom-1))
	require.Equal(t, 6561-below, len(all))
}

func TestNormalize(t *testing.T) {
	raw := []byte(`[{"plate":"CAT-2533","status":"not found"},"CAT-12", "CAT-0012", garbage CAT-1 DOG-3333 "CAT-999"]`)
	require.Equal(t, []string{"CAT-0001", "CAT-0012", "CAT-0999", "CAT-2533"}, Normalize(raw, "CAT"))
	require.Empty(t, Normalize([]byte("nothing here"), "CAT"))
}

func TestEncodeRoundTrip(t *testing.T) {
	list := Generate("CAT", 1000, 1030)

	var decoded []string
	require.NoError(t, json.Unmarshal(Encode(list), &decoded))
	require.Equal(t, list, decoded)

	var empty []string
	require.NoError(t, json.Unmarshal(Encode(nil), &empty))
	require.Empty(t, empty)
}

func TestWriteFileKeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notfound-all.json")
	require.NoError(t, os.WriteFile(path, []byte(`["CAT-3", "CAT-1"]`), 0644))

	require.NoError(t, WriteFile(path, []string{"CAT-0001", "CAT-0003"}))
	require.NoError(t, WriteFile(path, []string{"CAT-0001"}))

	backup, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	require.Equal(t, `["CAT-3", "CAT-1"]`, string(backup))

	idx, err := LoadIndex(path)
	require.NoError(t, err)
	require.Equal(t, 1, idx.Len())
	require.NoFileExists(t, path+".tmp")
}

func TestIndexGap(t *testing.T) {
	idx := NewIndex([]string{"CAT-2531", "CAT-2532", "CAT-2533"})

	gap, ok := idx.Gap("CAT-2533", "CAT-2531")
	require.True(t, ok)
	require.Equal(t, 2, gap)

	gap, ok = idx.Gap("CAT-2531", "CAT-2533")
	require.True(t, ok)
	require.Equal(t, -2, gap)

	_, ok = idx.Gap("CAT-2533", "CAT-9999")
	require.False(t, ok)
	_, ok = idx.Gap("CAT-0000", "CAT-2531")
	require.False(t, ok)

	rank, ok := idx.Rank("CAT-2532")
	require.True(t, ok)
	require.Equal(t, 1, rank)
}

func TestLoadIndexErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadIndex(filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte(`{"not":"a list"}`), 0644))
	_, err = LoadIndex(corrupt)
	require.Error(t, err)
}
