package results

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/p2plab/p2p-testbed/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTestID_monotonic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test-counter.txt")

	first, err := NextTestID(path)
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	second, err := NextTestID(path)
	require.NoError(t, err)
	assert.Equal(t, 2, second)

	third, err := NextTestID(path)
	require.NoError(t, err)
	assert.Equal(t, 3, third)
}

func TestNextTestID_rejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test-counter.txt")
	require.NoError(t, os.WriteFile(path, []byte("not-a-number"), 0644))
	_, err := NextTestID(path)
	assert.Error(t, err)
}

func TestAppend_headerOnceRowsAccumulate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")

	rec := model.ResultRecord{
		RunID:     "r1",
		TestID:    1,
		Peers:     5,
		Overlay:   "star",
		FileBytes: 2239815,
		Bandwidth: model.Stats{Min: 761, Avg: 4000, Max: 9500},
		HashMatch: true,
		Status:    "ok",
	}
	require.NoError(t, Append(path, rec))
	rec.TestID = 2
	rec.Status = "failed"
	rec.HashMatch = false
	require.NoError(t, Append(path, rec))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, "1", rows[1][1])
	assert.Equal(t, "true", rows[1][23])
	assert.Equal(t, "ok", rows[1][24])
	assert.Equal(t, "2", rows[2][1])
	assert.Equal(t, "false", rows[2][23])

	for _, row := range rows[1:] {
		assert.Len(t, row, len(Header))
	}
}
