package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfiles_invariantsHold(t *testing.T) {
	s := New(42)
	peers, err := s.Profiles(50)
	require.NoError(t, err)
	require.Len(t, peers, 50)

	for i, p := range peers {
		assert.Equal(t, peerName(i+1), p.Name)
		assert.Greater(t, p.MaxUpload, 0)
		assert.Greater(t, p.MaxDownload, p.MaxUpload)
		assert.GreaterOrEqual(t, p.Latency, 0.0)
		assert.GreaterOrEqual(t, p.Loss, 0.0)
		assert.LessOrEqual(t, p.Loss, 1.0)
		assert.NoError(t, p.Validate())
	}
}

func TestProfiles_seedReproducible(t *testing.T) {
	first, err := New(7).Profiles(20)
	require.NoError(t, err)
	second, err := New(7).Profiles(20)
	require.NoError(t, err)
	assert.Exactly(t, first, second)

	different, err := New(8).Profiles(20)
	require.NoError(t, err)
	assert.NotEqual(t, first, different)
}

func TestOrigin_withinBounds(t *testing.T) {
	s := New(3)
	for i := 0; i < 100; i++ {
		origin := s.Origin()
		assert.True(t, origin.IsOrigin())
		assert.GreaterOrEqual(t, origin.MaxUpload, originUploadMin)
		assert.LessOrEqual(t, origin.MaxUpload, originUploadMax)
		assert.GreaterOrEqual(t, origin.MaxDownload, originDownloadMin)
		assert.LessOrEqual(t, origin.MaxDownload, originDownloadMax)
		assert.Equal(t, originLatency, origin.Latency)
		assert.Equal(t, originLoss, origin.Loss)
	}
}

func TestToKbit_roundsHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, 824, toKbit(0.8241))
	assert.Equal(t, 825, toKbit(0.8245))
	assert.Equal(t, 9489, toKbit(9.4891))
	assert.Equal(t, 1000, toKbit(0.9995))
}

func TestTechnologyShares_sumToHundred(t *testing.T) {
	assert.InDelta(t, 100.0, adslShare+cableShare+fttcShare, 1e-9)
}
