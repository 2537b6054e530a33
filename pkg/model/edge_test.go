package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveEdge_degenerateStarPair(t *testing.T) {
	origin := Peer{Name: OriginName, MaxUpload: 25000, MaxDownload: 78000, Latency: 40.20, Loss: 0.0024}
	p1 := Peer{Name: "1", MaxUpload: 800, MaxDownload: 9500, Latency: 25.5, Loss: 0.0020}

	edge := DeriveEdge(origin, p1)

	assert.Equal(t, 9500, edge.Bandwidth)
	assert.InDelta(t, 65.70, edge.Latency, 1e-9)
	assert.InDelta(t, 0.0024, edge.Loss, 1e-9)
	assert.Equal(t, "65.70", edge.FormatLatency())
	assert.Equal(t, "0.0024", edge.FormatLoss())
}

func TestDeriveEdge_reverseDirectionDiffers(t *testing.T) {
	a := Peer{Name: "1", MaxUpload: 800, MaxDownload: 9500, Latency: 25.5, Loss: 0.0020}
	b := Peer{Name: "2", MaxUpload: 18000, MaxDownload: 200000, Latency: 17.6, Loss: 0.0100}

	ab := DeriveEdge(a, b)
	ba := DeriveEdge(b, a)

	assert.Equal(t, 800, ab.Bandwidth)
	assert.Equal(t, 9500, ba.Bandwidth)
	assert.InDelta(t, ab.Latency, ba.Latency, 1e-9)
	assert.InDelta(t, 0.0100, ab.Loss, 1e-9)
	assert.InDelta(t, 0.0100, ba.Loss, 1e-9)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{4, 1, 7})
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Avg)
	assert.Equal(t, 7.0, s.Max)

	empty := Summarize(nil)
	assert.Equal(t, Stats{}, empty)
}

func TestPeerValidate(t *testing.T) {
	good := Peer{Name: "1", MaxUpload: 800, MaxDownload: 9500, Latency: 20, Loss: 0.01}
	assert.NoError(t, good.Validate())

	noUpload := good
	noUpload.MaxUpload = 0
	assert.Error(t, noUpload.Validate())

	inverted := good
	inverted.MaxUpload = 10000
	assert.Error(t, inverted.Validate())

	lossy := good
	lossy.Loss = 1.5
	assert.Error(t, lossy.Validate())
}

func TestOverlayLookups(t *testing.T) {
	o := Overlay{
		TwoTier:    true,
		SuperPeers: []string{"1"},
		Edges: []OverlayEdge{
			{Source: OriginName, Target: "1"},
			{Source: "1", Target: "2"},
			{Source: "1", Target: "3"},
		},
	}
	assert.Equal(t, []string{"2", "3"}, o.TargetsOf("1"))
	assert.Equal(t, []string{OriginName, "1"}, o.Sources())
	assert.Equal(t, "1", o.SuperPeerOf("3"))
	assert.Equal(t, OriginName, o.SuperPeerOf("1"))
	assert.True(t, o.IsSuperPeer("1"))
	assert.False(t, o.IsSuperPeer("2"))
}
