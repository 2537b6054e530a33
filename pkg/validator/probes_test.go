package validator

import (
	"path/filepath"
	"testing"

	"github.com/p2plab/p2p-testbed/pkg/fabric"
	"github.com/p2plab/p2p-testbed/pkg/model"
	"github.com/p2plab/p2p-testbed/pkg/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbesFromTopology(t *testing.T) {
	peers := []model.Peer{
		{Name: "1", MaxUpload: 800, MaxDownload: 9500, Latency: 25.5, Loss: 0.0020},
		{Name: "2", MaxUpload: 18000, MaxDownload: 200000, Latency: 17.6, Loss: 0.0100},
		{Name: model.OriginName, MaxUpload: 25000, MaxDownload: 78000, Latency: 40.20, Loss: 0.0024},
	}
	overlay := planner.Star(peers)
	allocated, err := planner.Allocate(overlay, planner.PeersByName(peers), 5000)
	require.NoError(t, err)

	dir := t.TempDir()
	topo, err := fabric.Build(fabric.Input{
		Peers:            peers,
		Overlay:          overlay,
		Details:          planner.ConnectionDetails(allocated),
		RunID:            "probe-test",
		ArtifactHostPath: "/tmp/a.pdf",
		DetailsHostPath:  "/tmp/connection-details-2.json",
		ScriptDir:        dir,
		Image:            "image-testbed",
		TrackerImage:     "image-tracker",
	})
	require.NoError(t, err)

	topoPath := filepath.Join(dir, "topo.yml")
	require.NoError(t, fabric.WriteTopologyFile(topo, topoPath))

	probes, err := ProbesFromTopology(topoPath)
	require.NoError(t, err)
	require.Len(t, probes, 2)
	for _, p := range probes {
		assert.Equal(t, model.OriginName, p.Source)
		assert.NotEmpty(t, p.TargetIP)
	}
	targets := []string{probes[0].Target, probes[1].Target}
	assert.ElementsMatch(t, []string{"1", "2"}, targets)
}
