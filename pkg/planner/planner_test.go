package planner

import (
	"testing"

	"github.com/p2plab/p2p-testbed/pkg/model"
	"github.com/p2plab/p2p-testbed/pkg/sampler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func newTestRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func testPeers() []model.Peer {
	return []model.Peer{
		{Name: "1", MaxUpload: 800, MaxDownload: 9500, Latency: 25.5, Loss: 0.0020},
		{Name: "2", MaxUpload: 18000, MaxDownload: 200000, Latency: 17.6, Loss: 0.0100},
		{Name: "3", MaxUpload: 13000, MaxDownload: 52000, Latency: 13.0, Loss: 0.0005},
		{Name: "4", MaxUpload: 900, MaxDownload: 8000, Latency: 30.1, Loss: 0.0030},
		{Name: model.OriginName, MaxUpload: 25000, MaxDownload: 78000, Latency: 40.20, Loss: 0.0024},
	}
}

func TestCatalog_fullMesh(t *testing.T) {
	peers := testPeers()
	edges := Catalog(peers)

	// 5 peers -> 5*4 ordered pairs.
	require.Len(t, edges, 20)
	assert.Empty(t, AuditFullMesh(edges, peers))

	// Dropping an edge must be caught by the audit.
	assert.Equal(t, []string{edges[0].Key()}, AuditFullMesh(edges[1:], peers)[:1])
}

func TestStar_coversEveryPeerOnce(t *testing.T) {
	peers := testPeers()
	overlay := Star(peers)

	require.Len(t, overlay.Edges, 4)
	seen := make(map[string]int)
	for _, e := range overlay.Edges {
		assert.Equal(t, model.OriginName, e.Source)
		seen[e.Target]++
	}
	for _, p := range peers {
		if p.IsOrigin() {
			continue
		}
		assert.Equal(t, 1, seen[p.Name], "peer %s covered exactly once", p.Name)
	}
}

func TestAllocate_degenerateStarPair(t *testing.T) {
	peers := []model.Peer{
		{Name: model.OriginName, MaxUpload: 25000, MaxDownload: 78000, Latency: 40.20, Loss: 0.0024},
		{Name: "1", MaxUpload: 800, MaxDownload: 9500, Latency: 25.5, Loss: 0.0020},
	}
	overlay := Star(peers)
	allocated, err := Allocate(overlay, PeersByName(peers), 2239815)
	require.NoError(t, err)
	require.Len(t, allocated, 1)

	a := allocated[0]
	assert.Equal(t, 9500, a.Bandwidth)
	assert.Equal(t, 9500, a.AllocatedBandwidth)
	assert.Equal(t, "65.70", a.FormatLatency())
	assert.Equal(t, "0.0024", a.FormatLoss())
}

func TestAllocate_clampAndRedistribute(t *testing.T) {
	// Source with 10000 Kbit/s upload, three slow sinks and one fast one:
	// pass one clamps the slow sinks at 2000 each, pass two grants the
	// remaining 4000 to the fast sink. The budget is spent exactly.
	peers := []model.Peer{
		{Name: model.OriginName, MaxUpload: 10000, MaxDownload: 90000, Latency: 40, Loss: 0.001},
		{Name: "1", MaxUpload: 500, MaxDownload: 2000, Latency: 20, Loss: 0.001},
		{Name: "2", MaxUpload: 500, MaxDownload: 2000, Latency: 20, Loss: 0.001},
		{Name: "3", MaxUpload: 500, MaxDownload: 2000, Latency: 20, Loss: 0.001},
		{Name: "4", MaxUpload: 500, MaxDownload: 10000, Latency: 20, Loss: 0.001},
	}
	overlay := Star(peers)
	allocated, err := Allocate(overlay, PeersByName(peers), 1000)
	require.NoError(t, err)

	byTarget := make(map[string]int)
	total := 0
	for _, a := range allocated {
		byTarget[a.Target] = a.AllocatedBandwidth
		total += a.AllocatedBandwidth
	}
	assert.Equal(t, 2000, byTarget["1"])
	assert.Equal(t, 2000, byTarget["2"])
	assert.Equal(t, 2000, byTarget["3"])
	assert.Equal(t, 4000, byTarget["4"])
	assert.Equal(t, 10000, total)
}

func TestAllocate_noUplinkBudget(t *testing.T) {
	peers := []model.Peer{
		{Name: model.OriginName, MaxUpload: 0, MaxDownload: 78000, Latency: 40, Loss: 0.001},
		{Name: "1", MaxUpload: 800, MaxDownload: 9500, Latency: 25, Loss: 0.002},
	}
	_, err := Allocate(Star(peers), PeersByName(peers), 1000)
	assert.ErrorIs(t, err, model.ErrNoUplinkBudget)
}

// Allocation closure: alloc never exceeds the source upload nor any
// target's download, for sampled populations under the star overlay.
func TestAllocate_closureProperty(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		s := sampler.New(seed)
		peers, err := s.Profiles(12)
		require.NoError(t, err)
		peers = append(peers, s.Origin())
		byName := PeersByName(peers)

		overlay := Star(peers)
		allocated, err := Allocate(overlay, byName, 4293938)
		require.NoError(t, err)

		perSource := make(map[string]int)
		for _, a := range allocated {
			perSource[a.Source] += a.AllocatedBandwidth
			assert.LessOrEqual(t, a.AllocatedBandwidth, byName[a.Target].MaxDownload)
			assert.LessOrEqual(t, a.AllocatedBandwidth, a.Bandwidth)
		}
		for source, sum := range perSource {
			assert.LessOrEqual(t, sum, byName[source].MaxUpload, "seed %d source %s", seed, source)
		}
	}
}

func TestFromPartitioner_acceptsValidTwoTier(t *testing.T) {
	peers := testPeers()
	data := model.OverlayData{
		SuperPeers: []model.OverlaySuperPeer{{Name: "2"}},
		Peer2Peer: []model.OverlayConnection{
			{SourceName: model.OriginName, TargetName: "2"},
			{SourceName: "2", TargetName: "1"},
			{SourceName: "2", TargetName: "3"},
			{SourceName: "2", TargetName: "4"},
		},
	}
	overlay, err := FromPartitioner(data, peers)
	require.NoError(t, err)
	assert.True(t, overlay.TwoTier)
	assert.Equal(t, []string{"2"}, overlay.SuperPeers)
	assert.Len(t, overlay.Edges, 4)
	assert.Equal(t, "two-tier", Describe(overlay))
}

func TestFromPartitioner_rejectsInvalidMappings(t *testing.T) {
	peers := testPeers()

	cases := map[string]model.OverlayData{
		"uncovered peer": {
			SuperPeers: []model.OverlaySuperPeer{{Name: "2"}},
			Peer2Peer: []model.OverlayConnection{
				{SourceName: model.OriginName, TargetName: "2"},
				{SourceName: "2", TargetName: "1"},
				{SourceName: "2", TargetName: "3"},
			},
		},
		"double coverage": {
			SuperPeers: []model.OverlaySuperPeer{{Name: "2"}},
			Peer2Peer: []model.OverlayConnection{
				{SourceName: model.OriginName, TargetName: "2"},
				{SourceName: "2", TargetName: "1"},
				{SourceName: "2", TargetName: "3"},
				{SourceName: "2", TargetName: "4"},
				{SourceName: model.OriginName, TargetName: "4"},
			},
		},
		"super-peer without leaves": {
			SuperPeers: []model.OverlaySuperPeer{{Name: "2"}, {Name: "3"}},
			Peer2Peer: []model.OverlayConnection{
				{SourceName: model.OriginName, TargetName: "2"},
				{SourceName: model.OriginName, TargetName: "3"},
				{SourceName: "2", TargetName: "1"},
				{SourceName: "2", TargetName: "4"},
			},
		},
		"relay that is not a super-peer": {
			SuperPeers: []model.OverlaySuperPeer{{Name: "2"}},
			Peer2Peer: []model.OverlayConnection{
				{SourceName: model.OriginName, TargetName: "2"},
				{SourceName: "2", TargetName: "1"},
				{SourceName: "1", TargetName: "3"},
				{SourceName: "2", TargetName: "4"},
			},
		},
		"super-peer not fed by origin": {
			SuperPeers: []model.OverlaySuperPeer{{Name: "2"}},
			Peer2Peer: []model.OverlayConnection{
				{SourceName: "2", TargetName: "1"},
				{SourceName: "2", TargetName: "3"},
				{SourceName: "2", TargetName: "4"},
			},
		},
	}
	for name, data := range cases {
		_, err := FromPartitioner(data, peers)
		assert.ErrorIs(t, err, model.ErrOverlayInvalid, name)
	}
}

func TestProjectTransferMs(t *testing.T) {
	// 2239815 bytes over 761 Kbit/s is roughly 23.5 seconds on the wire.
	assert.Equal(t, 23546, ProjectTransferMs(2239815, 761))
	assert.Equal(t, 0, ProjectTransferMs(2239815, 0))
}

func TestBuildInputData_shuffledButComplete(t *testing.T) {
	peers := testPeers()
	rngA := newTestRand(1)
	data := BuildInputData(peers, "test.pdf", 5000, rngA)

	assert.Equal(t, "test.pdf", data.Filename)
	assert.Equal(t, int64(5000), data.Filesize)
	require.Len(t, data.Peers, 5)
	require.Len(t, data.Connections, 20)

	keys := make(map[string]bool)
	for _, c := range data.Connections {
		keys[c.SourceName+"-"+c.TargetName] = true
	}
	assert.Len(t, keys, 20)
}
