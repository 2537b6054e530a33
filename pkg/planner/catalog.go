// Package planner turns sampled peer profiles into a dissemination plan:
// the full-mesh edge catalog, the selected overlay, and the per-edge
// bandwidth allocation the fabric will enforce.
package planner

import (
	"fmt"
	"sort"

	"github.com/p2plab/p2p-testbed/pkg/model"
	"golang.org/x/exp/rand"
)

// Catalog derives the complete ordered-pair edge listing from the peer
// set. The result is sorted by (source, target) in peer emission order,
// which keeps downstream artifacts stable for a given sample.
func Catalog(peers []model.Peer) []model.Edge {
	edges := make([]model.Edge, 0, len(peers)*(len(peers)-1))
	for _, src := range peers {
		for _, dst := range peers {
			if src.Name == dst.Name {
				continue
			}
			edges = append(edges, model.DeriveEdge(src, dst))
		}
	}
	return edges
}

// AuditFullMesh reports the ordered pairs missing from the catalog. A
// complete catalog returns an empty slice.
func AuditFullMesh(edges []model.Edge, peers []model.Peer) []string {
	present := make(map[string]bool, len(edges))
	for _, e := range edges {
		present[e.Key()] = true
	}
	var missing []string
	for _, src := range peers {
		for _, dst := range peers {
			if src.Name == dst.Name {
				continue
			}
			key := src.Name + "-" + dst.Name
			if !present[key] {
				missing = append(missing, key)
			}
		}
	}
	sort.Strings(missing)
	return missing
}

// PeersByName indexes a peer slice for edge derivation lookups.
func PeersByName(peers []model.Peer) map[string]model.Peer {
	m := make(map[string]model.Peer, len(peers))
	for _, p := range peers {
		m[p.Name] = p
	}
	return m
}

// BuildInputData assembles the input artifact for the overlay
// partitioner: peer capacities plus the full shuffled connection listing.
// Shuffling only randomises the inspection order of the artifact; the
// in-memory catalog stays sorted.
func BuildInputData(peers []model.Peer, fileName string, fileSize int64, rng *rand.Rand) model.InputData {
	data := model.InputData{
		Filename: fileName,
		Filesize: fileSize,
	}
	for _, p := range peers {
		data.Peers = append(data.Peers, model.InputPeer{
			Name:        p.Name,
			MaxUpload:   p.MaxUpload,
			MaxDownload: p.MaxDownload,
		})
	}
	for _, e := range Catalog(peers) {
		data.Connections = append(data.Connections, model.InputConnection{
			SourceName: e.Source,
			TargetName: e.Target,
			Bandwidth:  e.Bandwidth,
			Latency:    e.FormatLatency(),
			Loss:       e.FormatLoss(),
		})
	}
	rng.Shuffle(len(data.Connections), func(i, j int) {
		data.Connections[i], data.Connections[j] = data.Connections[j], data.Connections[i]
	})
	return data
}

// EdgeFor derives the catalog edge of an ordered pair from the indexed
// peer set.
func EdgeFor(byName map[string]model.Peer, source, target string) (model.Edge, error) {
	src, ok := byName[source]
	if !ok {
		return model.Edge{}, fmt.Errorf("unknown source peer %q", source)
	}
	dst, ok := byName[target]
	if !ok {
		return model.Edge{}, fmt.Errorf("unknown target peer %q", target)
	}
	return model.DeriveEdge(src, dst), nil
}
