package planner

import (
	"fmt"

	"github.com/p2plab/p2p-testbed/pkg/model"
)

// Star builds the single-tier overlay: the origin feeds every other peer
// directly, in peer emission order.
func Star(peers []model.Peer) model.Overlay {
	var overlay model.Overlay
	for _, p := range peers {
		if p.IsOrigin() {
			continue
		}
		overlay.Edges = append(overlay.Edges, model.OverlayEdge{
			Source: model.OriginName,
			Target: p.Name,
		})
	}
	return overlay
}

// FromPartitioner validates and accepts a two-tier mapping produced by the
// external graph partitioner. The mapping must cover every non-origin peer
// exactly once, feed every super-peer from the origin, give every
// super-peer at least one leaf, and keep all dissemination paths at
// length two or less. Any violation is reported as ErrOverlayInvalid.
func FromPartitioner(data model.OverlayData, peers []model.Peer) (model.Overlay, error) {
	byName := PeersByName(peers)

	superPeers := make(map[string]bool, len(data.SuperPeers))
	overlay := model.Overlay{TwoTier: true}
	for _, sp := range data.SuperPeers {
		if sp.Name == model.OriginName {
			return model.Overlay{}, fmt.Errorf("%w: origin listed as super-peer", model.ErrOverlayInvalid)
		}
		if _, ok := byName[sp.Name]; !ok {
			return model.Overlay{}, fmt.Errorf("%w: unknown super-peer %q", model.ErrOverlayInvalid, sp.Name)
		}
		if superPeers[sp.Name] {
			return model.Overlay{}, fmt.Errorf("%w: super-peer %q listed twice", model.ErrOverlayInvalid, sp.Name)
		}
		superPeers[sp.Name] = true
		overlay.SuperPeers = append(overlay.SuperPeers, sp.Name)
	}

	covered := make(map[string]string)
	fedFromOrigin := make(map[string]bool)
	leafCount := make(map[string]int)

	for _, c := range data.Peer2Peer {
		if c.SourceName == c.TargetName {
			return model.Overlay{}, fmt.Errorf("%w: self edge %q", model.ErrOverlayInvalid, c.SourceName)
		}
		if _, ok := byName[c.SourceName]; !ok {
			return model.Overlay{}, fmt.Errorf("%w: unknown source %q", model.ErrOverlayInvalid, c.SourceName)
		}
		if _, ok := byName[c.TargetName]; !ok {
			return model.Overlay{}, fmt.Errorf("%w: unknown target %q", model.ErrOverlayInvalid, c.TargetName)
		}
		if c.TargetName == model.OriginName {
			return model.Overlay{}, fmt.Errorf("%w: origin cannot be a target", model.ErrOverlayInvalid)
		}
		if prev, dup := covered[c.TargetName]; dup {
			return model.Overlay{}, fmt.Errorf("%w: peer %q fed by both %q and %q",
				model.ErrOverlayInvalid, c.TargetName, prev, c.SourceName)
		}
		covered[c.TargetName] = c.SourceName

		switch {
		case c.SourceName == model.OriginName:
			fedFromOrigin[c.TargetName] = true
		case superPeers[c.SourceName]:
			leafCount[c.SourceName]++
		default:
			return model.Overlay{}, fmt.Errorf("%w: %q relays without being a super-peer",
				model.ErrOverlayInvalid, c.SourceName)
		}
		overlay.Edges = append(overlay.Edges, model.OverlayEdge{
			Source: c.SourceName,
			Target: c.TargetName,
		})
	}

	for _, p := range peers {
		if p.IsOrigin() {
			continue
		}
		if _, ok := covered[p.Name]; !ok {
			return model.Overlay{}, fmt.Errorf("%w: peer %q unreachable from origin", model.ErrOverlayInvalid, p.Name)
		}
	}
	for sp := range superPeers {
		if !fedFromOrigin[sp] {
			return model.Overlay{}, fmt.Errorf("%w: super-peer %q not fed by origin", model.ErrOverlayInvalid, sp)
		}
		if leafCount[sp] == 0 {
			return model.Overlay{}, fmt.Errorf("%w: super-peer %q has no leaves", model.ErrOverlayInvalid, sp)
		}
	}
	return overlay, nil
}

// Describe names the overlay variant for logs and the results log.
func Describe(o model.Overlay) string {
	if o.TwoTier {
		return "two-tier"
	}
	return "star"
}
