package model

// OverlayEdge is a single dissemination hop: the source serves the
// artifact, the target receives it.
type OverlayEdge struct {
	Source string `json:"sourceName"`
	Target string `json:"targetName"`
}

// Overlay is the subset of the full mesh that the dissemination actually
// uses. In the star variant the origin feeds every peer directly; in the
// two-tier variant the origin feeds the super-peers, which relay to the
// leaves assigned to them.
type Overlay struct {
	TwoTier    bool          `json:"twoTier"`
	Edges      []OverlayEdge `json:"edges"`
	SuperPeers []string      `json:"superPeers"`
}

// TargetsOf returns the overlay fanout of a source peer, in the order the
// overlay was emitted. The order matters: the allocation pass processes
// targets in exactly this order.
func (o Overlay) TargetsOf(source string) []string {
	var targets []string
	for _, e := range o.Edges {
		if e.Source == source {
			targets = append(targets, e.Target)
		}
	}
	return targets
}

// Sources returns the distinct sending peers of the overlay, in first
// appearance order.
func (o Overlay) Sources() []string {
	seen := make(map[string]bool)
	var sources []string
	for _, e := range o.Edges {
		if !seen[e.Source] {
			seen[e.Source] = true
			sources = append(sources, e.Source)
		}
	}
	return sources
}

// SuperPeerOf returns the overlay parent of the given peer, or OriginName
// when the peer is fed by the origin directly.
func (o Overlay) SuperPeerOf(peer string) string {
	for _, e := range o.Edges {
		if e.Target == peer {
			return e.Source
		}
	}
	return OriginName
}

// IsSuperPeer reports whether the named peer relays to at least one leaf.
func (o Overlay) IsSuperPeer(peer string) bool {
	for _, sp := range o.SuperPeers {
		if sp == peer {
			return true
		}
	}
	return false
}
