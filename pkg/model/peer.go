package model

import "fmt"

// OriginName is the reserved peer name of the endpoint that initially
// holds the artifact. All other peers are named by digit strings "1".."N".
const OriginName = "origin"

// Peer represents a single endpoint profile in the testbed.
// Upload and download capacities are integer Kbit/s, latency is in
// milliseconds and loss is a fraction in [0, 1]. Profiles are immutable
// after sampling.
type Peer struct {
	Name        string  `json:"name"`
	MaxUpload   int     `json:"maxUpload"`
	MaxDownload int     `json:"maxDownload"`
	Latency     float64 `json:"latency"`
	Loss        float64 `json:"loss"`
}

// IsOrigin reports whether the peer is the artifact source.
func (p Peer) IsOrigin() bool {
	return p.Name == OriginName
}

func (p Peer) String() string {
	return fmt.Sprintf("%s: Max Upload: %d Kbps, Max Download: %d Kbps, Latency: %.2f ms, Packet Loss: %.4f%%",
		p.Name, p.MaxUpload, p.MaxDownload, p.Latency, p.Loss*100)
}

// Validate checks the profile invariants of a sampled peer.
func (p Peer) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("peer has no name")
	}
	if p.MaxUpload <= 0 || p.MaxDownload <= 0 {
		return fmt.Errorf("peer %s: capacities must be positive (up=%d, down=%d)", p.Name, p.MaxUpload, p.MaxDownload)
	}
	if p.MaxUpload >= p.MaxDownload && !p.IsOrigin() {
		// Sampled access technologies are asymmetric; the origin is the
		// only profile allowed to come close.
		return fmt.Errorf("peer %s: upload %d is not below download %d", p.Name, p.MaxUpload, p.MaxDownload)
	}
	if p.Latency < 0 {
		return fmt.Errorf("peer %s: negative latency %f", p.Name, p.Latency)
	}
	if p.Loss < 0 || p.Loss > 1 {
		return fmt.Errorf("peer %s: loss %f out of [0,1]", p.Name, p.Loss)
	}
	return nil
}
