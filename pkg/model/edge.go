package model

import (
	"fmt"
	"strconv"
)

// Edge represents the theoretical properties of an ordered peer pair.
// Bandwidth is the capacity ceiling min(source upload, target download);
// the bandwidth actually enforced on the wire is decided later by the
// allocation pass and carried by AllocatedEdge.
type Edge struct {
	Source    string  `json:"sourceName"`
	Target    string  `json:"targetName"`
	Bandwidth int     `json:"bandwidth"`
	Latency   float64 `json:"-"`
	Loss      float64 `json:"-"`
}

// DeriveEdge computes the edge properties for the ordered pair (src, dst)
// from the endpoint attributes: latency adds up, loss takes the worse
// side, bandwidth is capped by the slower of the two directions involved.
func DeriveEdge(src, dst Peer) Edge {
	loss := src.Loss
	if dst.Loss > loss {
		loss = dst.Loss
	}
	bw := src.MaxUpload
	if dst.MaxDownload < bw {
		bw = dst.MaxDownload
	}
	return Edge{
		Source:    src.Name,
		Target:    dst.Name,
		Bandwidth: bw,
		Latency:   src.Latency + dst.Latency,
		Loss:      loss,
	}
}

// Key returns the canonical "source-target" identifier of the edge.
func (e Edge) Key() string {
	return e.Source + "-" + e.Target
}

// FormatLatency renders the latency the way the wire artifacts expect it:
// two fractional digits, dot decimal separator.
func (e Edge) FormatLatency() string {
	return strconv.FormatFloat(e.Latency, 'f', 2, 64)
}

// FormatLoss renders the loss with four fractional digits.
func (e Edge) FormatLoss() string {
	return strconv.FormatFloat(e.Loss, 'f', 4, 64)
}

// AllocatedEdge is an overlay edge augmented with the shaped bandwidth the
// fabric will actually enforce and the projected transfer time it implies.
type AllocatedEdge struct {
	Edge
	AllocatedBandwidth  int `json:"allocatedBandwidth"`
	ProjectedTransferMs int `json:"projectedTransferMs"`
}

func (a AllocatedEdge) String() string {
	return fmt.Sprintf("%s: %d Kbps (cap %d), %s ms, %s loss",
		a.Key(), a.AllocatedBandwidth, a.Bandwidth, a.FormatLatency(), a.FormatLoss())
}
