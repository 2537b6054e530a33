package fabric

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/p2plab/p2p-testbed/pkg/model"
)

// ShapingScript renders the tc commands that enforce the allocated edge
// properties on the sending side of every outbound link of the named
// endpoint. A priority qdisc is installed per interface; each peer
// destination gets a netem class carrying delay, loss and rate, selected
// by a u32 filter on the destination address. Endpoints without outbound
// overlay edges get no script.
func ShapingScript(node string, conns []connection, details []model.ConnectionDetail) string {
	detailFor := make(map[string]model.ConnectionDetail, len(details))
	for _, d := range details {
		detailFor[d.SourceName+"-"+d.TargetName] = d
	}

	var b strings.Builder
	wrote := false
	for _, c := range conns {
		if c.source != node {
			continue
		}
		d, ok := detailFor[c.source+"-"+c.target]
		if !ok {
			continue
		}
		if !wrote {
			b.WriteString("#!/bin/sh\n")
			b.WriteString("set -e\n\n")
			wrote = true
		}

		lossFraction, err := strconv.ParseFloat(d.Loss, 64)
		if err != nil {
			lossFraction = 0
		}
		lossPercent := strconv.FormatFloat(lossFraction*100, 'f', 4, 64)

		fmt.Fprintf(&b, "# %s -> %s via %s\n", c.source, c.target, c.sourceIface)
		fmt.Fprintf(&b, "tc qdisc add dev %s root handle 1: prio bands 3\n", c.sourceIface)
		fmt.Fprintf(&b, "tc qdisc add dev %s parent 1:3 handle 30: netem delay %sms loss %s%% rate %dkbit\n",
			c.sourceIface, d.Latency, lossPercent, d.Bandwidth)
		fmt.Fprintf(&b, "tc filter add dev %s parent 1:0 protocol ip u32 match ip dst %s flowid 1:3\n\n",
			c.sourceIface, c.targetIP)
	}
	return b.String()
}
