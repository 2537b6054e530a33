package planner

import (
	"fmt"

	"github.com/p2plab/p2p-testbed/pkg/model"
)

// Allocate divides every source peer's upload budget across its overlay
// fanout in two passes. Pass one clamps targets whose download ceiling is
// below the equal share and takes them out of the pool; pass two splits
// the remaining budget evenly over the remaining targets, still capped by
// each target's download ceiling. Targets are processed in overlay
// emission order, which makes the result deterministic.
func Allocate(overlay model.Overlay, byName map[string]model.Peer, fileBytes int64) ([]model.AllocatedEdge, error) {
	var allocated []model.AllocatedEdge

	for _, source := range overlay.Sources() {
		src, ok := byName[source]
		if !ok {
			return nil, fmt.Errorf("allocate: unknown source peer %q", source)
		}
		targets := overlay.TargetsOf(source)
		if src.MaxUpload == 0 {
			return nil, fmt.Errorf("%w: %s with %d targets", model.ErrNoUplinkBudget, source, len(targets))
		}

		share := src.MaxUpload / len(targets)
		alloc := make(map[string]int, len(targets))
		assigned := make(map[string]bool, len(targets))

		remainingBudget := src.MaxUpload
		remainingTargets := len(targets)

		// Pass 1: clamp by sink.
		for _, target := range targets {
			dst, ok := byName[target]
			if !ok {
				return nil, fmt.Errorf("allocate: unknown target peer %q", target)
			}
			if dst.MaxDownload < share {
				alloc[target] = dst.MaxDownload
				assigned[target] = true
				remainingBudget -= dst.MaxDownload
				remainingTargets--
			}
		}

		// Pass 2: redistribute what the clamped sinks left on the table.
		redistributed := 0
		if remainingTargets > 0 {
			redistributed = remainingBudget / remainingTargets
		}
		for _, target := range targets {
			if assigned[target] {
				continue
			}
			dst := byName[target]
			grant := redistributed
			if dst.MaxDownload < grant {
				grant = dst.MaxDownload
			}
			alloc[target] = grant
		}

		total := 0
		for _, v := range alloc {
			total += v
		}
		if total > src.MaxUpload {
			return nil, fmt.Errorf("%w: %s allocated %d of %d", model.ErrOverAllocation, source, total, src.MaxUpload)
		}

		for _, target := range targets {
			edge, err := EdgeFor(byName, source, target)
			if err != nil {
				return nil, err
			}
			allocated = append(allocated, model.AllocatedEdge{
				Edge:                edge,
				AllocatedBandwidth:  alloc[target],
				ProjectedTransferMs: ProjectTransferMs(fileBytes, alloc[target]),
			})
		}
	}
	return allocated, nil
}

// ProjectTransferMs estimates the wire time of the artifact on a shaped
// edge: file kilobytes over kilobytes-per-second, in milliseconds. A zero
// allocation yields zero, the degenerate-but-legal case.
func ProjectTransferMs(fileBytes int64, allocKbit int) int {
	if allocKbit <= 0 {
		return 0
	}
	speedKBytesPerSecond := float64(allocKbit) / 8.0
	fileKilobytes := float64(fileBytes) / 1000.0
	return int((fileKilobytes / speedKBytesPerSecond) * 1000)
}

// ConnectionDetails renders the allocated plan as the wire artifact bound
// into every endpoint and read back by the validator.
func ConnectionDetails(allocated []model.AllocatedEdge) []model.ConnectionDetail {
	details := make([]model.ConnectionDetail, 0, len(allocated))
	for _, a := range allocated {
		details = append(details, model.ConnectionDetail{
			SourceName: a.Source,
			TargetName: a.Target,
			Bandwidth:  a.AllocatedBandwidth,
			Latency:    a.FormatLatency(),
			Loss:       a.FormatLoss(),
		})
	}
	return details
}
