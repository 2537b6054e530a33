package validator

import (
	"fmt"
	"io/ioutil"
	"sort"
	"strconv"
	"strings"

	"github.com/p2plab/p2p-testbed/pkg/fabric"
	"github.com/p2plab/p2p-testbed/pkg/transfer"
	"gopkg.in/yaml.v2"
)

// ProbesFromTopology recovers the shaped edges from the emitted topology
// description: every CONNECTION_<i> environment record of a node is one
// outbound edge to probe. Reading the description instead of the planner
// state means the validator checks what was actually handed to the
// runtime.
func ProbesFromTopology(path string) ([]Probe, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology %s: %w", path, err)
	}
	var topo fabric.Topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return nil, fmt.Errorf("parse topology %s: %w", path, err)
	}

	var probes []Probe
	nodes := make([]string, 0, len(topo.Topology.Nodes))
	for id := range topo.Topology.Nodes {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	for _, id := range nodes {
		node := topo.Topology.Nodes[id]
		keys := make([]string, 0, len(node.Env))
		for key := range node.Env {
			if strings.HasPrefix(key, "CONNECTION_") {
				keys = append(keys, key)
			}
		}
		sort.Slice(keys, func(i, j int) bool {
			a, _ := strconv.Atoi(strings.TrimPrefix(keys[i], "CONNECTION_"))
			b, _ := strconv.Atoi(strings.TrimPrefix(keys[j], "CONNECTION_"))
			return a < b
		})
		for _, key := range keys {
			info, err := transfer.ParseConnectionInfo(node.Env[key])
			if err != nil {
				return nil, fmt.Errorf("node %s %s: %w", id, key, err)
			}
			probes = append(probes, Probe{
				Source:   id,
				Target:   info.TargetPeer,
				TargetIP: info.TargetIP,
			})
		}
	}
	return probes, nil
}
