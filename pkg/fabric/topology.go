package fabric

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/p2plab/p2p-testbed/pkg/model"
	nethelper "github.com/p2plab/p2p-testbed/pkg/network-helper"
	"gopkg.in/yaml.v2"
)

// Fixed identity of the emitted fabric.
const (
	TopologyName   = "containerlab-topology"
	TopologyPrefix = "p2p"

	// TrackerNode is the endpoint id of the confirmation tracker.
	TrackerNode = "tracker"
)

// In-container paths of the bound artifacts.
const (
	ArtifactPath       = "/app/mydocument.pdf"
	ShapingScriptPath  = "/app/apply-shaping.sh"
	ShapingDonePath    = "/app/shaping.done"
	ReceivedFromOrigin = "/app/receivedFromOrigin.pdf"
)

// ReceivedFromSuperPeer returns the landing path of a leaf fed by the
// named super-peer.
func ReceivedFromSuperPeer(superPeer string) string {
	return "/app/receivedFrom-" + superPeer + ".pdf"
}

// Node is one endpoint of the containerlab document.
type Node struct {
	Kind     string            `yaml:"kind"`
	Image    string            `yaml:"image,omitempty"`
	MgmtIPv4 string            `yaml:"mgmt-ipv4,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`
	Labels   map[string]string `yaml:"labels,omitempty"`
	Binds    []string          `yaml:"binds,omitempty"`
	Exec     []string          `yaml:"exec,omitempty"`
	Cmd      string            `yaml:"cmd,omitempty"`
	Ports    []string          `yaml:"ports,omitempty"`
}

// Link wires two endpoint interfaces together.
type Link struct {
	Endpoints []string `yaml:"endpoints"`
}

// Mgmt describes the management network.
type Mgmt struct {
	Network    string `yaml:"network"`
	IPv4Subnet string `yaml:"ipv4-subnet"`
}

// TopologyBody holds the node and link maps of the document.
type TopologyBody struct {
	Nodes map[string]Node `yaml:"nodes"`
	Links []Link          `yaml:"links"`
}

// Topology is the full declarative fabric description.
type Topology struct {
	Name     string       `yaml:"name"`
	Prefix   string       `yaml:"prefix"`
	Mgmt     Mgmt         `yaml:"mgmt"`
	Topology TopologyBody `yaml:"topology"`
}

// Input carries everything the builder needs to emit a fabric.
type Input struct {
	Peers         []model.Peer // origin included
	Overlay       model.Overlay
	Details       []model.ConnectionDetail
	RunID         string
	EtcdEndpoints []string

	// Host paths bound into the endpoints.
	ArtifactHostPath string
	DetailsHostPath  string
	ScriptDir        string // generated shaping scripts land here

	Image        string
	TrackerImage string
}

// connection is the resolved addressing of one shaped link.
type connection struct {
	source      string
	target      string
	sourceIface string
	targetIface string
	sourceIP    string
	targetIP    string
}

// Build assembles the topology document and the per-endpoint shaping
// scripts. The scripts are written under in.ScriptDir, one per sending
// endpoint, and bound to ShapingScriptPath inside the container.
func Build(in Input) (*Topology, error) {
	byName := make(map[string]model.Peer, len(in.Peers))
	for _, p := range in.Peers {
		byName[p.Name] = p
	}
	for _, e := range in.Overlay.Edges {
		if _, ok := byName[e.Source]; !ok {
			return nil, fmt.Errorf("fabric: overlay names unknown peer %q", e.Source)
		}
		if _, ok := byName[e.Target]; !ok {
			return nil, fmt.Errorf("fabric: overlay names unknown peer %q", e.Target)
		}
	}

	conns := resolveConnections(in.Overlay)

	topo := &Topology{
		Name:   TopologyName,
		Prefix: TopologyPrefix,
		Mgmt: Mgmt{
			Network:    "fixedips",
			IPv4Subnet: nethelper.MgmtSubnet,
		},
		Topology: TopologyBody{
			Nodes: make(map[string]Node),
		},
	}
	for _, c := range conns {
		topo.Topology.Links = append(topo.Topology.Links, Link{
			Endpoints: []string{
				c.source + ":" + c.sourceIface,
				c.target + ":" + c.targetIface,
			},
		})
	}

	total := len(in.Peers) // origin + N peers; the tracker is not counted
	expectedConfirmations := total

	topo.Topology.Nodes[TrackerNode] = Node{
		Kind:     "linux",
		Image:    in.TrackerImage,
		MgmtIPv4: nethelper.MgmtTrackerIP,
		Env: map[string]string{
			"ROLE":           "tracker",
			"TOTAL_PEERS":    strconv.Itoa(expectedConfirmations),
			"RUN_ID":         in.RunID,
			"ETCD_ENDPOINTS": strings.Join(in.EtcdEndpoints, ","),
		},
		Labels: map[string]string{"role": "tracker", "group": "control"},
		Exec:   []string{"sleep 5"},
		Cmd:    "/app/peer-app",
		Ports:  []string{"5050:5050"},
	}

	mgmtCounter := 0
	for _, p := range in.Peers {
		node, err := buildPeerNode(in, p, conns, total, &mgmtCounter)
		if err != nil {
			return nil, err
		}
		topo.Topology.Nodes[p.Name] = node
	}
	return topo, nil
}

// resolveConnections assigns interfaces and link subnets to the overlay
// edges, in overlay emission order. Interface numbering is per node,
// subnet numbering is global.
func resolveConnections(overlay model.Overlay) []connection {
	ifaceCounter := make(map[string]int)
	next := func(node string) string {
		ifaceCounter[node]++
		return "eth" + strconv.Itoa(ifaceCounter[node])
	}

	conns := make([]connection, 0, len(overlay.Edges))
	for i, e := range overlay.Edges {
		k := i + 1
		conns = append(conns, connection{
			source:      e.Source,
			target:      e.Target,
			sourceIface: next(e.Source),
			targetIface: next(e.Target),
			sourceIP:    nethelper.LinkSourceIP(k),
			targetIP:    nethelper.LinkTargetIP(k),
		})
	}
	return conns
}

func buildPeerNode(in Input, p model.Peer, conns []connection, total int, mgmtCounter *int) (Node, error) {
	role := roleOf(in.Overlay, p)

	env := map[string]string{
		"ROLE":           role,
		"TOTAL_PEERS":    strconv.Itoa(total),
		"SOURCE_PEER":    p.Name,
		"RUN_ID":         in.RunID,
		"TRACKER_IP":     nethelper.MgmtTrackerIP,
		"ETCD_ENDPOINTS": strings.Join(in.EtcdEndpoints, ","),
	}

	var mgmtIP string
	switch {
	case p.IsOrigin():
		mgmtIP = nethelper.MgmtOriginIP
	default:
		mgmtIP = nethelper.MgmtPeerIP(*mgmtCounter)
		*mgmtCounter++
	}
	env["ORIGIN_IP"] = nethelper.MgmtOriginIP

	// Outbound links: CONNECTION_i records plus TARGET_PEERS.
	var targets []string
	connIndex := 0
	for _, c := range conns {
		if c.source != p.Name {
			continue
		}
		connIndex++
		env["CONNECTION_"+strconv.Itoa(connIndex)] = fmt.Sprintf("%s:%s,%s:%s",
			c.sourceIface, c.sourceIP, c.target, c.targetIP)
		targets = append(targets, c.target)
	}
	if len(targets) > 0 {
		env["TARGET_PEERS"] = strings.Join(targets, ",")
	}

	// Inbound link: the address this endpoint listens on and the address
	// it dials to fetch the artifact.
	for _, c := range conns {
		if c.target != p.Name {
			continue
		}
		env["IP_ADDRESS"] = c.targetIP
		env["SUPER_PEER"] = c.source
		env["SUPER_PEER_IP"] = c.sourceIP
		break
	}
	if p.IsOrigin() {
		env["IP_ADDRESS"] = mgmtIP
	}

	node := Node{
		Kind:     "linux",
		Image:    in.Image,
		MgmtIPv4: mgmtIP,
		Env:      env,
		Labels:   labelsFor(role),
		Binds: []string{
			in.DetailsHostPath + ":/app/" + filepath.Base(in.DetailsHostPath) + ":ro",
		},
		Cmd: "/app/peer-app",
	}

	if p.IsOrigin() {
		node.Binds = append(node.Binds, in.ArtifactHostPath+":"+ArtifactPath+":ro")
		node.Ports = []string{"7070:7070"}
	}

	// The shaping script only exists for sending endpoints.
	script := ShapingScript(p.Name, conns, in.Details)
	if script != "" {
		scriptHostPath := fmt.Sprintf("%s/apply-shaping-%s.sh", in.ScriptDir, p.Name)
		if err := ioutil.WriteFile(scriptHostPath, []byte(script), 0755); err != nil {
			return Node{}, fmt.Errorf("write shaping script for %s: %w", p.Name, err)
		}
		node.Binds = append(node.Binds, scriptHostPath+":"+ShapingScriptPath)
	}

	node.Exec = execFor(p, script != "")
	return node, nil
}

func roleOf(overlay model.Overlay, p model.Peer) string {
	switch {
	case p.IsOrigin():
		return "origin"
	case overlay.IsSuperPeer(p.Name):
		return "superpeer"
	default:
		return "leaf"
	}
}

func labelsFor(role string) map[string]string {
	switch role {
	case "origin":
		return map[string]string{"role": "sender", "group": "server"}
	case "superpeer":
		return map[string]string{"role": "receiver/sender", "group": "superpeer"}
	default:
		return map[string]string{"role": "receiver", "group": "peer"}
	}
}

// execFor builds the post-start command list: settle, wait for the origin
// to be reachable, apply shaping, then drop the marker the workload waits
// on before acking the shaping barrier.
func execFor(p model.Peer, hasScript bool) []string {
	cmds := []string{"sleep 5"}
	if !p.IsOrigin() {
		cmds = append(cmds, fmt.Sprintf(
			"/bin/sh -c 'while ! ping -c 1 %s > /dev/null; do echo \"Waiting for origin\"; sleep 1; done'",
			nethelper.MgmtOriginIP))
	}
	if hasScript {
		cmds = append(cmds,
			"chmod +x "+ShapingScriptPath,
			ShapingScriptPath,
		)
	}
	cmds = append(cmds, "touch "+ShapingDonePath)
	return cmds
}

// WriteTopologyFile marshals the document to YAML at path.
func WriteTopologyFile(topo *Topology, path string) error {
	data, err := yaml.Marshal(topo)
	if err != nil {
		return fmt.Errorf("marshal topology: %w", err)
	}
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write topology %s: %w", path, err)
	}
	return nil
}
