package transfer

import (
	"fmt"
	"strconv"
	"strings"
)

// Role names accepted from the ROLE environment variable.
const (
	RoleOrigin    = "origin"
	RoleSuperPeer = "superpeer"
	RoleLeaf      = "leaf"
	RoleTracker   = "tracker"
)

// OriginConfig, SuperPeerConfig, LeafConfig and TrackerConfig carry the
// per-role slice of the environment; EndpointConfig is the tagged variant
// over them. A malformed environment fails parsing loudly instead of
// propagating empty strings into dial loops.

// OriginConfig configures the artifact source.
type OriginConfig struct {
	Connections []ConnectionInfo
	TargetPeers []string
}

// SuperPeerConfig configures a relay: where it fetches the artifact and
// which links it serves.
type SuperPeerConfig struct {
	FeederIP    string
	Connections []ConnectionInfo
	TargetPeers []string
}

// LeafConfig configures a receive-only endpoint.
type LeafConfig struct {
	SuperPeer string
	FeederIP  string
}

// TrackerConfig configures the confirmation barrier.
type TrackerConfig struct {
	Expected int
}

// EndpointConfig is the decoded endpoint environment. Exactly one of the
// role pointers is set, matching Role.
type EndpointConfig struct {
	Role       string
	Name       string
	TotalPeers int
	TrackerIP  string
	OriginIP   string
	RunID      string
	Etcd       []string

	Origin    *OriginConfig
	SuperPeer *SuperPeerConfig
	Leaf      *LeafConfig
	Tracker   *TrackerConfig
}

// ParseEndpointEnv decodes the endpoint environment through the given
// lookup (usually os.LookupEnv).
func ParseEndpointEnv(lookup func(string) (string, bool)) (EndpointConfig, error) {
	get := func(key string) string {
		value, _ := lookup(key)
		return value
	}
	require := func(key string) (string, error) {
		value := get(key)
		if value == "" {
			return "", fmt.Errorf("environment variable %s is not set", key)
		}
		return value, nil
	}

	role, err := require("ROLE")
	if err != nil {
		return EndpointConfig{}, err
	}
	totalStr, err := require("TOTAL_PEERS")
	if err != nil {
		return EndpointConfig{}, err
	}
	total, err := strconv.Atoi(totalStr)
	if err != nil || total <= 0 {
		return EndpointConfig{}, fmt.Errorf("TOTAL_PEERS %q is not a positive integer", totalStr)
	}

	cfg := EndpointConfig{
		Role:       role,
		Name:       get("SOURCE_PEER"),
		TotalPeers: total,
		TrackerIP:  get("TRACKER_IP"),
		OriginIP:   get("ORIGIN_IP"),
		RunID:      get("RUN_ID"),
	}
	if endpoints := get("ETCD_ENDPOINTS"); endpoints != "" {
		cfg.Etcd = strings.Split(endpoints, ",")
	}

	switch role {
	case RoleTracker:
		cfg.Tracker = &TrackerConfig{Expected: total}

	case RoleOrigin:
		conns, err := CollectConnections(lookup)
		if err != nil {
			return EndpointConfig{}, err
		}
		if len(conns) == 0 {
			return EndpointConfig{}, fmt.Errorf("origin has no CONNECTION records")
		}
		cfg.Origin = &OriginConfig{
			Connections: conns,
			TargetPeers: splitPeers(get("TARGET_PEERS")),
		}

	case RoleSuperPeer:
		feeder, err := require("SUPER_PEER_IP")
		if err != nil {
			return EndpointConfig{}, err
		}
		conns, err := CollectConnections(lookup)
		if err != nil {
			return EndpointConfig{}, err
		}
		if len(conns) == 0 {
			return EndpointConfig{}, fmt.Errorf("super-peer has no CONNECTION records")
		}
		cfg.SuperPeer = &SuperPeerConfig{
			FeederIP:    feeder,
			Connections: conns,
			TargetPeers: splitPeers(get("TARGET_PEERS")),
		}

	case RoleLeaf:
		superPeer, err := require("SUPER_PEER")
		if err != nil {
			return EndpointConfig{}, err
		}
		feeder, err := require("SUPER_PEER_IP")
		if err != nil {
			return EndpointConfig{}, err
		}
		cfg.Leaf = &LeafConfig{SuperPeer: superPeer, FeederIP: feeder}

	default:
		return EndpointConfig{}, fmt.Errorf("unknown ROLE %q", role)
	}
	return cfg, nil
}

func splitPeers(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	peers := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			peers = append(peers, trimmed)
		}
	}
	return peers
}
