package transfer

import (
	"fmt"
	"strconv"
	"strings"
)

// ConnectionInfo is one outbound overlay link of an endpoint, decoded
// from a CONNECTION_<i> environment record of the form
// "<iface>:<localIp>,<targetName>:<targetIp>".
type ConnectionInfo struct {
	Iface      string
	LocalIP    string
	TargetPeer string
	TargetIP   string
}

// ParseConnectionInfo decodes a single CONNECTION record. Malformed
// records are rejected with a descriptive error instead of propagating
// half-parsed values.
func ParseConnectionInfo(value string) (ConnectionInfo, error) {
	halves := strings.Split(value, ",")
	if len(halves) != 2 {
		return ConnectionInfo{}, fmt.Errorf("connection record %q: want two comma-separated halves", value)
	}
	local := strings.Split(strings.TrimSpace(halves[0]), ":")
	remote := strings.Split(strings.TrimSpace(halves[1]), ":")
	if len(local) != 2 || len(remote) != 2 {
		return ConnectionInfo{}, fmt.Errorf("connection record %q: each half must be name:ip", value)
	}
	info := ConnectionInfo{
		Iface:      local[0],
		LocalIP:    local[1],
		TargetPeer: remote[0],
		TargetIP:   remote[1],
	}
	if info.Iface == "" || info.LocalIP == "" || info.TargetPeer == "" || info.TargetIP == "" {
		return ConnectionInfo{}, fmt.Errorf("connection record %q: empty field", value)
	}
	return info, nil
}

// CollectConnections reads CONNECTION_1..CONNECTION_k from the given
// environment lookup until the first missing index.
func CollectConnections(lookup func(string) (string, bool)) ([]ConnectionInfo, error) {
	var infos []ConnectionInfo
	for i := 1; ; i++ {
		value, ok := lookup("CONNECTION_" + strconv.Itoa(i))
		if !ok {
			break
		}
		info, err := ParseConnectionInfo(value)
		if err != nil {
			return nil, fmt.Errorf("CONNECTION_%d: %w", i, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
