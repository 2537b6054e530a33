// Package validator measures every shaped overlay edge from inside its
// source endpoint and checks that the fabric enforces the planned
// latency and bandwidth, then verifies artifact integrity by content
// hash.
package validator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ParsePingAverage extracts the mean round-trip time in milliseconds from
// a ping summary ("rtt min/avg/max/mdev = a/b/c/d ms"). The average is the
// second value after "=", so Busybox's "round-trip min/avg/max = a/b/c ms"
// parses the same way.
func ParsePingAverage(output string) (float64, error) {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "avg") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq < 0 {
			continue
		}
		values := strings.Split(line[eq+1:], "/")
		if len(values) < 3 {
			continue
		}
		avg := strings.ReplaceAll(strings.TrimSpace(values[1]), ",", ".")
		value, err := strconv.ParseFloat(avg, 64)
		if err != nil {
			return 0, fmt.Errorf("parse ping average %q: %w", avg, err)
		}
		return value, nil
	}
	return 0, fmt.Errorf("no rtt summary in ping output")
}

// ParseIperfReceiverKbit extracts the receiver-side bit rate from iperf3
// JSON output (-J) and normalises it to Kbit/s. The receiver side is the
// one that saw the shaped rate.
func ParseIperfReceiverKbit(output string) (float64, error) {
	bits := gjson.Get(output, "end.sum_received.bits_per_second")
	if !bits.Exists() {
		if errMsg := gjson.Get(output, "error"); errMsg.Exists() {
			return 0, fmt.Errorf("iperf3: %s", errMsg.String())
		}
		return 0, fmt.Errorf("no receiver bit rate in iperf3 output")
	}
	return bits.Float() / 1000, nil
}

// ParseSha256 extracts the digest from "sha256sum" output ("<hex>  <path>").
func ParseSha256(output string) (string, error) {
	fields := strings.Fields(strings.TrimSpace(output))
	if len(fields) < 1 || len(fields[0]) != 64 {
		return "", fmt.Errorf("no sha256 digest in %q", strings.TrimSpace(output))
	}
	return strings.ToLower(fields[0]), nil
}
