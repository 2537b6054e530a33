package nethelper

import "fmt"

// Address layout of the fabric. The management network is a fixed /24;
// every shaped link gets its own /24 carved from 172.20.0.0/16 by a
// monotonic counter, with the sending end on .2 and the receiving end
// on .3.
const (
	// MgmtSubnet is the management network of the fabric.
	MgmtSubnet = "172.100.100.0/24"

	// MgmtTrackerIP is the fixed management address of the tracker.
	MgmtTrackerIP = "172.100.100.11"

	// MgmtOriginIP is the fixed management address of the origin.
	MgmtOriginIP = "172.100.100.12"

	// mgmtPeerFirstOctet is where peer management addresses start.
	mgmtPeerFirstOctet = 21

	// linkSubnetFirstOctet is the third octet of the first link subnet.
	linkSubnetFirstOctet = 21
)

// MgmtPeerIP returns the management address of the i-th non-origin,
// non-tracker endpoint (i starting at 0).
func MgmtPeerIP(i int) string {
	return fmt.Sprintf("172.100.100.%d", mgmtPeerFirstOctet+i)
}

// LinkSourceIP returns the sending-side address of the k-th shaped link
// (k starting at 1).
func LinkSourceIP(k int) string {
	return fmt.Sprintf("172.20.%d.2", linkSubnetFirstOctet+k-1)
}

// LinkTargetIP returns the receiving-side address of the k-th shaped link.
func LinkTargetIP(k int) string {
	return fmt.Sprintf("172.20.%d.3", linkSubnetFirstOctet+k-1)
}
