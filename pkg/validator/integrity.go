package validator

import (
	"context"
	"fmt"
	"strconv"

	"github.com/p2plab/p2p-testbed/pkg/fabric"
	"github.com/p2plab/p2p-testbed/pkg/model"
	"github.com/sirupsen/logrus"
)

// CandidatePaths lists where a received artifact may live inside an
// endpoint, in search order: the origin bind path, the direct-from-origin
// landing path, then the per-super-peer landing paths.
func CandidatePaths(peerCount int) []string {
	paths := []string{fabric.ArtifactPath, fabric.ReceivedFromOrigin}
	for i := 1; i <= peerCount; i++ {
		paths = append(paths, fabric.ReceivedFromSuperPeer(strconv.Itoa(i)))
	}
	return paths
}

// Integrity verifies that every endpoint holds a byte-identical copy of
// the origin artifact.
type Integrity struct {
	Runtime fabric.Runtime
	Logger  *logrus.Logger
}

// CheckEndpoint hashes the first candidate file present in the endpoint
// and compares it with the origin hash. A missing file maps to
// ErrMissingArtifact, a differing digest to ErrHashMismatch.
func (c *Integrity) CheckEndpoint(ctx context.Context, node, originHash string, candidates []string) error {
	for _, path := range candidates {
		out, err := c.Runtime.Exec(ctx, node, "test -f "+path+" && sha256sum "+path)
		if err != nil {
			// Non-zero exit means the candidate does not exist; try the
			// next path.
			continue
		}
		digest, err := ParseSha256(out)
		if err != nil {
			return fmt.Errorf("endpoint %s: %w", node, err)
		}
		if digest != originHash {
			return fmt.Errorf("%w: endpoint %s path %s has %s, want %s",
				model.ErrHashMismatch, node, path, digest, originHash)
		}
		c.Logger.Infof("Endpoint %s: hash matches (%s)", node, path)
		return nil
	}
	return fmt.Errorf("%w: endpoint %s has none of the candidate files", model.ErrMissingArtifact, node)
}

// CheckAll verifies every listed endpoint and returns the per-endpoint
// failures. An empty map means every copy matched.
func (c *Integrity) CheckAll(ctx context.Context, nodes []string, originHash string, candidates []string) map[string]error {
	failures := make(map[string]error)
	for _, node := range nodes {
		if err := c.CheckEndpoint(ctx, node, originHash, candidates); err != nil {
			c.Logger.Errorf("Integrity check failed: %v", err)
			failures[node] = err
		}
	}
	return failures
}
