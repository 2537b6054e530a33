// Package fabric translates a dissemination plan into the declarative
// topology consumed by the container runtime, wires the per-endpoint
// environment, and generates the shaping scripts that enforce each
// edge's latency, loss and bandwidth on the sending side.
package fabric

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Runtime is the contract of the container runtime collaborator. The
// testbed never manages namespaces itself; it hands the runtime a
// topology file and later executes probe commands inside endpoints.
type Runtime interface {
	// Deploy materialises the topology description.
	Deploy(ctx context.Context, topologyPath string) error

	// Destroy tears the fabric down. Best effort; errors are reported but
	// a failed teardown does not change the run verdict.
	Destroy(ctx context.Context, topologyPath string) error

	// Exec runs a shell command inside the named endpoint and returns its
	// combined output.
	Exec(ctx context.Context, node string, command string) (string, error)

	// ExecDetached starts a shell command inside the named endpoint
	// without waiting for it (used for one-shot probe servers).
	ExecDetached(ctx context.Context, node string, command string) error
}

// CLIRuntime drives containerlab and the container engine through their
// command-line interfaces.
type CLIRuntime struct {
	DeployCommand   string // e.g. "containerlab"
	ExecCommand     string // e.g. "docker"
	ContainerPrefix string // e.g. "p2p-containerlab-topology"
	Logger          *logrus.Logger
}

// ContainerName maps an endpoint id to the runtime's container name.
func (r *CLIRuntime) ContainerName(node string) string {
	return r.ContainerPrefix + "-" + node
}

// Deploy implements Runtime.
func (r *CLIRuntime) Deploy(ctx context.Context, topologyPath string) error {
	cmd := exec.CommandContext(ctx, r.DeployCommand, "deploy", "-t", topologyPath, "--reconfigure")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("deploy %s: %w: %s", topologyPath, err, strings.TrimSpace(string(out)))
	}
	r.Logger.Debugf("Deployed topology %s", topologyPath)
	return nil
}

// Destroy implements Runtime.
func (r *CLIRuntime) Destroy(ctx context.Context, topologyPath string) error {
	cmd := exec.CommandContext(ctx, r.DeployCommand, "destroy", "-t", topologyPath, "--cleanup")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("destroy %s: %w: %s", topologyPath, err, strings.TrimSpace(string(out)))
	}
	r.Logger.Debugf("Destroyed topology %s", topologyPath)
	return nil
}

// Exec implements Runtime.
func (r *CLIRuntime) Exec(ctx context.Context, node string, command string) (string, error) {
	cmd := exec.CommandContext(ctx, r.ExecCommand, "exec", r.ContainerName(node), "sh", "-c", command)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("exec in %s: %w", node, err)
	}
	return string(out), nil
}

// ExecDetached implements Runtime.
func (r *CLIRuntime) ExecDetached(ctx context.Context, node string, command string) error {
	cmd := exec.CommandContext(ctx, r.ExecCommand, "exec", "-d", r.ContainerName(node), "sh", "-c", command)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("exec detached in %s: %w: %s", node, err, strings.TrimSpace(string(out)))
	}
	return nil
}
