package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	cblog "github.com/cloud-barista/cb-log"
	"github.com/p2plab/p2p-testbed/pkg/fabric"
	"github.com/p2plab/p2p-testbed/pkg/file"
	"github.com/p2plab/p2p-testbed/pkg/model"
	runregistry "github.com/p2plab/p2p-testbed/pkg/run-registry"
	"github.com/p2plab/p2p-testbed/pkg/tracker"
	"github.com/p2plab/p2p-testbed/pkg/transfer"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// CBLogger represents a logger to show execution processes according to the logging level.
var CBLogger *logrus.Logger

func init() {
	// Set cb-log
	env := os.Getenv("CBLOG_ROOT")
	if env != "" {
		CBLogger = cblog.GetLogger("p2p-testbed")
	} else {
		ex, err := os.Executable()
		if err != nil {
			panic(err)
		}
		exePath := filepath.Dir(ex)

		logConfPath := filepath.Join(exePath, "config", "log_conf.yaml")
		if !file.Exists(logConfPath) {
			logConfPath = "/app/config/log_conf.yaml"
		}
		CBLogger = cblog.GetLoggerWithConfigPath("p2p-testbed", logConfPath)
	}
}

func main() {
	cfg, err := transfer.ParseEndpointEnv(os.LookupEnv)
	if err != nil {
		CBLogger.Errorf("Invalid endpoint environment: %v", err)
		os.Exit(model.ExitConfiguration)
	}
	CBLogger.Infof("Endpoint %s starting with role %s (run %s)", cfg.Name, cfg.Role, cfg.RunID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var registry runregistry.Registry
	if len(cfg.Etcd) > 0 {
		registry, err = runregistry.NewEtcd(cfg.Etcd)
		if err != nil {
			CBLogger.Errorf("Coordination plane unavailable: %v", err)
			os.Exit(model.ExitConfiguration)
		}
		defer func() {
			_ = registry.Close()
		}()
	}

	switch cfg.Role {
	case transfer.RoleTracker:
		err = runTracker(ctx, cfg, registry)
	case transfer.RoleOrigin:
		err = runOrigin(ctx, cfg, registry)
	case transfer.RoleSuperPeer:
		err = runSuperPeer(ctx, cfg, registry)
	case transfer.RoleLeaf:
		err = runLeaf(ctx, cfg, registry)
	}
	if err != nil && ctx.Err() == nil {
		CBLogger.Errorf("Role %s failed: %v", cfg.Role, err)
		os.Exit(model.ExitValidation)
	}
}

func runTracker(ctx context.Context, cfg transfer.EndpointConfig, registry runregistry.Registry) error {
	t := tracker.New(cfg.Tracker.Expected, CBLogger)
	result, err := t.Serve(ctx, ":"+strconv.Itoa(transfer.TrackerPort), tracker.DeadlineFor(cfg.Tracker.Expected))

	if registry != nil {
		pubCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if pubErr := registry.PutTrackerResult(pubCtx, cfg.RunID, result); pubErr != nil {
			CBLogger.Errorf("Publishing tracker result failed: %v", pubErr)
		}
	}
	return err
}

// awaitShaping blocks until this endpoint's shaping rules are applied and
// acks them on the coordination plane.
func awaitShaping(ctx context.Context, cfg transfer.EndpointConfig, registry runregistry.Registry) error {
	if err := transfer.WaitForFile(ctx, fabric.ShapingDonePath, CBLogger); err != nil {
		return err
	}
	if registry == nil {
		return nil
	}
	return registry.AckShaping(ctx, cfg.RunID, cfg.Name)
}

func runOrigin(ctx context.Context, cfg transfer.EndpointConfig, registry runregistry.Registry) error {
	if err := awaitShaping(ctx, cfg, registry); err != nil {
		return err
	}

	// The listener must not come up before every link in the fabric is
	// shaped, or early transfers would run over unshaped links.
	if registry != nil {
		CBLogger.Infof("Waiting for %d endpoints to finish shaping", cfg.TotalPeers)
		if err := registry.WaitShaped(ctx, cfg.RunID, cfg.TotalPeers); err != nil {
			return fmt.Errorf("shaping barrier: %w", err)
		}
	} else {
		delay := transfer.SettleDelay(cfg.TotalPeers)
		CBLogger.Infof("No coordination plane; settling for %v", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	trackerAddr := cfg.TrackerIP + ":" + strconv.Itoa(transfer.TrackerPort)
	var confirmOnce sync.Once

	g, gctx := errgroup.WithContext(ctx)
	for _, conn := range cfg.Origin.Connections {
		addr := conn.LocalIP + ":" + strconv.Itoa(transfer.OriginPort)
		sender := &transfer.Sender{
			FilePath: fabric.ArtifactPath,
			Logger:   CBLogger,
			OnBound: func(string) {
				confirmOnce.Do(func() {
					CBLogger.Infof("Data transfer start time: %s", time.Now().Format(time.RFC3339Nano))
					if err := transfer.SendConfirmation(gctx, trackerAddr, CBLogger); err != nil {
						CBLogger.Errorf("Origin confirmation failed: %v", err)
					}
				})
			},
		}
		g.Go(func() error {
			return sender.Serve(gctx, addr)
		})
	}
	return g.Wait()
}

func runSuperPeer(ctx context.Context, cfg transfer.EndpointConfig, registry runregistry.Registry) error {
	if err := awaitShaping(ctx, cfg, registry); err != nil {
		return err
	}
	if err := transfer.WaitForOrigin(ctx, cfg.OriginIP, CBLogger); err != nil {
		return err
	}

	feederAddr := cfg.SuperPeer.FeederIP + ":" + strconv.Itoa(transfer.OriginPort)
	result, err := transfer.Receive(ctx, feederAddr, fabric.ReceivedFromOrigin, CBLogger)
	if err != nil {
		return err
	}
	publishStat(cfg, registry, result)

	trackerAddr := cfg.TrackerIP + ":" + strconv.Itoa(transfer.TrackerPort)
	if err := transfer.SendConfirmation(ctx, trackerAddr, CBLogger); err != nil {
		return err
	}

	// Relay: once the artifact landed, serve it to the leaves.
	g, gctx := errgroup.WithContext(ctx)
	for _, conn := range cfg.SuperPeer.Connections {
		addr := conn.LocalIP + ":" + strconv.Itoa(transfer.SuperPeerPort)
		sender := &transfer.Sender{FilePath: fabric.ReceivedFromOrigin, Logger: CBLogger}
		g.Go(func() error {
			return sender.Serve(gctx, addr)
		})
	}
	return g.Wait()
}

func runLeaf(ctx context.Context, cfg transfer.EndpointConfig, registry runregistry.Registry) error {
	if err := awaitShaping(ctx, cfg, registry); err != nil {
		return err
	}
	if err := transfer.WaitForOrigin(ctx, cfg.OriginIP, CBLogger); err != nil {
		return err
	}

	port := transfer.SuperPeerPort
	dest := fabric.ReceivedFromSuperPeer(cfg.Leaf.SuperPeer)
	if cfg.Leaf.SuperPeer == model.OriginName {
		port = transfer.OriginPort
		dest = fabric.ReceivedFromOrigin
	}

	feederAddr := cfg.Leaf.FeederIP + ":" + strconv.Itoa(port)
	result, err := transfer.Receive(ctx, feederAddr, dest, CBLogger)
	if err != nil {
		return err
	}
	publishStat(cfg, registry, result)

	trackerAddr := cfg.TrackerIP + ":" + strconv.Itoa(transfer.TrackerPort)
	return transfer.SendConfirmation(ctx, trackerAddr, CBLogger)
}

func publishStat(cfg transfer.EndpointConfig, registry runregistry.Registry, result transfer.ReceiveResult) {
	CBLogger.Infof("Connection time: %d ms", result.ConnectionMs)
	CBLogger.Infof("Total time (connection + transfer): %d ms", result.TotalMs)
	if registry == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	stat := model.TransferStat{
		Peer:         cfg.Name,
		ConnectionMs: result.ConnectionMs,
		TransferMs:   result.TransferMs,
		TotalMs:      result.TotalMs,
	}
	if err := registry.PutTransferStat(pubCtx, cfg.RunID, stat); err != nil {
		CBLogger.Errorf("Publishing transfer stat failed: %v", err)
	}
}
