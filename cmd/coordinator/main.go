package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	cblog "github.com/cloud-barista/cb-log"
	"github.com/p2plab/p2p-testbed/pkg/file"
	"github.com/p2plab/p2p-testbed/pkg/model"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// CBLogger represents a logger to show execution processes according to the logging level.
var CBLogger *logrus.Logger

func init() {
	// Load cb-log config from the current directory (usually for the production)
	ex, err := os.Executable()
	if err != nil {
		panic(err)
	}
	exePath := filepath.Dir(ex)

	logConfPath := filepath.Join(exePath, "configs", "log_conf.yaml")
	if !file.Exists(logConfPath) {
		// Load cb-log config from the project directory (usually for development)
		path, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
		if err != nil {
			panic(err)
		}
		projectPath := strings.TrimSpace(string(path))
		logConfPath = filepath.Join(projectPath, "configs", "log_conf.yaml")
	}
	CBLogger = cblog.GetLoggerWithConfigPath("p2p-testbed", logConfPath)
	CBLogger.Debugf("Load %v", logConfPath)
}

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to the coordinator configuration")
	peers := flag.Int("peers", 0, "override testbed.number_of_peers")
	superPeers := flag.Bool("superpeers", false, "override testbed.use_super_peers")
	artifact := flag.String("file", "", "override testbed.file_to_send")
	flag.Parse()

	config, err := model.LoadConfig(*configPath)
	if err != nil {
		CBLogger.Errorf("Configuration error: %v", err)
		os.Exit(model.ExitConfiguration)
	}
	if *peers > 0 {
		config.Testbed.NumberOfPeers = *peers
	}
	if flagPassed("superpeers") {
		config.Testbed.UseSuperPeers = *superPeers
	}
	if *artifact != "" {
		config.Testbed.FileToSend = *artifact
	}

	runID := xid.New().String()
	CBLogger.Infof("Starting testbed run %s with %d peers", runID, config.Testbed.NumberOfPeers)

	ctx := context.Background()
	code := run(ctx, config, runID)

	CBLogger.Infof("Run %s finished with exit code %d", runID, code)
	os.Exit(code)
}

func flagPassed(name string) bool {
	passed := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			passed = true
		}
	})
	return passed
}

// runDeadline bounds the wait for the tracker verdict proportionally to
// the fabric size.
func runDeadline(totalPeers int) time.Duration {
	return 20*time.Minute + time.Duration(totalPeers)*3*time.Minute
}

// shapingDeadline bounds the wait for all endpoints to ack their shaping
// rules.
func shapingDeadline(totalPeers int) time.Duration {
	return 5*time.Minute + time.Duration(totalPeers)*30*time.Second
}

func artifactSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("artifact %s: %w", path, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("artifact %s is a directory", path)
	}
	return info.Size(), nil
}
