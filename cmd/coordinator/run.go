package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/p2plab/p2p-testbed/pkg/fabric"
	"github.com/p2plab/p2p-testbed/pkg/file"
	"github.com/p2plab/p2p-testbed/pkg/model"
	"github.com/p2plab/p2p-testbed/pkg/planner"
	"github.com/p2plab/p2p-testbed/pkg/results"
	runregistry "github.com/p2plab/p2p-testbed/pkg/run-registry"
	runstate "github.com/p2plab/p2p-testbed/pkg/run-state"
	"github.com/p2plab/p2p-testbed/pkg/sampler"
	"github.com/p2plab/p2p-testbed/pkg/validator"
	"golang.org/x/exp/rand"
)

// run drives the full pipeline and maps its outcome to an exit code.
func run(ctx context.Context, config model.Config, runID string) int {
	registry, err := runregistry.NewEtcd(config.ETCD.Endpoints)
	if err != nil {
		CBLogger.Errorf("Coordination plane unavailable: %v", err)
		return model.ExitConfiguration
	}
	defer func() {
		_ = registry.Close()
	}()

	runtime := &fabric.CLIRuntime{
		DeployCommand:   config.Runtime.DeployCommand,
		ExecCommand:     config.Runtime.ExecCommand,
		ContainerPrefix: config.Runtime.ContainerPrefix,
		Logger:          CBLogger,
	}
	return execute(ctx, config, runID, registry, runtime)
}

// execute is run with its collaborators (registry and runtime) injected.
func execute(ctx context.Context, config model.Config, runID string,
	registry runregistry.Registry, runtime fabric.Runtime) int {

	tb := config.Testbed
	setState := func(state string) {
		if err := registry.PutRunState(ctx, runID, state); err != nil {
			CBLogger.Warnf("Recording run state %s failed: %v", state, err)
		}
	}
	setState(runstate.Planning)

	testID, err := results.NextTestID(filepath.Join(tb.ResultsDir, "test-counter.txt"))
	if err != nil {
		CBLogger.Errorf("Test counter: %v", err)
		return model.ExitConfiguration
	}
	CBLogger.Infof("Test %d (run %s)", testID, runID)

	fileBytes, err := artifactSize(tb.FileToSend)
	if err != nil {
		CBLogger.Errorf("Artifact: %v", err)
		return model.ExitConfiguration
	}

	seed := tb.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	// C1: sample the peer population.
	s := sampler.New(seed)
	peers, err := s.Profiles(tb.NumberOfPeers)
	if err != nil {
		CBLogger.Errorf("Sampling failed: %v", err)
		return model.ExitConfiguration
	}
	peers = append(peers, s.Origin())
	for _, p := range peers {
		CBLogger.Info(p.String())
	}

	// C2: catalog, overlay, allocation.
	byName := planner.PeersByName(peers)
	catalog := planner.Catalog(peers)
	if missing := planner.AuditFullMesh(catalog, peers); len(missing) > 0 {
		CBLogger.Errorf("Catalog is not a full mesh; %d pairs missing (first: %s)", len(missing), missing[0])
		return model.ExitConfiguration
	}

	rng := rand.New(rand.NewSource(uint64(seed)))
	inputData := planner.BuildInputData(peers, filepath.Base(tb.FileToSend), fileBytes, rng)
	inputPath := filepath.Join(tb.DataDir, fmt.Sprintf("input-data-%d.json", tb.NumberOfPeers))
	if err := model.WriteJSONFile(inputPath, inputData); err != nil {
		CBLogger.Errorf("Writing input data: %v", err)
		return model.ExitConfiguration
	}

	var overlay model.Overlay
	if tb.UseSuperPeers {
		partitionerPath := tb.PartitionerOutput
		if partitionerPath == "" {
			partitionerPath = filepath.Join(tb.DataDir, fmt.Sprintf("output-data-%d.json", tb.NumberOfPeers))
		}
		var overlayData model.OverlayData
		if err := model.ReadJSONFile(partitionerPath, &overlayData); err != nil {
			CBLogger.Errorf("Partitioner output: %v", err)
			return model.ExitConfiguration
		}
		overlay, err = planner.FromPartitioner(overlayData, peers)
		if err != nil {
			CBLogger.Errorf("Overlay rejected: %v", err)
			return model.ExitConfiguration
		}
	} else {
		overlay = planner.Star(peers)
		overlayData := model.OverlayData{}
		for _, e := range overlay.Edges {
			overlayData.Peer2Peer = append(overlayData.Peer2Peer, model.OverlayConnection{
				SourceName: e.Source,
				TargetName: e.Target,
			})
		}
		outputPath := filepath.Join(tb.DataDir, fmt.Sprintf("output-data-%d.json", tb.NumberOfPeers))
		if err := model.WriteJSONFile(outputPath, overlayData); err != nil {
			CBLogger.Errorf("Writing overlay data: %v", err)
			return model.ExitConfiguration
		}
	}
	CBLogger.Infof("Overlay: %s with %d edges", planner.Describe(overlay), len(overlay.Edges))

	allocated, err := planner.Allocate(overlay, byName, fileBytes)
	if err != nil {
		CBLogger.Errorf("Allocation failed: %v", err)
		return model.ExitConfiguration
	}
	for _, a := range allocated {
		CBLogger.Infof("%s, projected transfer %d ms", a.String(), a.ProjectedTransferMs)
	}

	details := planner.ConnectionDetails(allocated)
	detailsPath := filepath.Join(tb.DataDir, fmt.Sprintf("connection-details-%d.json", tb.NumberOfPeers))
	if err := model.WriteJSONFile(detailsPath, details); err != nil {
		CBLogger.Errorf("Writing connection details: %v", err)
		return model.ExitConfiguration
	}

	// C3: emit and deploy the fabric.
	setState(runstate.Deploying)
	topo, err := fabric.Build(fabric.Input{
		Peers:            peers,
		Overlay:          overlay,
		Details:          details,
		RunID:            runID,
		EtcdEndpoints:    config.ETCD.Endpoints,
		ArtifactHostPath: tb.FileToSend,
		DetailsHostPath:  detailsPath,
		ScriptDir:        tb.DataDir,
		Image:            tb.ContainerImage,
		TrackerImage:     tb.TrackerImage,
	})
	if err != nil {
		CBLogger.Errorf("Fabric build failed: %v", err)
		return model.ExitConfiguration
	}
	topoPath := filepath.Join(tb.DataDir, "containerlab-topology.yml")
	if err := fabric.WriteTopologyFile(topo, topoPath); err != nil {
		CBLogger.Errorf("Writing topology: %v", err)
		return model.ExitConfiguration
	}

	if err := runtime.Deploy(ctx, topoPath); err != nil {
		CBLogger.Errorf("Deploy failed: %v", err)
		return model.ExitConfiguration
	}
	defer func() {
		// Teardown is best effort; a failed destroy never changes the
		// verdict.
		destroyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := runtime.Destroy(destroyCtx, topoPath); err != nil {
			CBLogger.Warnf("Teardown: %v", err)
		}
	}()

	total := len(peers)
	record := model.ResultRecord{
		RunID:     runID,
		TestID:    testID,
		Peers:     tb.NumberOfPeers,
		Overlay:   planner.Describe(overlay),
		FileBytes: fileBytes,
	}
	var bandwidths []float64
	for _, a := range allocated {
		bandwidths = append(bandwidths, float64(a.AllocatedBandwidth))
	}
	record.Bandwidth = model.Summarize(bandwidths)

	// Shaping barrier: every endpoint acks its tc rules before traffic.
	setState(runstate.Shaping)
	shapeCtx, cancelShape := context.WithTimeout(ctx, shapingDeadline(total))
	err = registry.WaitShaped(shapeCtx, runID, total)
	cancelShape()
	if err != nil {
		CBLogger.Errorf("Shaping barrier: %v", err)
		record.Status = runstate.Failed
		writeRecord(config, record)
		return model.ExitRunDeadline
	}

	// C4: the transfer runs inside the endpoints; wait on the tracker.
	setState(runstate.Transferring)
	transferCtx, cancelTransfer := context.WithTimeout(ctx, runDeadline(total))
	trackerResult, err := registry.WaitTrackerResult(transferCtx, runID)
	cancelTransfer()
	if err != nil {
		CBLogger.Errorf("Run deadline reached waiting for the barrier: %v (%v)", err, model.ErrRunDeadline)
		record.Status = "deadline"
		fillTransferStats(ctx, registry, runID, &record)
		writeRecord(config, record)
		return model.ExitRunDeadline
	}
	if !trackerResult.Complete {
		CBLogger.Errorf("Barrier incomplete: %d of %d confirmations", trackerResult.Received, trackerResult.Expected)
		record.Status = "barrier-incomplete"
		fillTransferStats(ctx, registry, runID, &record)
		writeRecord(config, record)
		return model.ExitValidation
	}
	CBLogger.Infof("Dissemination complete: %d confirmations in %d ms", trackerResult.Received, trackerResult.TotalMs)

	// C5: validate shaping fidelity and artifact integrity.
	setState(runstate.Validating)
	code := validate(ctx, config, runID, registry, runtime, topoPath, details, peers, &record)

	if code == model.ExitOK {
		setState(runstate.Done)
	} else {
		setState(runstate.Failed)
	}
	writeRecord(config, record)
	return code
}

func validate(ctx context.Context, config model.Config, runID string,
	registry runregistry.Registry, runtime fabric.Runtime, topoPath string,
	details []model.ConnectionDetail, peers []model.Peer, record *model.ResultRecord) int {

	tb := config.Testbed

	probes, err := validator.ProbesFromTopology(topoPath)
	if err != nil {
		CBLogger.Errorf("Probe extraction: %v", err)
		record.Status = runstate.Failed
		return model.ExitValidation
	}

	quality := validator.NewQuality(runtime, details, CBLogger)
	measurements, drifted, err := quality.ValidateAll(ctx, probes)
	if err != nil {
		CBLogger.Errorf("Quality validation aborted: %v", err)
		record.Status = runstate.Failed
		return model.ExitRunDeadline
	}

	var latErrors, bwErrors []float64
	for _, m := range measurements {
		if !m.Accepted {
			continue
		}
		latErrors = append(latErrors, m.LatencyError)
		bwErrors = append(bwErrors, m.BandwidthError)
	}
	record.LatencyError = model.Summarize(latErrors)
	record.BandwidthError = model.Summarize(bwErrors)
	CBLogger.Infof("Latency error rates: min %.2f%% avg %.2f%% max %.2f%%",
		record.LatencyError.Min, record.LatencyError.Avg, record.LatencyError.Max)
	CBLogger.Infof("Bandwidth error rates: min %.2f%% avg %.2f%% max %.2f%%",
		record.BandwidthError.Min, record.BandwidthError.Avg, record.BandwidthError.Max)

	originHash, err := file.Hash(tb.FileToSend)
	if err != nil {
		CBLogger.Errorf("Hashing origin artifact: %v", err)
		record.Status = runstate.Failed
		return model.ExitValidation
	}
	CBLogger.Infof("Original file hash: %s", originHash)

	var receivers []string
	for _, p := range peers {
		if !p.IsOrigin() {
			receivers = append(receivers, p.Name)
		}
	}
	integrity := &validator.Integrity{Runtime: runtime, Logger: CBLogger}
	failures := integrity.CheckAll(ctx, receivers, originHash, validator.CandidatePaths(tb.NumberOfPeers))
	record.HashMatch = len(failures) == 0

	fillTransferStats(ctx, registry, runID, record)

	if len(drifted) > 0 {
		CBLogger.Errorf("%d edges kept drifting: %v (%v)", len(drifted), drifted, model.ErrShapingDrift)
	}
	for node, ferr := range failures {
		CBLogger.Errorf("Endpoint %s: %v", node, ferr)
	}
	if len(drifted) > 0 || len(failures) > 0 {
		record.Status = runstate.Failed
		return model.ExitValidation
	}
	record.Status = "ok"
	return model.ExitOK
}

func fillTransferStats(ctx context.Context, registry runregistry.Registry, runID string, record *model.ResultRecord) {
	stats, err := registry.ListTransferStats(ctx, runID)
	if err != nil {
		CBLogger.Warnf("Collecting transfer stats: %v", err)
		return
	}
	var conn, xfer, totalMs []float64
	for _, stat := range stats {
		conn = append(conn, float64(stat.ConnectionMs))
		xfer = append(xfer, float64(stat.TransferMs))
		totalMs = append(totalMs, float64(stat.TotalMs))
	}
	record.ConnectionMs = model.Summarize(conn)
	record.TransferMs = model.Summarize(xfer)
	record.TotalMs = model.Summarize(totalMs)
}

func writeRecord(config model.Config, record model.ResultRecord) {
	path := filepath.Join(config.Testbed.ResultsDir, "results.csv")
	if err := results.Append(path, record); err != nil {
		CBLogger.Errorf("Appending result record: %v", err)
		return
	}
	CBLogger.Infof("Result record %s appended to %s", strconv.Itoa(record.TestID), path)
}
