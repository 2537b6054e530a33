package runregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/p2plab/p2p-testbed/pkg/model"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	etcdkey "github.com/p2plab/p2p-testbed/pkg/etcd-key"
)

// EtcdRegistry stores the run coordination keys in an etcd cluster.
type EtcdRegistry struct {
	client *clientv3.Client
}

// NewEtcd dials the cluster and returns the registry.
func NewEtcd(endpoints []string) (*EtcdRegistry, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: dial etcd %v: %w", endpoints, err)
	}
	return &EtcdRegistry{client: cli}, nil
}

func shapingKey(runID, peer string) string {
	return etcdkey.ShapingComplete + "/" + runID + "/" + peer
}

func statsKey(runID, peer string) string {
	return etcdkey.TransferStats + "/" + runID + "/" + peer
}

func trackerKey(runID string) string {
	return etcdkey.TrackerResult + "/" + runID
}

func stateKey(runID string) string {
	return etcdkey.RunState + "/" + runID
}

// AckShaping implements Registry.
func (r *EtcdRegistry) AckShaping(ctx context.Context, runID, peer string) error {
	_, err := r.client.Put(ctx, shapingKey(runID, peer), time.Now().UTC().Format(time.RFC3339))
	return err
}

// WaitShaped implements Registry. It counts the existing acknowledgement
// keys first, then watches the prefix for the remainder.
func (r *EtcdRegistry) WaitShaped(ctx context.Context, runID string, expected int) error {
	prefix := etcdkey.ShapingComplete + "/" + runID + "/"

	watchChan := r.client.Watch(ctx, prefix, clientv3.WithPrefix())

	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return fmt.Errorf("registry: count shaping acks: %w", err)
	}
	seen := make(map[string]bool)
	if resp.Count > 0 {
		listResp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
		if err != nil {
			return fmt.Errorf("registry: list shaping acks: %w", err)
		}
		for _, kv := range listResp.Kvs {
			seen[string(kv.Key)] = true
		}
	}
	if len(seen) >= expected {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case watchResp, ok := <-watchChan:
			if !ok {
				return fmt.Errorf("registry: shaping watch closed")
			}
			for _, event := range watchResp.Events {
				if event.Type == mvccpb.PUT {
					seen[string(event.Kv.Key)] = true
				}
			}
			if len(seen) >= expected {
				return nil
			}
		}
	}
}

// PutTransferStat implements Registry.
func (r *EtcdRegistry) PutTransferStat(ctx context.Context, runID string, stat model.TransferStat) error {
	body, err := marshal(stat)
	if err != nil {
		return err
	}
	_, err = r.client.Put(ctx, statsKey(runID, stat.Peer), body)
	return err
}

// ListTransferStats implements Registry.
func (r *EtcdRegistry) ListTransferStats(ctx context.Context, runID string) ([]model.TransferStat, error) {
	resp, err := r.client.Get(ctx, etcdkey.TransferStats+"/"+runID+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("registry: list transfer stats: %w", err)
	}
	stats := make([]model.TransferStat, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var stat model.TransferStat
		if err := json.Unmarshal(kv.Value, &stat); err != nil {
			return nil, fmt.Errorf("registry: parse transfer stat %s: %w", kv.Key, err)
		}
		stats = append(stats, stat)
	}
	return stats, nil
}

// PutTrackerResult implements Registry.
func (r *EtcdRegistry) PutTrackerResult(ctx context.Context, runID string, result model.TrackerResult) error {
	body, err := marshal(result)
	if err != nil {
		return err
	}
	_, err = r.client.Put(ctx, trackerKey(runID), body)
	return err
}

// WaitTrackerResult implements Registry.
func (r *EtcdRegistry) WaitTrackerResult(ctx context.Context, runID string) (model.TrackerResult, error) {
	key := trackerKey(runID)
	watchChan := r.client.Watch(ctx, key)

	resp, err := r.client.Get(ctx, key)
	if err != nil {
		return model.TrackerResult{}, fmt.Errorf("registry: get tracker result: %w", err)
	}
	if len(resp.Kvs) > 0 {
		var result model.TrackerResult
		if err := json.Unmarshal(resp.Kvs[0].Value, &result); err != nil {
			return model.TrackerResult{}, fmt.Errorf("registry: parse tracker result: %w", err)
		}
		return result, nil
	}

	for {
		select {
		case <-ctx.Done():
			return model.TrackerResult{}, ctx.Err()
		case watchResp, ok := <-watchChan:
			if !ok {
				return model.TrackerResult{}, fmt.Errorf("registry: tracker watch closed")
			}
			for _, event := range watchResp.Events {
				if event.Type != mvccpb.PUT {
					continue
				}
				var result model.TrackerResult
				if err := json.Unmarshal(event.Kv.Value, &result); err != nil {
					return model.TrackerResult{}, fmt.Errorf("registry: parse tracker result: %w", err)
				}
				return result, nil
			}
		}
	}
}

// PutRunState implements Registry.
func (r *EtcdRegistry) PutRunState(ctx context.Context, runID, state string) error {
	_, err := r.client.Put(ctx, stateKey(runID), state)
	return err
}

// Close implements Registry.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
