package model

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"strconv"
)

// The coordinator exchanges three JSON artifacts with its collaborators:
// the full-mesh input data, the partitioner's overlay output, and the
// allocated connection details consumed by the fabric and the validator.

// InputPeer is a peer entry of the input-data artifact.
type InputPeer struct {
	Name        string `json:"name"`
	MaxUpload   int    `json:"maxUpload"`
	MaxDownload int    `json:"maxDownload"`
}

// InputConnection is a catalog edge entry of the input-data artifact.
// Latency and loss are carried as formatted decimal strings (two and four
// fractional digits), the same encoding as ConnectionDetail.
type InputConnection struct {
	SourceName string `json:"sourceName"`
	TargetName string `json:"targetName"`
	Bandwidth  int    `json:"bandwidth"`
	Latency    string `json:"latency"`
	Loss       string `json:"loss"`
}

// InputData is the artifact handed from the planner's catalog stage to the
// overlay partitioner.
type InputData struct {
	Filename    string            `json:"filename"`
	Filesize    int64             `json:"filesize"`
	Peers       []InputPeer       `json:"peers"`
	Connections []InputConnection `json:"connections"`
}

// OverlayConnection is a dissemination hop of the partitioner artifact.
type OverlayConnection struct {
	SourceName string `json:"sourceName"`
	TargetName string `json:"targetName"`
}

// OverlaySuperPeer names one relay of the partitioner artifact.
type OverlaySuperPeer struct {
	Name string `json:"name"`
}

// OverlayData is the artifact returned by the external graph partitioner.
type OverlayData struct {
	Peer2Peer  []OverlayConnection `json:"peer2peer"`
	SuperPeers []OverlaySuperPeer  `json:"superpeers,omitempty"`
}

// ConnectionDetail is one row of the allocated-edge artifact bound into
// every endpoint and read back by the validator.
type ConnectionDetail struct {
	SourceName string `json:"sourceName"`
	TargetName string `json:"targetName"`
	Bandwidth  int    `json:"bandwidth"`
	Latency    string `json:"latency"`
	Loss       string `json:"loss"`
}

// AppliedLatency parses the formatted latency back into milliseconds.
func (c ConnectionDetail) AppliedLatency() (float64, error) {
	return strconv.ParseFloat(c.Latency, 64)
}

// AppliedLoss parses the formatted loss back into a fraction.
func (c ConnectionDetail) AppliedLoss() (float64, error) {
	return strconv.ParseFloat(c.Loss, 64)
}

// WriteJSONFile marshals v with indentation and writes it to path.
func WriteJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadJSONFile unmarshals the JSON document at path into v.
func ReadJSONFile(path string, v interface{}) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
