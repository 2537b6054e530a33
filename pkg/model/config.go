package model

import (
	"fmt"
	"io/ioutil"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// ETCDConfig represents the configuration information for a etcd cluster
type ETCDConfig struct {
	Endpoints []string `yaml:"endpoints"`
}

// AdminWebConfig represents the configuration information for the run
// status web front-end
type AdminWebConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// TestbedConfig represents the knobs of a single testbed run.
type TestbedConfig struct {
	NumberOfPeers     int    `yaml:"number_of_peers"`
	UseSuperPeers     bool   `yaml:"use_super_peers"`
	FileToSend        string `yaml:"file_to_send"`
	PartitionerOutput string `yaml:"partitioner_output"`
	Seed              int64  `yaml:"seed"`
	DataDir           string `yaml:"data_dir"`
	ResultsDir        string `yaml:"results_dir"`
	ContainerImage    string `yaml:"container_image"`
	TrackerImage      string `yaml:"tracker_image"`
}

// RuntimeConfig represents how the coordinator reaches the container
// runtime collaborator.
type RuntimeConfig struct {
	DeployCommand   string `yaml:"deploy_command"`
	ExecCommand     string `yaml:"exec_command"`
	ContainerPrefix string `yaml:"container_prefix"`
}

// Config represents the configuration information for the testbed
type Config struct {
	ETCD     ETCDConfig     `yaml:"etcd_cluster"`
	AdminWeb AdminWebConfig `yaml:"admin_web"`
	Testbed  TestbedConfig  `yaml:"testbed"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
}

// LoadConfig represents a function to read the configuration information
// from a file
func LoadConfig(path string) (Config, error) {
	filename, _ := filepath.Abs(path)
	yamlFile, err := ioutil.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", filename, err)
	}

	var configTemp Config
	if err := yaml.Unmarshal(yamlFile, &configTemp); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", filename, err)
	}

	if configTemp.Testbed.NumberOfPeers <= 0 {
		return Config{}, fmt.Errorf("config %s: number_of_peers must be positive", filename)
	}
	return configTemp, nil
}
