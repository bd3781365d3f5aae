// Package config implements the one-file-per-node configuration of
// spec.md §6, loaded with gopkg.in/yaml.v3 — the teacher's own direct
// dependency for its YAML-based genesis/network config files.
package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config is the node's configuration, one file per node (spec.md §6).
type Config struct {
	// TCPAddress is the address the peer server binds and advertises.
	TCPAddress string `yaml:"tcpAddress"`
	// HTTPAddress is the address the (out-of-scope) REST adapter binds.
	HTTPAddress string `yaml:"httpAddress"`
	// BootstrapAddress is an optional seed peer used to join the network.
	BootstrapAddress string `yaml:"bootstrapAddress"`
	// NodeID uniquely identifies this node in REGISTER exchanges.
	NodeID string `yaml:"nodeId"`
	// MinerWalletAddress receives coinbase rewards for blocks this node mines.
	MinerWalletAddress string `yaml:"minerWalletAddress"`
	// DatabasePath is where the durable key-value store lives on disk.
	DatabasePath string `yaml:"databasePath"`
	// Difficulty overrides chain.DefaultDifficulty when non-zero.
	Difficulty int `yaml:"difficulty"`
	// MineWithoutTransactions allows the miner to mine empty blocks
	// instead of idling when the pool has nothing to offer.
	MineWithoutTransactions bool `yaml:"mineWithoutTransactions"`
}

// ErrMissingMinerAddress is returned by Validate when no reward address is
// configured; a node with no address to pay coinbase to cannot mine.
var ErrMissingMinerAddress = fmt.Errorf("config: minerWalletAddress is required")

// Load reads and parses the YAML config file at path, filling in defaults
// for any field the file omits.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	c.applyDefaults()
	return &c, c.Validate()
}

func (c *Config) applyDefaults() {
	if c.TCPAddress == "" {
		c.TCPAddress = "0.0.0.0:9000"
	}
	if c.HTTPAddress == "" {
		c.HTTPAddress = "0.0.0.0:8080"
	}
	if c.NodeID == "" {
		c.NodeID = uuid.NewString()
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "./artemis-data"
	}
	if c.Difficulty == 0 {
		c.Difficulty = 5
	}
}

// Validate checks that a config is usable to construct a Node.
func (c *Config) Validate() error {
	if c.MinerWalletAddress == "" {
		return ErrMissingMinerAddress
	}
	return nil
}
