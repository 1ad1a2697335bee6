package model

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// HealthConfig configures the HTTP health endpoint.
type HealthConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    string `toml:"port"`
}

// TimelockConfig configures the execution delay.
type TimelockConfig struct {
	Delay    time.Duration `toml:"delay"`
	MinDelay time.Duration `toml:"minDelay"`
	MaxDelay time.Duration `toml:"maxDelay"`
	// GracePeriod after eta; zero disables expiry.
	GracePeriod time.Duration `toml:"gracePeriod"`
}

// QuorumConfig lists the trusted receiver adapters and the threshold.
type QuorumConfig struct {
	Adapters  []string `toml:"adapters"`
	Threshold uint64   `toml:"threshold"`

	adaptersParsed []common.Address
}

// WorkerConfig configures the execution worker loop.
type WorkerConfig struct {
	Interval    time.Duration `toml:"interval"`
	ScanTimeout time.Duration `toml:"scanTimeout"`
}

// ExecutorType selects how ripe transactions are executed.
type ExecutorType string

const (
	// ExecutorTypeMemory routes calls through the in-process target registry.
	ExecutorTypeMemory ExecutorType = "memory"
	// ExecutorTypeEVM broadcasts calls as signed transactions over RPC.
	ExecutorTypeEVM ExecutorType = "evm"
)

// ExecutorConfig configures the call executor.
type ExecutorConfig struct {
	Type        ExecutorType `toml:"type"`
	RPCEndpoint string       `toml:"rpcEndpoint"`
	// PrivateKey is read from the environment, never from the file.
	PrivateKey         string        `toml:"-"`
	GasLimit           uint64        `toml:"gasLimit"`
	MaxBaseFeeWei      uint64        `toml:"maxBaseFeeWei"`
	TxInclusionTimeout time.Duration `toml:"txInclusionTimeout"`
}

// NodeConfig is the top-level relay node configuration.
type NodeConfig struct {
	// NodeID labels logs, metrics and profiles.
	NodeID string `toml:"nodeID"`
	// ChainID this node collects messages for.
	ChainID uint64 `toml:"chainID"`
	// CollectorAddress is the collector's identity on this chain.
	CollectorAddress string `toml:"collectorAddress"`
	// ConduitAddress is the timelock's execution identity.
	ConduitAddress string `toml:"conduitAddress"`
	// TimelockAddress is the timelock's own address, the target of queued
	// delay and admin changes.
	TimelockAddress string `toml:"timelockAddress"`
	// PyroscopeURL enables continuous profiling when set.
	PyroscopeURL string `toml:"pyroscopeURL"`

	Quorum   QuorumConfig   `toml:"quorum"`
	Timelock TimelockConfig `toml:"timelock"`
	Worker   WorkerConfig   `toml:"worker"`
	Executor ExecutorConfig `toml:"executor"`
	Health   HealthConfig   `toml:"health"`

	collectorParsed common.Address
	conduitParsed   common.Address
	timelockParsed  common.Address
}

// ExecutorPrivateKeyEnv names the environment variable the executor signing
// key is read from. Keys never live in the config file.
const ExecutorPrivateKeyEnv = "RELAY_EXECUTOR_PRIVATE_KEY"

// LoadFromEnvironment pulls secrets from the environment.
func (c *NodeConfig) LoadFromEnvironment() {
	if key := os.Getenv(ExecutorPrivateKeyEnv); key != "" {
		c.Executor.PrivateKey = key
	}
}

// SetDefaults fills unset fields with sane defaults.
func (c *NodeConfig) SetDefaults() {
	if c.NodeID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "mma-relay"
		}
		c.NodeID = hostname
	}
	if c.Timelock.Delay == 0 {
		c.Timelock.Delay = 24 * time.Hour
	}
	if c.Worker.Interval == 0 {
		c.Worker.Interval = 10 * time.Second
	}
	if c.Worker.ScanTimeout == 0 {
		c.Worker.ScanTimeout = 30 * time.Second
	}
	if c.Executor.Type == "" {
		c.Executor.Type = ExecutorTypeMemory
	}
	if c.Health.Enabled && c.Health.Port == "" {
		c.Health.Port = "8080"
	}
}

// Validate checks the configuration and parses address fields.
func (c *NodeConfig) Validate() error {
	if c.ChainID == 0 {
		return errors.New("chainID must be set")
	}

	var err error
	if c.collectorParsed, err = parseAddress(c.CollectorAddress); err != nil {
		return fmt.Errorf("collectorAddress: %w", err)
	}
	if c.conduitParsed, err = parseAddress(c.ConduitAddress); err != nil {
		return fmt.Errorf("conduitAddress: %w", err)
	}
	if c.timelockParsed, err = parseAddress(c.TimelockAddress); err != nil {
		return fmt.Errorf("timelockAddress: %w", err)
	}

	if err := c.validateQuorumConfig(); err != nil {
		return err
	}
	if err := c.validateTimelockConfig(); err != nil {
		return err
	}
	return c.validateExecutorConfig()
}

func (c *NodeConfig) validateQuorumConfig() error {
	if len(c.Quorum.Adapters) == 0 {
		return errors.New("quorum.adapters must not be empty")
	}
	if c.Quorum.Threshold == 0 {
		return errors.New("quorum.threshold must be greater than 0")
	}
	if c.Quorum.Threshold > uint64(len(c.Quorum.Adapters)) {
		return fmt.Errorf("quorum.threshold %d exceeds adapter count %d", c.Quorum.Threshold, len(c.Quorum.Adapters))
	}

	c.Quorum.adaptersParsed = make([]common.Address, len(c.Quorum.Adapters))
	for i, raw := range c.Quorum.Adapters {
		addr, err := parseAddress(raw)
		if err != nil {
			return fmt.Errorf("quorum.adapters[%d]: %w", i, err)
		}
		c.Quorum.adaptersParsed[i] = addr
	}
	return nil
}

func (c *NodeConfig) validateTimelockConfig() error {
	if c.Timelock.Delay <= 0 {
		return errors.New("timelock.delay must be greater than 0")
	}
	if c.Timelock.Delay < c.Timelock.MinDelay {
		return errors.New("timelock.delay must not be below timelock.minDelay")
	}
	if c.Timelock.MaxDelay > 0 && c.Timelock.Delay > c.Timelock.MaxDelay {
		return errors.New("timelock.delay must not exceed timelock.maxDelay")
	}
	return nil
}

func (c *NodeConfig) validateExecutorConfig() error {
	switch c.Executor.Type {
	case ExecutorTypeMemory:
		return nil
	case ExecutorTypeEVM:
		if c.Executor.RPCEndpoint == "" {
			return errors.New("executor.rpcEndpoint must be set for the evm executor")
		}
		if c.Executor.PrivateKey == "" {
			return errors.New("executor private key must be set for the evm executor")
		}
		return nil
	default:
		return fmt.Errorf("unknown executor type %q", c.Executor.Type)
	}
}

// Collector returns the parsed collector address. Valid after Validate.
func (c *NodeConfig) Collector() common.Address {
	return c.collectorParsed
}

// Conduit returns the parsed conduit address. Valid after Validate.
func (c *NodeConfig) Conduit() common.Address {
	return c.conduitParsed
}

// TimelockTarget returns the parsed timelock address. Valid after Validate.
func (c *NodeConfig) TimelockTarget() common.Address {
	return c.timelockParsed
}

// QuorumAdapters returns the parsed adapter addresses. Valid after Validate.
func (c *NodeConfig) QuorumAdapters() []common.Address {
	out := make([]common.Address, len(c.Quorum.adaptersParsed))
	copy(out, c.Quorum.adaptersParsed)
	return out
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%q is not a hex address", raw)
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return common.Address{}, errors.New("address cannot be zero")
	}
	return addr, nil
}
