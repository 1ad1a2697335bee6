// Package relay wires the destination-side components into one runnable
// node: registry, collector, timelock, executor and the worker that keeps
// them moving.
package relay

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/multibridge/mma/pkg/collector"
	"github.com/multibridge/mma/pkg/execution"
	"github.com/multibridge/mma/pkg/health"
	"github.com/multibridge/mma/pkg/model"
	"github.com/multibridge/mma/pkg/protocol"
	"github.com/multibridge/mma/pkg/storage/memory"
	"github.com/multibridge/mma/pkg/timelock"

	mmacommon "github.com/multibridge/mma/pkg/common"
)

// Node is a fully wired destination-side relay.
type Node struct {
	Collector *collector.Collector
	Timelock  *timelock.Timelock
	Worker    *ExecutionWorker
	Health    *health.Manager
	// Targets is the in-process call router. Nil when the node runs against
	// a live chain through the EVM executor.
	Targets *execution.TargetRegistry

	sink   mmacommon.EventSink
	logger *zap.SugaredLogger
}

// NewNode builds a node from validated configuration.
func NewNode(ctx context.Context, cfg *model.NodeConfig, sink mmacommon.EventSink, mon mmacommon.Monitoring, logger *zap.SugaredLogger) (*Node, error) {
	clock := mmacommon.NewRealTimeProvider()
	return newNode(ctx, cfg, sink, mon, clock, logger)
}

// NewNodeWithClock is NewNode with an injected clock, for tests that warp
// time past timelock delays.
func NewNodeWithClock(ctx context.Context, cfg *model.NodeConfig, sink mmacommon.EventSink, mon mmacommon.Monitoring, clock mmacommon.TimeProvider, logger *zap.SugaredLogger) (*Node, error) {
	return newNode(ctx, cfg, sink, mon, clock, logger)
}

func newNode(ctx context.Context, cfg *model.NodeConfig, sink mmacommon.EventSink, mon mmacommon.Monitoring, clock mmacommon.TimeProvider, logger *zap.SugaredLogger) (*Node, error) {
	registry, err := model.NewAdapterRegistry(cfg.QuorumAdapters(), cfg.Quorum.Threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to build adapter registry: %w", err)
	}

	var executor execution.CallExecutor
	var targets *execution.TargetRegistry
	switch cfg.Executor.Type {
	case model.ExecutorTypeMemory:
		targets = execution.NewTargetRegistry()
		executor = targets
	case model.ExecutorTypeEVM:
		evmExecutor, err := execution.NewEVMExecutor(ctx, execution.EVMExecutorConfig{
			RPCEndpoint:        cfg.Executor.RPCEndpoint,
			PrivateKey:         cfg.Executor.PrivateKey,
			MaxBaseFeeWei:      cfg.Executor.MaxBaseFeeWei,
			GasLimit:           cfg.Executor.GasLimit,
			TxInclusionTimeout: cfg.Executor.TxInclusionTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build evm executor: %w", err)
		}
		executor = evmExecutor
	default:
		return nil, fmt.Errorf("unknown executor type %q", cfg.Executor.Type)
	}

	tl, err := timelock.NewTimelock(timelock.Config{
		Admin:       cfg.Collector(),
		Conduit:     cfg.Conduit(),
		Delay:       cfg.Timelock.Delay,
		MinDelay:    cfg.Timelock.MinDelay,
		MaxDelay:    cfg.Timelock.MaxDelay,
		GracePeriod: cfg.Timelock.GracePeriod,
	}, memory.NewScheduledTransactionStore(), executor, clock, sink, mon, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build timelock: %w", err)
	}

	c, err := collector.NewCollector(collector.Config{
		ChainID: protocol.ChainID(cfg.ChainID),
		Address: cfg.Collector(),
		Conduit: cfg.Conduit(),
	}, registry, memory.NewMessageRecordStore(), tl, sink, mon, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build collector: %w", err)
	}

	// With the in-process router the collector and the timelock are callable
	// targets, closing the self-governance loop.
	if targets != nil {
		targets.Register(cfg.Collector(), c.HandleGovernanceCall)
		targets.Register(cfg.TimelockTarget(), tl.HandleSelfCall)
	}

	worker := NewExecutionWorker(c, tl, cfg.Worker.Interval, cfg.Worker.ScanTimeout, mon, clock, logger)

	healthManager := health.NewManager()
	healthManager.Register(worker)

	mon.Metrics().SetRegistrySize(ctx, registry.Len())
	mon.Metrics().SetQuorumThreshold(ctx, registry.Quorum())
	logger.Infow("Initialized relay node",
		"nodeID", cfg.NodeID,
		"chainID", cfg.ChainID,
		"adapters", registry.Len(),
		"quorum", registry.Quorum(),
		"executor", cfg.Executor.Type,
	)

	return &Node{
		Collector: c,
		Timelock:  tl,
		Worker:    worker,
		Health:    healthManager,
		Targets:   targets,
		sink:      sink,
		logger:    logger,
	}, nil
}
