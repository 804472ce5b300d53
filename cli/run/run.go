// Package run implements the solver's run command.
package run

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/onlyswaps/solver/pkg/chain"
	"github.com/onlyswaps/solver/pkg/config"
	"github.com/onlyswaps/solver/pkg/executor"
	"github.com/onlyswaps/solver/pkg/inflight"
	"github.com/onlyswaps/solver/pkg/oracle"
	"github.com/onlyswaps/solver/pkg/services/metrics"
	"github.com/onlyswaps/solver/pkg/solver"
	"github.com/onlyswaps/solver/pkg/solver/evaluate"
)

// shutdownSignals all trigger the same clean stop: block loops drain,
// transports close, the process exits 0.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGUSR2}

// NewCommands returns the run command.
func NewCommands() []cli.Command {
	return []cli.Command{{
		Name:      "run",
		Usage:     "start the solver, shut down cleanly on SIGINT, SIGTERM or SIGUSR2",
		UsageText: "onlyswaps-solver run [--config path] [--private-key hex]",
		Action:    startSolver,
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:   "config, c",
				Usage:  "path to the TOML configuration file",
				EnvVar: config.EnvConfigPath,
			},
			cli.StringFlag{
				Name:   "private-key, k",
				Usage:  "hex-encoded solver wallet key, 0x prefix optional",
				EnvVar: config.EnvPrivateKey,
			},
		},
	}}
}

func startSolver(cliCtx *cli.Context) error {
	path, err := config.Discover(cliCtx.String("config"))
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	key, err := config.ParsePrivateKey(cliCtx.String("private-key"))
	if err != nil {
		return cli.NewExitError(fmt.Errorf("private-key: %w", err), 1)
	}
	log, err := handleLoggingParams(cfg.Agent)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer cancel()

	clients := make(map[uint64]*chain.Client, len(cfg.Networks))
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()
	solverChains := make(map[uint64]solver.Chain, len(cfg.Networks))
	execChains := make(map[uint64]executor.Chain, len(cfg.Networks))
	for _, n := range cfg.Networks {
		c, err := chain.Dial(ctx, n, key, log)
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		clients[n.ChainID] = c
		solverChains[n.ChainID] = c
		execChains[n.ChainID] = c
		log.Info("network connected",
			zap.Uint64("chain", n.ChainID),
			zap.String("solver", c.SolverAddress().Hex()))
	}

	gas := oracle.NewGasPrices(func(ctx context.Context, chainID uint64) (*big.Int, error) {
		c := clients[chainID]
		if c == nil {
			return nil, fmt.Errorf("no client for chain %d", chainID)
		}
		return c.SuggestGasPrice(ctx)
	}, nil)

	var prices oracle.PriceSource
	if u := cfg.Agent.PriceOracleURL; u != "" {
		prices = oracle.NewCachedPrices(oracle.NewHTTPPrices(u), 0)
	}

	var evaluator evaluate.Evaluator
	switch cfg.Agent.Evaluator {
	case config.EvaluatorSimple:
		evaluator = evaluate.NewSimple(log)
	default:
		evaluator = evaluate.NewScored(log, evaluate.ScoredConfig{}, prices, gas)
	}

	cache := inflight.New(0, 0)
	exec := executor.New(executor.Config{
		Log:    log,
		Chains: execChains,
	})

	var health *metrics.Service
	if addr := cfg.Agent.HealthcheckAddress(); addr != "" {
		health = metrics.NewService(addr, log)
		go health.Start()
		defer health.ShutDown()
	}

	s := solver.New(solver.Config{
		Log:       log,
		Chains:    solverChains,
		Evaluator: evaluator,
		Executor:  exec,
		InFlight:  cache,
		OnReady: func() {
			log.Info("all networks primed")
			if health != nil {
				health.MarkReady()
			}
		},
	})

	log.Info("solver starting",
		zap.Int("networks", len(cfg.Networks)),
		zap.String("evaluator", cfg.Agent.Evaluator))
	_ = s.Run(ctx)
	log.Info("shutdown complete")
	return nil
}
