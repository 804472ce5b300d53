// Package config implements loading and validation of the solver's TOML
// configuration file.
package config

import (
	"crypto/ecdsa"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Version of the solver binary, set at build time.
var Version = "dev"

// EnvConfigPath is consulted when no --config flag is given.
const EnvConfigPath = "SOLVER_CONFIG_PATH"

// EnvPrivateKey is the fallback source for the --private-key flag.
const EnvPrivateKey = "SOLVER_PRIVATE_KEY"

// Default gas buffers, in percent of the node estimate.
const (
	DefaultTxGasBuffer      = 120
	DefaultTxGasPriceBuffer = 100
)

// Evaluator variant names accepted in [agent].
const (
	EvaluatorSimple = "simple"
	EvaluatorScored = "scored"
)

// Config is the top-level structure of the solver config file.
type Config struct {
	Agent    Agent     `toml:"agent"`
	Networks []Network `toml:"networks"`
}

// Agent holds process-level settings.
type Agent struct {
	HealthcheckListenAddr string `toml:"healthcheck_listen_addr"`
	HealthcheckPort       uint16 `toml:"healthcheck_port"`
	LogLevel              string `toml:"log_level"`
	LogJSON               bool   `toml:"log_json"`
	Evaluator             string `toml:"evaluator"`
	// PriceOracleURL is the endpoint price conditions are resolved
	// against. Empty means no oracle; price conditions then fail closed.
	PriceOracleURL string `toml:"price_oracle_url"`
}

// HealthcheckAddress joins the configured listen address and port. Empty when
// the healthcheck service is not configured.
func (a Agent) HealthcheckAddress() string {
	if a.HealthcheckListenAddr == "" {
		return ""
	}
	return net.JoinHostPort(a.HealthcheckListenAddr, strconv.Itoa(int(a.HealthcheckPort)))
}

// Network describes one chain the solver operates on.
type Network struct {
	ChainID          uint64   `toml:"chain_id"`
	RPCURL           string   `toml:"rpc_url"`
	Tokens           []string `toml:"tokens"`
	RouterAddress    string   `toml:"router_address"`
	TxGasBuffer      uint64   `toml:"tx_gas_buffer"`
	TxGasPriceBuffer uint64   `toml:"tx_gas_price_buffer"`
}

// Router returns the parsed router contract address.
func (n Network) Router() common.Address {
	return common.HexToAddress(n.RouterAddress)
}

// TokenAddresses returns the parsed configured token addresses.
func (n Network) TokenAddresses() []common.Address {
	addrs := make([]common.Address, 0, len(n.Tokens))
	for _, t := range n.Tokens {
		addrs = append(addrs, common.HexToAddress(t))
	}
	return addrs
}

// Discover resolves the config path: the explicit flag value first, then the
// SOLVER_CONFIG_PATH environment variable, then ./config.toml, then the
// per-user default under ~/.config/onlyswaps/solver.
func Discover(flagPath string) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	if _, err := os.Stat("./config.toml"); err == nil {
		return "./config.toml", nil
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".config", "onlyswaps", "solver", "config.toml")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no config file found, pass --config or set %s", EnvConfigPath)
}

// LoadFile reads, decodes and validates the config at the given path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read config: %w", err)
	}
	cfg := Config{
		Agent: Agent{
			LogLevel:  "info",
			Evaluator: EvaluatorScored,
		},
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unable to parse config: %w", err)
	}
	for i := range cfg.Networks {
		if cfg.Networks[i].TxGasBuffer == 0 {
			cfg.Networks[i].TxGasBuffer = DefaultTxGasBuffer
		}
		if cfg.Networks[i].TxGasPriceBuffer == 0 {
			cfg.Networks[i].TxGasPriceBuffer = DefaultTxGasPriceBuffer
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants that are fatal at startup.
func (c Config) Validate() error {
	if len(c.Networks) == 0 {
		return fmt.Errorf("config declares no networks")
	}
	switch c.Agent.Evaluator {
	case EvaluatorSimple, EvaluatorScored:
	default:
		return fmt.Errorf("unknown evaluator %q, want %q or %q", c.Agent.Evaluator, EvaluatorSimple, EvaluatorScored)
	}
	if u := c.Agent.PriceOracleURL; u != "" &&
		!strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return fmt.Errorf("price_oracle_url %q must be http(s)", u)
	}
	seen := make(map[uint64]bool, len(c.Networks))
	for _, n := range c.Networks {
		if n.ChainID == 0 {
			return fmt.Errorf("network with zero chain_id")
		}
		if seen[n.ChainID] {
			return fmt.Errorf("duplicate network chain_id %d", n.ChainID)
		}
		seen[n.ChainID] = true
		switch {
		case strings.HasPrefix(n.RPCURL, "ws://"), strings.HasPrefix(n.RPCURL, "wss://"),
			strings.HasPrefix(n.RPCURL, "http://"), strings.HasPrefix(n.RPCURL, "https://"):
		default:
			return fmt.Errorf("network %d: rpc_url %q must be ws(s) or http(s)", n.ChainID, n.RPCURL)
		}
		if !common.IsHexAddress(n.RouterAddress) {
			return fmt.Errorf("network %d: invalid router_address %q", n.ChainID, n.RouterAddress)
		}
		for _, tok := range n.Tokens {
			if !common.IsHexAddress(tok) {
				return fmt.Errorf("network %d: invalid token address %q", n.ChainID, tok)
			}
		}
	}
	return nil
}

// ParsePrivateKey accepts a hex-encoded secp256k1 key with or without the 0x
// prefix.
func ParsePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, fmt.Errorf("empty private key")
	}
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("unusable private key: %w", err)
	}
	return key, nil
}
