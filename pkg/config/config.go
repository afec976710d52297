// Package config loads the per-chain contract scope (chains.json) that
// tells a worked-example pipeline which deployed addresses its event
// handlers are decoding for.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
)

// ContractAddresses holds a chain's deployed contract addresses.
type ContractAddresses struct {
	CTFExchange       string `json:"ctfExchange"`
	ConditionalTokens string `json:"conditionalTokens"`
}

// All returns every address in Contracts, in a stable order.
func (c ContractAddresses) All() []string {
	return []string{c.CTFExchange, c.ConditionalTokens}
}

// ChainConfig holds configuration for a single blockchain network.
type ChainConfig struct {
	ChainID       int64             `json:"chainId"`
	Name          string            `json:"name"`
	RPCUrls       []string          `json:"rpcUrls"`
	WSUrls        []string          `json:"wsUrls"`
	Contracts     ContractAddresses `json:"contracts"`
	BlockTime     int               `json:"blockTime"`     // seconds
	Confirmations int               `json:"confirmations"` // blocks
	StartBlock    uint64            `json:"startBlock"`    // block to start indexing from
}

// GetAllContractAddresses returns the chain's contract addresses parsed as
// common.Address.
func (cc *ChainConfig) GetAllContractAddresses() []common.Address {
	strs := cc.Contracts.All()
	addrs := make([]common.Address, len(strs))
	for i, s := range strs {
		addrs[i] = common.HexToAddress(s)
	}
	return addrs
}

// GetAllContractAddressStrings returns the chain's contract addresses as
// hex strings.
func (cc *ChainConfig) GetAllContractAddressStrings() []string {
	return cc.Contracts.All()
}

// Config holds every chain's configuration, keyed by chain name.
type Config struct {
	Chains map[string]*ChainConfig `json:"chains"`
}

// LoadConfig reads and parses a chains.json-style file. Every chain's
// contract addresses are validated as well-formed hex addresses up front,
// so a malformed config fails at load time rather than surfacing later as
// a decode-time address parse error.
func LoadConfig(filepath string) (*Config, error) {
	raw, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	for name, chain := range cfg.Chains {
		for _, addr := range chain.Contracts.All() {
			if !common.IsHexAddress(addr) {
				return nil, fmt.Errorf("chain %s: invalid contract address %q", name, addr)
			}
		}
	}

	return &cfg, nil
}

// GetChain returns the named chain's configuration.
func (c *Config) GetChain(name string) (*ChainConfig, error) {
	chain, ok := c.Chains[name]
	if !ok {
		return nil, fmt.Errorf("chain %s not found in config", name)
	}
	return chain, nil
}
