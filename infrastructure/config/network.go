package config

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

// NetworkParams defines the parameters of a featherd network: its wire magic,
// the default listening port, and the DNS seeds used to discover peers.
type NetworkParams struct {
	Name        string
	Net         uint32
	DefaultPort string
	DNSSeeds    []string
}

// MainnetParams defines the network parameters for the main network.
var MainnetParams = NetworkParams{
	Name:        "mainnet",
	Net:         0xf3a7b2c1,
	DefaultPort: "18333",
	DNSSeeds: []string{
		"seed.featherchain.net",
		"seed2.featherchain.net",
	},
}

// TestnetParams defines the network parameters for the test network.
var TestnetParams = NetworkParams{
	Name:        "testnet",
	Net:         0xf3a7b2c2,
	DefaultPort: "18433",
	DNSSeeds: []string{
		"testnet-seed.featherchain.net",
	},
}

// SimnetParams defines the network parameters for the simulation network.
// It has no DNS seeds since peers on it are started manually.
var SimnetParams = NetworkParams{
	Name:        "simnet",
	Net:         0xf3a7b2c3,
	DefaultPort: "18533",
	DNSSeeds:    []string{},
}

// NetworkFlags holds the network configuration, that is which network is
// selected.
type NetworkFlags struct {
	Testnet bool `long:"testnet" description:"Use the test network"`
	Simnet  bool `long:"simnet" description:"Use the simulation test network"`

	ActiveNetParams *NetworkParams
}

// ResolveNetwork parses the network command line arguments and sets
// ActiveNetParams accordingly. It returns an error if more than one network
// was selected.
func (networkFlags *NetworkFlags) ResolveNetwork(parser *flags.Parser) error {
	// default network is mainnet
	networkFlags.ActiveNetParams = &MainnetParams

	// Multiple networks can't be selected simultaneously.
	numNets := 0
	if networkFlags.Testnet {
		numNets++
		networkFlags.ActiveNetParams = &TestnetParams
	}
	if networkFlags.Simnet {
		numNets++
		networkFlags.ActiveNetParams = &SimnetParams
	}
	if numNets > 1 {
		message := "Multiple network parameters (testnet, simnet, etc.) cannot be " +
			"used together. Please choose only one network"
		err := errors.Errorf(message)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return err
	}
	return nil
}

// NetParams returns the currently active network params
func (networkFlags *NetworkFlags) NetParams() *NetworkParams {
	return networkFlags.ActiveNetParams
}
