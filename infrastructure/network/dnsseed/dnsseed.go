// Package dnsseed discovers candidate peer addresses by resolving the DNS
// seeds of the active network.
package dnsseed

import (
	"net"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"

	"github.com/featherchain/featherd/infrastructure/config"
)

const queryTimeout = 10 * time.Second

// OnSeedAddresses is the signature of the callback function which is invoked
// with the addresses a seed resolved to.
type OnSeedAddresses func(addresses []string)

// SeedFromDNS uses DNS seeding to populate the address pool with peers to
// connect to. One query goroutine is spawned per seed; lookup failures are
// logged and swallowed since seeding is best effort.
func SeedFromDNS(params *config.NetworkParams, seedOverride string, onAddresses OnSeedAddresses) {
	seeds := params.DNSSeeds
	if seedOverride != "" {
		seeds = []string{seedOverride}
	}

	for _, seed := range seeds {
		seedCopy := seed
		spawn("SeedFromDNS-"+seedCopy, func() {
			addresses, err := lookup(seedCopy, params.DefaultPort)
			if err != nil {
				log.Infof("DNS discovery failed on seed %s: %s", seedCopy, err)
				return
			}
			log.Infof("%d addresses found from DNS seed %s", len(addresses), seedCopy)
			if len(addresses) > 0 {
				onAddresses(addresses)
			}
		})
	}
}

func lookup(seed, defaultPort string) ([]string, error) {
	clientConfig, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return nil, errors.Wrap(err, "couldn't load resolver configuration")
	}
	if len(clientConfig.Servers) == 0 {
		return nil, errors.New("no DNS servers configured")
	}
	server := net.JoinHostPort(clientConfig.Servers[0], clientConfig.Port)

	client := &dns.Client{Timeout: queryTimeout}

	var addresses []string
	for _, queryType := range []uint16{dns.TypeA, dns.TypeAAAA} {
		message := new(dns.Msg)
		message.SetQuestion(dns.Fqdn(seed), queryType)
		response, _, err := client.Exchange(message, server)
		if err != nil {
			return nil, errors.Wrapf(err, "DNS query for %s failed", seed)
		}
		for _, answer := range response.Answer {
			switch record := answer.(type) {
			case *dns.A:
				addresses = append(addresses, net.JoinHostPort(record.A.String(), defaultPort))
			case *dns.AAAA:
				addresses = append(addresses, net.JoinHostPort(record.AAAA.String(), defaultPort))
			}
		}
	}
	return addresses, nil
}
