// Package addressmanager holds the pool of candidate peer addresses the
// connectivity maintainer draws from.
package addressmanager

import (
	"math/rand"
	"sync"
	"time"
)

// AddressManager provides a concurrency safe pool of candidate peer
// addresses together with the set of addresses already attempted in the
// current connectivity cycle.
type AddressManager struct {
	mtx sync.Mutex

	addresses    []string
	addressIndex map[string]struct{}
	tried        map[string]struct{}

	random *rand.Rand
}

// New returns a new empty AddressManager.
func New() *AddressManager {
	return &AddressManager{
		addressIndex: make(map[string]struct{}),
		tried:        make(map[string]struct{}),
		random:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// AddAddress adds a candidate address to the pool. Duplicates are ignored.
func (am *AddressManager) AddAddress(address string) {
	am.mtx.Lock()
	defer am.mtx.Unlock()

	am.addAddressNoLock(address)
}

// AddAddresses adds a batch of candidate addresses to the pool.
func (am *AddressManager) AddAddresses(addresses ...string) {
	am.mtx.Lock()
	defer am.mtx.Unlock()

	for _, address := range addresses {
		am.addAddressNoLock(address)
	}
}

func (am *AddressManager) addAddressNoLock(address string) {
	if _, ok := am.addressIndex[address]; ok {
		return
	}
	am.addressIndex[address] = struct{}{}
	am.addresses = append(am.addresses, address)
	log.Debugf("Added address %s to the pool (%d known)", address, len(am.addresses))
}

// AddressCount returns the number of known candidate addresses.
func (am *AddressManager) AddressCount() int {
	am.mtx.Lock()
	defer am.mtx.Unlock()

	return len(am.addresses)
}

// TriedCount returns the number of addresses attempted in the current cycle.
func (am *AddressManager) TriedCount() int {
	am.mtx.Lock()
	defer am.mtx.Unlock()

	return len(am.tried)
}

// SelectUntried picks one address uniformly at random among the addresses
// not yet tried in the current cycle, marks it tried, and returns it.
//
// When every known address has been tried the cycle is over: the tried set
// is reset and selection starts a fresh cycle over the full pool. The second
// return value is false only when the pool itself is empty.
func (am *AddressManager) SelectUntried() (string, bool) {
	am.mtx.Lock()
	defer am.mtx.Unlock()

	if len(am.addresses) == 0 {
		return "", false
	}

	eligible := am.eligibleNoLock()
	if len(eligible) == 0 {
		// Cycle exhausted. Reset and draw from the full pool.
		am.tried = make(map[string]struct{}, len(am.addresses))
		eligible = am.addresses
		log.Debugf("All %d known addresses were tried, starting a new cycle", len(am.addresses))
	}

	choice := eligible[am.random.Intn(len(eligible))]
	am.tried[choice] = struct{}{}
	return choice, true
}

func (am *AddressManager) eligibleNoLock() []string {
	eligible := make([]string, 0, len(am.addresses))
	for _, address := range am.addresses {
		if _, ok := am.tried[address]; !ok {
			eligible = append(eligible, address)
		}
	}
	return eligible
}
