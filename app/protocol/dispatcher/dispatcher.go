// Package dispatcher fans inbound peer messages out to an ordered list of
// listeners.
package dispatcher

import (
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"

	"github.com/featherchain/featherd/app/appmessage"
	"github.com/featherchain/featherd/infrastructure/network/connmanager"
)

// Listener consumes inbound peer messages. A listener inspects every message
// and acts on the ones it cares about.
type Listener interface {
	// Name identifies the listener in logs.
	Name() string

	// OnMessage handles one inbound message. An error is logged and does
	// not stop delivery to the listeners after it.
	OnMessage(peerID string, message appmessage.Message) error
}

// Dispatcher drains the connection manager's shared inbound channel and
// delivers every message to every registered listener in registration order.
// There is exactly one delivery goroutine, so listeners observe messages in
// arrival order and never concurrently.
type Dispatcher struct {
	incoming  <-chan connmanager.Envelope
	listeners []Listener

	started uint32
	stop    uint32
	quit    chan struct{}
	done    chan struct{}
}

// New returns a Dispatcher draining the given channel.
func New(incoming <-chan connmanager.Envelope) *Dispatcher {
	return &Dispatcher{
		incoming: incoming,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// AddListener appends a listener to the delivery order. Must be called before
// Start.
func (d *Dispatcher) AddListener(listener Listener) {
	if atomic.LoadUint32(&d.started) != 0 {
		panic("AddListener called after Start")
	}
	d.listeners = append(d.listeners, listener)
	log.Debugf("Registered listener %s", listener.Name())
}

// Start launches the delivery loop.
func (d *Dispatcher) Start() {
	if !atomic.CompareAndSwapUint32(&d.started, 0, 1) {
		panic("dispatcher started more than once")
	}
	spawn("Dispatcher.deliveryLoop", d.deliveryLoop)
}

// Stop terminates the delivery loop and waits for it to exit. Messages still
// queued on the shared channel are discarded.
func (d *Dispatcher) Stop() {
	if !atomic.CompareAndSwapUint32(&d.stop, 0, 1) {
		log.Warnf("Dispatcher stopped more than once")
		return
	}
	close(d.quit)
	<-d.done
}

func (d *Dispatcher) deliveryLoop() {
	defer close(d.done)

	for {
		select {
		case envelope := <-d.incoming:
			d.deliver(envelope)
		case <-d.quit:
			return
		}
	}
}

// deliver hands the message to every listener in order. A failing listener is
// isolated: its error is logged and the remaining listeners still run.
func (d *Dispatcher) deliver(envelope connmanager.Envelope) {
	for _, listener := range d.listeners {
		err := listener.OnMessage(envelope.PeerID, envelope.Message)
		if err != nil {
			log.Errorf("Listener %s failed on %s from %s: %s",
				listener.Name(), envelope.Message.Command(), envelope.PeerID, err)
			log.Debugf("Failing message: %s", spew.Sdump(envelope.Message))
		}
	}
}
