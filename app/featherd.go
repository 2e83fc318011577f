package app

import (
	"github.com/pkg/errors"

	"github.com/featherchain/featherd/app/appmessage"
	"github.com/featherchain/featherd/app/protocol/dispatcher"
	"github.com/featherchain/featherd/app/protocol/headersync"
	"github.com/featherchain/featherd/app/protocol/ping"
	"github.com/featherchain/featherd/app/protocol/timeout"
	"github.com/featherchain/featherd/domain/headersstore"
	"github.com/featherchain/featherd/infrastructure/config"
	"github.com/featherchain/featherd/infrastructure/db/ldb"
	"github.com/featherchain/featherd/infrastructure/network/addressmanager"
	"github.com/featherchain/featherd/infrastructure/network/connectivity"
	"github.com/featherchain/featherd/infrastructure/network/connmanager"
	"github.com/featherchain/featherd/infrastructure/network/dnsseed"
	"github.com/featherchain/featherd/infrastructure/network/wire"
	"github.com/featherchain/featherd/util/random"
)

// featherd holds the running node: the connection manager, the message
// dispatcher with its protocol handlers, and the supporting infrastructure
// they need.
type featherd struct {
	cfg *config.Config

	db           *ldb.LevelDB
	headersStore *headersstore.Store

	connectionManager *connmanager.ConnectionManager
	dispatcher        *dispatcher.Dispatcher
	timeouts          *timeout.Registry
	pingHandler       *ping.Handler
	headerSync        *headersync.Handler
	addressPool       *addressmanager.AddressManager
	maintainer        *connectivity.Maintainer
}

func newFeatherd(cfg *config.Config) (*featherd, error) {
	db, err := ldb.NewLevelDB(cfg.DataDir())
	if err != nil {
		return nil, errors.Wrap(err, "couldn't open the headers database")
	}
	headersStore, err := headersstore.New(db)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "couldn't load the headers store")
	}

	nonce, err := random.Uint64()
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "couldn't generate the node nonce")
	}

	params := cfg.NetParams()
	connectionManager, err := connmanager.New(connmanager.Config{
		Nonce:              nonce,
		ProtocolVersion:    appmessage.ProtocolVersion,
		MinProtocolVersion: appmessage.MinAcceptableProtocolVersion,
		Services:           appmessage.SFNodeNetwork,
		UserAgent:          cfg.UserAgentString,
		Height:             headersStore.Height,
		BackPressure:       cfg.BackPressure,
		Codec:              wire.NewGobCodec(params.Net),
		Dial:               connmanager.DialerFromConfig(cfg),
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	timeouts := timeout.New(timeout.Config{
		Disconnect: connectionManager.Disconnect,
	})
	pingHandler := ping.New(ping.Config{
		Peers:      connectionManager.ConnectedPeerIDs,
		Send:       connectionManager.Send,
		Disconnect: connectionManager.Disconnect,
		Timeouts:   timeouts,
	})
	headerSync := headersync.New(headersync.Config{
		Store:      headersStore,
		Send:       connectionManager.Send,
		Disconnect: connectionManager.Disconnect,
		Timeouts:   timeouts,
	})

	messageDispatcher := dispatcher.New(connectionManager.IncomingMessages())
	messageDispatcher.AddListener(headerSync)
	messageDispatcher.AddListener(pingHandler)

	connectionManager.SetOnPeerReadyHandler(headerSync.OnPeerReady)
	connectionManager.SetOnPeerDisconnectedHandler(func(peerID string) {
		timeouts.DisarmPeer(peerID)
		pingHandler.OnPeerDisconnected(peerID)
		headerSync.OnPeerDisconnected(peerID)
	})

	addressPool := addressmanager.New()
	maintainer := connectivity.New(connectivity.Config{
		MinConnections:     cfg.MinConnections,
		ConnectedPeerCount: connectionManager.ConnectedPeerCount,
		Connect: func(address string) {
			_, err := connectionManager.AddPeer(connmanager.OutboundPeer(address))
			if err != nil {
				log.Debugf("Couldn't connect to %s: %s", address, err)
			}
		},
		AddressPool: addressPool,
	})

	return &featherd{
		cfg:               cfg,
		db:                db,
		headersStore:      headersStore,
		connectionManager: connectionManager,
		dispatcher:        messageDispatcher,
		timeouts:          timeouts,
		pingHandler:       pingHandler,
		headerSync:        headerSync,
		addressPool:       addressPool,
		maintainer:        maintainer,
	}, nil
}

func (f *featherd) start() error {
	log.Infof("Featherd starting on %s", f.cfg.NetParams().Name)

	f.timeouts.Start()
	f.dispatcher.Start()
	f.pingHandler.Start()

	if !f.cfg.DisableListen {
		for _, listener := range f.cfg.Listeners {
			err := f.connectionManager.Bind(listener)
			if err != nil {
				return err
			}
		}
	}

	f.seedAddressPool()
	f.connectInitialPeers()
	f.maintainer.Start()
	return nil
}

// seedAddressPool feeds the connectivity maintainer's address pool from the
// configured peers and, unless disabled, the network's DNS seeds.
func (f *featherd) seedAddressPool() {
	f.addressPool.AddAddresses(f.cfg.AddPeers...)
	f.addressPool.AddAddresses(f.cfg.ConnectPeers...)

	if f.cfg.DisableDNSSeed || len(f.cfg.ConnectPeers) > 0 {
		return
	}
	dnsseed.SeedFromDNS(f.cfg.NetParams(), f.cfg.DNSSeed, func(addresses []string) {
		f.addressPool.AddAddresses(addresses...)
	})
}

// connectInitialPeers dials the explicitly configured peers without waiting
// for the first maintainer tick.
func (f *featherd) connectInitialPeers() {
	initialPeers := append([]string{}, f.cfg.AddPeers...)
	initialPeers = append(initialPeers, f.cfg.ConnectPeers...)

	for _, address := range initialPeers {
		address := address
		spawn("featherd.connectInitialPeers-"+address, func() {
			_, err := f.connectionManager.AddPeer(connmanager.OutboundPeer(address))
			if err != nil {
				log.Warnf("Couldn't connect to %s: %s", address, err)
			}
		})
	}
}

func (f *featherd) stop() {
	log.Infof("Featherd shutting down")

	f.maintainer.Stop()
	f.pingHandler.Stop()
	f.connectionManager.Stop()
	f.dispatcher.Stop()
	f.timeouts.Stop()

	err := f.db.Close()
	if err != nil {
		log.Errorf("Couldn't close the headers database: %s", err)
	}
}
