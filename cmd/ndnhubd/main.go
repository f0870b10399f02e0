// Command ndnhubd is the thin process entrypoint wiring the Named-Data
// Manager, Trie Object Map storage, and trust core behind the /ndn and
// /kapi HTTP surfaces (SPEC_FULL §0). Process supervision, configuration
// loading proper, and TLS termination are out of scope (spec.md Non-goals);
// this binary only does the minimal wiring a deployer needs to run one
// zone's hub.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/cyfs-go/ndncore/chunks"
	"github.com/cyfs-go/ndncore/hash"
	"github.com/cyfs-go/ndncore/internal/derr"
	"github.com/cyfs-go/ndncore/internal/logging"
	"github.com/cyfs-go/ndncore/kapi"
	"github.com/cyfs-go/ndncore/ndn"
	"github.com/cyfs-go/ndncore/ndnserver"
	"github.com/cyfs-go/ndncore/objstore"
	"github.com/cyfs-go/ndncore/trust"
)

func main() {
	log := logging.New("ndnhubd")

	dataRoot := os.Getenv("NDNCORE_DATA_ROOT")
	if dataRoot == "" {
		dataRoot = "/var/lib/ndncore"
	}
	configRoot := os.Getenv("NDNCORE_CONFIG_ROOT")
	if configRoot == "" {
		configRoot = "/etc/ndncore"
	}

	zone, err := loadZoneConfig(configRoot)
	if err != nil {
		log.Fatalw("failed to load zone config", "err", err)
	}
	if zone.DataRoot != "" {
		dataRoot = zone.DataRoot
	}
	listenAddr := zone.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8443"
	}

	hubPub, hubPriv, err := zone.hubKeyPair()
	if err != nil {
		log.Fatalw("invalid hub keypair", "err", err)
	}

	store, err := openStore(dataRoot)
	if err != nil {
		log.Fatalw("failed to open storage", "err", err)
	}

	keys, err := trust.NewKeyCache(64, hubPub, nil)
	if err != nil {
		log.Fatalw("failed to build trust key cache", "err", err)
	}
	if len(zone.RootPublicKey) > 0 {
		keys.Put(trust.KidRoot, zone.RootPublicKey)
	}
	if device, derr2 := loadDeviceConfig(configRoot); derr2 != nil {
		log.Fatalw("failed to load device config", "err", derr2)
	} else if device != nil && len(device.DevicePublicKey) > 0 {
		keys.Put(device.DeviceId, device.DevicePublicKey)
	}

	hub := trust.NewHub(trust.HubConfig{
		PrivateKey:     hubPriv,
		PublicKey:      hubPub,
		Keys:           keys,
		AllowedIssuers: []string{trust.KidRoot},
	})

	resolver := ndn.NewResolver(store)
	ndnSrv := ndnserver.NewServer(resolver, &trust.HubVerifier{Hub: hub})
	ndnSrv.Devices = &trust.DeviceAuthenticator{Keys: keys}

	dispatcher := kapi.NewDispatcher()
	dispatcher.Mount(kapi.NewNdnService(resolver))
	dispatcher.Mount(kapi.NewVerifyHubService(hub))

	root := mux.NewRouter()
	root.PathPrefix("/ndn/").Handler(ndnSrv.Router())
	root.PathPrefix("/kapi/").Handler(dispatcher.Router())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reconciler := trust.NewReconciler(hub, keys)
	go reconciler.Run(ctx)

	heartbeat := trust.NewHeartbeat(zone.ZoneId, listenAddr, trust.NoopHeartbeatSink{})
	go heartbeat.Run(ctx)

	httpSrv := &http.Server{Addr: listenAddr, Handler: root}
	go func() {
		log.Infow("ndnhubd listening", "addr", listenAddr, "zone", zone.ZoneId)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("http server exited", "err", err)
		}
	}()

	<-ctx.Done()
	log.Infow("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("graceful shutdown failed", "err", err)
	}
}

func openStore(dataRoot string) (*objstore.Store, error) {
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return nil, derr.Wrap(derr.IoError, "openStore", dataRoot, err)
	}

	chunkBackend := chunks.NewFSBackend(dataRoot)
	mgr := chunks.NewManager("hub", chunkBackend)

	objectBackend := objstore.NewFSObjectBackend(dataRoot)
	paths, err := objstore.OpenBoltPathTable(dataRoot + "/paths.sqlite")
	if err != nil {
		return nil, err
	}

	return objstore.NewStore(mgr, objectBackend, paths, hash.Sha256), nil
}
