package app

import (
	"github.com/ssouza/wamd/internal/keys"
	"github.com/ssouza/wamd/internal/services/appstate"
	"github.com/ssouza/wamd/internal/services/cipher"
	"github.com/ssouza/wamd/internal/services/groups"
	"github.com/ssouza/wamd/internal/services/pairing"
	"github.com/ssouza/wamd/internal/services/prekey"
	"github.com/ssouza/wamd/internal/store"
	"github.com/ssouza/wamd/internal/transport"
)

// Wire bundles the stores and services for the CLI.
type Wire struct {
	Prefs     *store.Prefs
	Keys      *keys.Keys
	PreKeys   *prekey.Service
	Groups    *groups.Service
	Cipher    *cipher.Service
	AppState  *appstate.Service
	Pairing   *pairing.Service
	Transport *transport.AEAD
}

// NewWire constructs the dependency graph from cfg. The blob fetcher
// for external app-state snapshots is injected by the dispatcher; nil
// disables that path.
func NewWire(cfg Config, fetch appstate.BlobFetcher) (*Wire, error) {
	cfg = cfg.Defaults()

	prefs, err := store.NewPrefs(cfg.Home, cfg.Passphrase)
	if err != nil {
		return nil, err
	}
	ks, err := keys.Load(prefs, cfg.ID)
	if err != nil {
		return nil, err
	}

	groupSvc := groups.New(ks, groups.DefaultConfig())
	cipherSvc := cipher.New(ks, groupSvc, cipher.Config{
		MaxSkippedPerChain: cfg.MaxSkippedPerChain,
		MaxTotalSkipped:    cfg.MaxTotalSkipped,
		MaxReceiveChains:   cfg.MaxReceiveChains,
	})

	return &Wire{
		Prefs:     prefs,
		Keys:      ks,
		PreKeys:   prekey.New(ks, cfg.PreKeyBatch),
		Groups:    groupSvc,
		Cipher:    cipherSvc,
		AppState:  appstate.New(ks, fetch),
		Pairing:   pairing.New(ks),
		Transport: transport.New(ks),
	}, nil
}
