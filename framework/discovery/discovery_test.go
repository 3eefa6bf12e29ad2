package discovery_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-plugkit/framework/discovery"
	"github.com/km-arc/go-plugkit/framework/metadata"
	"github.com/km-arc/go-plugkit/framework/version"
)

func ctor(v any) metadata.Constructor {
	return func() (any, error) { return v, nil }
}

type stubModule struct{ name string }

// ── Catalog ───────────────────────────────────────────────────────────────────

func TestCatalog_Scan_KeepsRegistrationOrder(t *testing.T) {
	cat := discovery.NewCatalog().
		Contract("Economy", "Permissions", "Economy").
		Service("vault", ctor("vault"),
			discovery.WithContract("Economy"),
			discovery.WithSingleton(),
			discovery.WithAdapter("paper", "1.20", "1.21"),
			discovery.WithAdapter("spigot", "1.19")).
		Service("essentials", ctor("essentials"),
			discovery.WithContract("Economy"),
			discovery.WithImplementation("EssentialsEconomy")).
		Service("beta-shop", ctor("shop"), discovery.WithFeature("beta", true)).
		Module("bank", metadata.LoadOrderCore, &stubModule{"bank"}).
		Module("api", metadata.LoadOrderAPI, &stubModule{"api"}, "bank")

	d, err := cat.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []metadata.Contract{"Economy", "Permissions"}, d.Contracts)
	require.Len(t, d.Services, 3)
	assert.Equal(t, "vault", d.Services[0].Name)
	assert.True(t, d.Services[0].Singleton)
	assert.Len(t, d.Services[0].Adapters, 2)
	assert.Equal(t, "EssentialsEconomy", d.Services[1].Implementation)
	assert.Equal(t, "vault", d.Services[0].Implementation)
	assert.Equal(t, &metadata.FeatureGate{Feature: "beta", Enabled: true}, d.Services[2].Feature)

	require.Len(t, d.Modules, 2)
	assert.Equal(t, "bank", d.Modules[0].Name)
	assert.Equal(t, []string{"bank"}, d.Modules[1].DependsOn)
}

func TestCatalog_Scan_ReturnsCopies(t *testing.T) {
	cat := discovery.NewCatalog().Service("a", ctor(1))
	d, err := cat.Scan(context.Background())
	require.NoError(t, err)

	cat.Service("b", ctor(2))
	assert.Len(t, d.Services, 1)
}

func TestCatalog_Scan_RejectsInvalidDescriptors(t *testing.T) {
	_, err := discovery.NewCatalog().Service("broken", nil).Scan(context.Background())
	assert.Error(t, err)

	_, err = discovery.NewCatalog().Module("nil", metadata.LoadOrderAPI, nil).Scan(context.Background())
	assert.Error(t, err)
}

func TestCatalog_Scan_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := discovery.NewCatalog().Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// ── Chain ─────────────────────────────────────────────────────────────────────

func TestChain_ConcatenatesInOrder(t *testing.T) {
	first := discovery.NewCatalog().Contract("Economy").Service("a", ctor(1))
	second := discovery.NewCatalog().Contract("Economy", "Chat").Service("b", ctor(2))

	d, err := discovery.Chain(first, second).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []metadata.Contract{"Economy", "Chat"}, d.Contracts)
	require.Len(t, d.Services, 2)
	assert.Equal(t, "a", d.Services[0].Name)
	assert.Equal(t, "b", d.Services[1].Name)
}

func TestChain_StopsAtFirstError(t *testing.T) {
	boom := errors.New("scanner offline")
	failing := discovery.ScannerFunc(func(context.Context) (discovery.Discovery, error) {
		return discovery.Discovery{}, boom
	})

	_, err := discovery.Chain(discovery.NewCatalog(), failing).Scan(context.Background())
	assert.ErrorIs(t, err, boom)
}

// ── Features ──────────────────────────────────────────────────────────────────

func TestStaticFeatures(t *testing.T) {
	fs := discovery.StaticFeatures{"beta", " ", "chat"}.CurrentFeatures()
	assert.True(t, fs.Has("beta"))
	assert.True(t, fs.Has("chat"))
	assert.Len(t, fs, 2)
}

// ── Manifest ──────────────────────────────────────────────────────────────────

const manifestYAML = `
contracts: [Economy]
services:
  - name: economy
    implementation: vault
    contract: Economy
    singleton: true
    adapters:
      - platform: paper
        versions: ["1.20", "1.21"]
  - name: preview
    implementation: preview
    feature: {name: beta, enabled: true}
modules:
  - name: bank
    implementation: bank
    order: CORE
  - name: shop
    implementation: shop
    dependsOn: [bank]
`

func factories() discovery.Factories {
	return discovery.Factories{
		Services: map[string]metadata.Constructor{
			"vault":   ctor("vault"),
			"preview": ctor("preview"),
		},
		Modules: map[string]func() any{
			"bank": func() any { return &stubModule{"bank"} },
			"shop": func() any { return &stubModule{"shop"} },
		},
	}
}

func TestManifestScanner_Scan(t *testing.T) {
	d, err := discovery.NewManifestScannerFromBytes([]byte(manifestYAML), factories()).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []metadata.Contract{"Economy"}, d.Contracts)
	require.Len(t, d.Services, 2)
	eco := d.Services[0]
	assert.Equal(t, "economy", eco.Name)
	assert.Equal(t, "vault", eco.Implementation)
	assert.Equal(t, metadata.Contract("Economy"), eco.Contract)
	assert.True(t, eco.Singleton)
	assert.Equal(t, []metadata.Adapter{{Platform: "paper", Versions: []string{"1.20", "1.21"}}}, eco.Adapters)
	v, err := eco.New()
	require.NoError(t, err)
	assert.Equal(t, "vault", v)

	assert.Equal(t, &metadata.FeatureGate{Feature: "beta", Enabled: true}, d.Services[1].Feature)

	require.Len(t, d.Modules, 2)
	assert.Equal(t, metadata.LoadOrderCore, d.Modules[0].Order)
	assert.Equal(t, metadata.LoadOrderDefault, d.Modules[1].Order)
	assert.Equal(t, []string{"bank"}, d.Modules[1].DependsOn)
	assert.Equal(t, &stubModule{"shop"}, d.Modules[1].Instance)
}

func TestManifestScanner_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifestYAML), 0o600))

	d, err := discovery.NewManifestScanner(path, factories()).Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, d.Services, 2)
}

func TestManifestScanner_Errors(t *testing.T) {
	cases := map[string]struct {
		yaml string
		is   error
	}{
		"unknown service implementation": {
			yaml: "services:\n  - name: x\n    implementation: nope\n",
			is:   discovery.ErrUnknownFactory,
		},
		"unknown module implementation": {
			yaml: "modules:\n  - name: x\n    implementation: nope\n",
			is:   discovery.ErrUnknownFactory,
		},
		"malformed adapter version": {
			yaml: "services:\n  - name: x\n    implementation: vault\n    adapters:\n      - platform: paper\n        versions: [\"1.x\"]\n",
			is:   version.ErrMalformedVersion,
		},
		"unknown field": {
			yaml: "servces: []\n",
		},
		"bad load order": {
			yaml: "modules:\n  - name: x\n    implementation: bank\n    order: FIRST\n",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := discovery.NewManifestScannerFromBytes([]byte(tc.yaml), factories()).Scan(context.Background())
			require.Error(t, err)
			if tc.is != nil {
				assert.ErrorIs(t, err, tc.is)
			}
		})
	}
}

func TestManifestScanner_MissingFile(t *testing.T) {
	_, err := discovery.NewManifestScanner(filepath.Join(t.TempDir(), "absent.yaml"), factories()).Scan(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
