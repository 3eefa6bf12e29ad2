package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/km-arc/go-plugkit/framework/metadata"
	"github.com/km-arc/go-plugkit/framework/version"
)

// ErrUnknownFactory is returned when a manifest names an implementation that
// has no entry in the factory table.
var ErrUnknownFactory = errors.New("unknown implementation")

// ── Manifest format ───────────────────────────────────────────────────────────

// Manifest is the YAML form of a discovery feed:
//
//	contracts: [economy.Economy]
//	services:
//	  - name: economy
//	    implementation: vault
//	    contract: economy.Economy
//	    singleton: true
//	    feature: {name: beta, enabled: true}
//	    adapters:
//	      - platform: paper
//	        versions: ["1.20", "1.21"]
//	modules:
//	  - name: shop
//	    implementation: shop
//	    order: CORE
//	    dependsOn: [bank]
type Manifest struct {
	Contracts []metadata.Contract `json:"contracts,omitempty"`
	Services  []ServiceEntry      `json:"services,omitempty"`
	Modules   []ModuleEntry       `json:"modules,omitempty"`
}

// ServiceEntry declares one service.
type ServiceEntry struct {
	Name           string             `json:"name"`
	Implementation string             `json:"implementation"`
	Contract       metadata.Contract  `json:"contract,omitempty"`
	Singleton      bool               `json:"singleton,omitempty"`
	Feature        *FeatureEntry      `json:"feature,omitempty"`
	Adapters       []metadata.Adapter `json:"adapters,omitempty"`
}

// FeatureEntry is the YAML form of a feature gate.
type FeatureEntry struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// ModuleEntry declares one module.
type ModuleEntry struct {
	Name           string   `json:"name"`
	Implementation string   `json:"implementation"`
	Order          string   `json:"order,omitempty"`
	DependsOn      []string `json:"dependsOn,omitempty"`
}

// ParseManifest decodes a YAML manifest. Unknown fields are rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.UnmarshalStrict(data, &m); err != nil {
		return nil, fmt.Errorf("discovery: parse manifest: %w", err)
	}
	return &m, nil
}

// ── Factories ─────────────────────────────────────────────────────────────────

// Factories maps implementation names used in manifests to Go code.
type Factories struct {
	Services map[string]metadata.Constructor
	Modules  map[string]func() any
}

// ── ManifestScanner ───────────────────────────────────────────────────────────

// ManifestScanner reads a YAML manifest and binds its entries to factories.
// Manifest order is discovery order.
type ManifestScanner struct {
	path      string
	data      []byte
	factories Factories
}

// NewManifestScanner reads the manifest at path on every Scan.
func NewManifestScanner(path string, factories Factories) *ManifestScanner {
	return &ManifestScanner{path: path, factories: factories}
}

// NewManifestScannerFromBytes scans an in-memory manifest.
func NewManifestScannerFromBytes(data []byte, factories Factories) *ManifestScanner {
	return &ManifestScanner{data: data, factories: factories}
}

func (s *ManifestScanner) Scan(ctx context.Context) (Discovery, error) {
	if err := ctx.Err(); err != nil {
		return Discovery{}, err
	}
	data := s.data
	if s.path != "" {
		b, err := os.ReadFile(s.path)
		if err != nil {
			return Discovery{}, fmt.Errorf("discovery: read manifest: %w", err)
		}
		data = b
	}

	m, err := ParseManifest(data)
	if err != nil {
		return Discovery{}, err
	}
	d, err := s.bind(m)
	if err != nil {
		return Discovery{}, err
	}
	return d, d.Validate()
}

func (s *ManifestScanner) bind(m *Manifest) (Discovery, error) {
	d := Discovery{Contracts: m.Contracts}

	for _, e := range m.Services {
		ctor, ok := s.factories.Services[e.Implementation]
		if !ok {
			return Discovery{}, fmt.Errorf("discovery: service %s: %w %q", e.Name, ErrUnknownFactory, e.Implementation)
		}
		desc := metadata.ServiceDescriptor{
			Name:           e.Name,
			Implementation: e.Implementation,
			Contract:       e.Contract,
			Singleton:      e.Singleton,
			Adapters:       e.Adapters,
			New:            ctor,
		}
		if e.Feature != nil {
			desc.Feature = &metadata.FeatureGate{Feature: e.Feature.Name, Enabled: e.Feature.Enabled}
		}
		for _, a := range desc.Adapters {
			if _, err := version.ParseAll(a.Versions); err != nil {
				return Discovery{}, fmt.Errorf("discovery: service %s adapter %s: %w", e.Name, a.Platform, err)
			}
		}
		d.Services = append(d.Services, desc)
	}

	for _, e := range m.Modules {
		factory, ok := s.factories.Modules[e.Implementation]
		if !ok {
			return Discovery{}, fmt.Errorf("discovery: module %s: %w %q", e.Name, ErrUnknownFactory, e.Implementation)
		}
		order, err := metadata.ParseLoadOrder(e.Order)
		if err != nil {
			return Discovery{}, fmt.Errorf("discovery: module %s: %w", e.Name, err)
		}
		d.Modules = append(d.Modules, metadata.ModuleDescriptor{
			Name:      e.Name,
			Order:     order,
			DependsOn: e.DependsOn,
			Instance:  factory(),
		})
	}
	return d, nil
}
