package metadata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-plugkit/framework/metadata"
)

func noop() (any, error) { return struct{}{}, nil }

func TestFeatureGate_Allows(t *testing.T) {
	beta := metadata.NewFeatureSet("beta", " ", "")

	tests := []struct {
		name string
		gate *metadata.FeatureGate
		fs   metadata.FeatureSet
		want bool
	}{
		{"no gate", nil, nil, true},
		{"requires enabled, present", &metadata.FeatureGate{Feature: "beta", Enabled: true}, beta, true},
		{"requires enabled, absent", &metadata.FeatureGate{Feature: "beta", Enabled: true}, nil, false},
		{"requires disabled, present", &metadata.FeatureGate{Feature: "beta", Enabled: false}, beta, false},
		{"requires disabled, absent", &metadata.FeatureGate{Feature: "beta", Enabled: false}, metadata.NewFeatureSet(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.gate.Allows(tt.fs))
		})
	}
	assert.Len(t, beta, 1)
}

func TestServiceDescriptor_Validate(t *testing.T) {
	ok := metadata.ServiceDescriptor{Name: "economy", New: noop,
		Adapters: []metadata.Adapter{{Platform: "bukkit", Versions: []string{"1.12"}}}}
	require.NoError(t, ok.Validate())

	noName := ok
	noName.Name = ""
	assert.Error(t, noName.Validate())

	noCtor := ok
	noCtor.New = nil
	assert.Error(t, noCtor.Validate())

	noVersions := ok
	noVersions.Adapters = []metadata.Adapter{{Platform: "bukkit"}}
	assert.Error(t, noVersions.Validate())

	emptyGate := ok
	emptyGate.Feature = &metadata.FeatureGate{}
	assert.Error(t, emptyGate.Validate())
}

func TestServiceDescriptor_ID(t *testing.T) {
	assert.Equal(t, "economy", metadata.ServiceDescriptor{Name: "economy"}.ID())
	assert.Equal(t, "economy(VaultEconomy)", metadata.ServiceDescriptor{Name: "economy", Implementation: "VaultEconomy"}.ID())
}

func TestParseLoadOrder(t *testing.T) {
	o, err := metadata.ParseLoadOrder("core")
	require.NoError(t, err)
	assert.Equal(t, metadata.LoadOrderCore, o)

	o, err = metadata.ParseLoadOrder("")
	require.NoError(t, err)
	assert.Equal(t, metadata.LoadOrderDefault, o)

	_, err = metadata.ParseLoadOrder("sometime")
	assert.Error(t, err)

	assert.True(t, metadata.LoadOrderAPI < metadata.LoadOrderCore)
	assert.Equal(t, "CORE", metadata.LoadOrderCore.String())
}
