package resolver_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/km-arc/go-plugkit/framework/metadata"
	"github.com/km-arc/go-plugkit/framework/metrics"
	"github.com/km-arc/go-plugkit/framework/resolver"
	"github.com/km-arc/go-plugkit/framework/version"
)

// ── helpers ───────────────────────────────────────────────────────────────────

const platform = "bukkit"

func svc(name string, contract metadata.Contract, adapterVersions ...string) metadata.ServiceDescriptor {
	d := metadata.ServiceDescriptor{
		Implementation: name + "Impl",
		Name:           name,
		Contract:       contract,
		New:            func() (any, error) { return name, nil },
	}
	if len(adapterVersions) > 0 {
		d.Adapters = []metadata.Adapter{{Platform: platform, Versions: adapterVersions}}
	}
	return d
}

func runtime(v string) version.Runtime {
	return version.Runtime{Platform: platform, Version: version.MustParse(v)}
}

func resolve(t *testing.T, in resolver.Input) *resolver.Plan {
	t.Helper()
	plan, err := resolver.New().Resolve(context.Background(), in)
	require.NoError(t, err)
	return plan
}

func names(ds []metadata.ServiceDescriptor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Name
	}
	return out
}

// requirePartition asserts that every surviving candidate appears exactly
// once across winners and standalone.
func requirePartition(t *testing.T, in resolver.Input, plan *resolver.Plan) {
	t.Helper()
	seen := make(map[string]int)
	for _, d := range plan.Contracts {
		seen[d.Name]++
	}
	for _, d := range plan.Standalone {
		seen[d.Name]++
	}
	excluded := make(map[string]bool)
	for _, e := range plan.Excluded {
		excluded[e.Service.Name] = true
	}
	for _, c := range in.Candidates {
		if excluded[c.Name] {
			assert.Zero(t, seen[c.Name], "excluded service %s must not be registered", c.Name)
			continue
		}
		assert.Equal(t, 1, seen[c.Name], "service %s must appear exactly once", c.Name)
	}
}

// ── Grouping ──────────────────────────────────────────────────────────────────

func TestResolve_NoCollisions_BindsEveryContract(t *testing.T) {
	in := resolver.Input{
		Candidates: []metadata.ServiceDescriptor{
			svc("economy", "Economy", "1.12"),
			svc("chat", "Chat"),
			svc("scheduler", "Scheduler", "1.8", "1.12"),
			svc("helper", ""),
		},
		Runtime: runtime("1.12.2"),
	}

	plan := resolve(t, in)

	assert.Len(t, plan.Contracts, 3)
	assert.Equal(t, []metadata.Contract{"Economy", "Chat", "Scheduler"}, plan.ContractOrder)
	assert.Equal(t, []string{"helper"}, names(plan.Standalone))
	assert.Empty(t, plan.Demoted)
	assert.Empty(t, plan.Unresolved)
	assert.Equal(t, 4, plan.ServiceCount())
	requirePartition(t, in, plan)
}

// ── Closeness ─────────────────────────────────────────────────────────────────

func TestResolve_CloserAdapterWins(t *testing.T) {
	a := svc("A", "C", "1.0", "1.2")
	b := svc("B", "C", "1.1")

	for _, order := range [][]metadata.ServiceDescriptor{{a, b}, {b, a}} {
		in := resolver.Input{Candidates: order, Runtime: runtime("1.1")}
		plan := resolve(t, in)

		winner, ok := plan.Winner("C")
		require.True(t, ok)
		assert.Equal(t, "B", winner.Name)
		assert.Equal(t, []string{"A"}, names(plan.Standalone))
		require.Len(t, plan.Demoted, 1)
		assert.Equal(t, "A", plan.Demoted[0].Service.Name)
		requirePartition(t, in, plan)
	}
}

func TestResolve_EquidistantAdapters_FirstDiscoveredWins(t *testing.T) {
	// Runtime 1.5.5: 1.4.6 and 1.4.4 are both at distance 0.1.1.
	x := svc("x", "C", "1.4.6")
	y := svc("y", "C", "1.4.4")

	for _, tc := range []struct {
		order []metadata.ServiceDescriptor
		want  string
	}{
		{[]metadata.ServiceDescriptor{x, y}, "x"},
		{[]metadata.ServiceDescriptor{y, x}, "y"},
	} {
		plan := resolve(t, resolver.Input{Candidates: tc.order, Runtime: runtime("1.5.5")})
		w, _ := plan.Winner("C")
		assert.Equal(t, tc.want, w.Name)
		require.Len(t, plan.Demoted, 1)
		assert.Contains(t, plan.Demoted[0].Reason, "first discovered wins")
	}
}

func TestResolve_NearerMinorWins(t *testing.T) {
	plan := resolve(t, resolver.Input{
		Candidates: []metadata.ServiceDescriptor{
			svc("legacy", "C", "1.0"),
			svc("modern", "C", "1.12"),
		},
		Runtime: runtime("1.13"),
	})
	w, _ := plan.Winner("C")
	assert.Equal(t, "modern", w.Name)
}

// ── Adapter presence ──────────────────────────────────────────────────────────

func TestResolve_AdapterBeatsNoAdapter_RegardlessOfOrder(t *testing.T) {
	plain := svc("plain", "C")
	adapted := svc("adapted", "C", "1.12")

	for _, order := range [][]metadata.ServiceDescriptor{{plain, adapted}, {adapted, plain}} {
		in := resolver.Input{Candidates: order, Runtime: runtime("1.12")}
		plan := resolve(t, in)

		w, _ := plan.Winner("C")
		assert.Equal(t, "adapted", w.Name)
		assert.Equal(t, []string{"plain"}, names(plan.Standalone))
		requirePartition(t, in, plan)
	}
}

func TestResolve_TwoWithoutAdapters_FirstDiscoveredWins(t *testing.T) {
	plan := resolve(t, resolver.Input{
		Candidates: []metadata.ServiceDescriptor{svc("one", "C"), svc("two", "C")},
		Runtime:    runtime("1.0"),
	})
	w, _ := plan.Winner("C")
	assert.Equal(t, "one", w.Name)
	assert.Equal(t, []string{"two"}, names(plan.Standalone))
}

func TestResolve_DemotionIsTerminal(t *testing.T) {
	// p (no adapter) wins first, is displaced by q (1.0), q by r (1.12).
	// s (no adapter) arrives last and must not bring p back.
	in := resolver.Input{
		Candidates: []metadata.ServiceDescriptor{
			svc("p", "C"),
			svc("q", "C", "1.0"),
			svc("r", "C", "1.12"),
			svc("s", "C"),
		},
		Runtime: runtime("1.12"),
	}
	plan := resolve(t, in)

	w, _ := plan.Winner("C")
	assert.Equal(t, "r", w.Name)
	assert.Equal(t, []string{"p", "q", "s"}, names(plan.Standalone))
	assert.Len(t, plan.Demoted, 3)
	requirePartition(t, in, plan)
}

// ── Filters ───────────────────────────────────────────────────────────────────

func TestResolve_FeatureGate(t *testing.T) {
	d := svc("D", "")
	d.Feature = &metadata.FeatureGate{Feature: "beta", Enabled: true}

	off := svc("legacyUI", "")
	off.Feature = &metadata.FeatureGate{Feature: "beta", Enabled: false}

	in := resolver.Input{Candidates: []metadata.ServiceDescriptor{d, off}, Runtime: runtime("1.0")}

	plan := resolve(t, in)
	assert.Equal(t, []string{"legacyUI"}, names(plan.Standalone))
	require.Len(t, plan.Excluded, 1)
	assert.Equal(t, resolver.FilterFeature, plan.Excluded[0].Filter)
	requirePartition(t, in, plan)

	in.Features = metadata.NewFeatureSet("beta")
	plan = resolve(t, in)
	assert.Equal(t, []string{"D"}, names(plan.Standalone))
}

func TestResolve_FeatureGatedContractCandidateNeverWins(t *testing.T) {
	gated := svc("gated", "C", "1.0")
	gated.Feature = &metadata.FeatureGate{Feature: "legacy", Enabled: false}

	plan := resolve(t, resolver.Input{
		Candidates: []metadata.ServiceDescriptor{gated, svc("fallback", "C")},
		Features:   metadata.NewFeatureSet("legacy"),
		Runtime:    runtime("1.0"),
	})

	w, _ := plan.Winner("C")
	assert.Equal(t, "fallback", w.Name)
	assert.Empty(t, plan.Standalone)
}

func TestResolve_VersionFilter(t *testing.T) {
	wrongPlatform := svc("velocityOnly", "")
	wrongPlatform.Adapters = []metadata.Adapter{{Platform: "velocity", Versions: []string{"3.0"}}}

	in := resolver.Input{
		Candidates: []metadata.ServiceDescriptor{
			svc("tooNew", "", "1.13"),
			wrongPlatform,
			svc("agnostic", ""),
			svc("fits", "", "1.12"),
		},
		Runtime: runtime("1.12.2"),
	}
	plan := resolve(t, in)

	assert.Equal(t, []string{"agnostic", "fits"}, names(plan.Standalone))
	require.Len(t, plan.Excluded, 2)
	for _, e := range plan.Excluded {
		assert.Equal(t, resolver.FilterVersion, e.Filter)
	}
	requirePartition(t, in, plan)
}

func TestResolve_OnlyCompatibleAdaptersRankBestVersion(t *testing.T) {
	// multi declares a velocity adapter at exactly the runtime number; it
	// must not count because the platform differs.
	multi := svc("multi", "C")
	multi.Adapters = []metadata.Adapter{
		{Platform: "velocity", Versions: []string{"1.12"}},
		{Platform: platform, Versions: []string{"1.8"}},
	}
	plan := resolve(t, resolver.Input{
		Candidates: []metadata.ServiceDescriptor{multi, svc("near", "C", "1.11")},
		Runtime:    runtime("1.12"),
	})
	w, _ := plan.Winner("C")
	assert.Equal(t, "near", w.Name)
}

// ── Unresolved contracts ──────────────────────────────────────────────────────

func TestResolve_UnresolvedContractsWarn(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := resolver.New(resolver.WithLogger(zap.New(core)))

	plan, err := r.Resolve(context.Background(), resolver.Input{
		Candidates: []metadata.ServiceDescriptor{svc("economy", "Economy", "2.0")},
		Contracts:  []metadata.Contract{"Permissions", "Economy"},
		Runtime:    runtime("1.12"),
	})
	require.NoError(t, err)

	assert.Equal(t, []metadata.Contract{"Permissions", "Economy"}, plan.Unresolved)
	assert.Equal(t, 2, logs.FilterMessage("cannot find service matching contract").Len())

	summary := logs.FilterMessage("resolved services").All()
	require.Len(t, summary, 1)
	fields := summary[0].ContextMap()
	assert.EqualValues(t, 0, fields["contracts"])
	assert.EqualValues(t, 0, fields["services"])
	assert.EqualValues(t, 2, fields["unresolved"])
}

// ── Errors ────────────────────────────────────────────────────────────────────

func TestResolve_MalformedVersionIsFatal(t *testing.T) {
	bad := svc("bad", "C", "1.x")
	bad.Feature = &metadata.FeatureGate{Feature: "never", Enabled: true}

	_, err := resolver.New().Resolve(context.Background(), resolver.Input{
		Candidates: []metadata.ServiceDescriptor{svc("good", "C", "1.0"), bad},
		Runtime:    runtime("1.0"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, version.ErrMalformedVersion))
	assert.Contains(t, err.Error(), "bad")
}

func TestResolve_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := resolver.New().Resolve(ctx, resolver.Input{})
	assert.ErrorIs(t, err, context.Canceled)
}

// ── Metrics & determinism ─────────────────────────────────────────────────────

func TestResolve_RecordsMetrics(t *testing.T) {
	c := metrics.NewCollector(prometheus.NewRegistry())
	r := resolver.New(resolver.WithMetrics(c))

	gated := svc("gated", "")
	gated.Feature = &metadata.FeatureGate{Feature: "beta", Enabled: true}

	_, err := r.Resolve(context.Background(), resolver.Input{
		Candidates: []metadata.ServiceDescriptor{svc("A", "C", "1.0"), svc("B", "C", "1.1"), gated},
		Runtime:    runtime("1.1"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.ContractsBound))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ServicesStandalone))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Demotions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Exclusions.WithLabelValues(resolver.FilterFeature)))
}

func TestResolve_Deterministic(t *testing.T) {
	var candidates []metadata.ServiceDescriptor
	for i := 0; i < 20; i++ {
		candidates = append(candidates, svc(fmt.Sprintf("s%02d", i), metadata.Contract(fmt.Sprintf("C%d", i%4)), fmt.Sprintf("1.%d", i%7)))
	}
	in := resolver.Input{Candidates: candidates, Runtime: runtime("1.6")}

	first := resolve(t, in)
	for i := 0; i < 5; i++ {
		again := resolve(t, in)
		assert.Equal(t, first.ContractOrder, again.ContractOrder)
		assert.Equal(t, names(first.Standalone), names(again.Standalone))
		for _, c := range first.ContractOrder {
			assert.Equal(t, first.Contracts[c].Name, again.Contracts[c].Name)
		}
	}
	requirePartition(t, in, first)
}
