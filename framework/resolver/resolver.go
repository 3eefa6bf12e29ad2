// Package resolver turns a discovered list of service descriptors into a
// binding plan: which implementation wins each contract, and which services
// are registered standalone.
//
// A pass runs four steps in order:
//
//  1. feature filter: a gated service survives only if its gate allows the
//     enabled feature set;
//  2. version filter: a service with adapters survives only if one adapter
//     matches the runtime as compatible or exact;
//  3. grouping by contract, in discovery order;
//  4. conflict resolution inside each contract group.
//
// Conflict resolution walks a group in discovery order with the first member
// as the incumbent. A challenger without adapters never displaces anyone. An
// adapter-less incumbent always loses to a challenger with adapters. When both
// carry adapters, each side's best version (see version.Best) is compared by
// closeness to the runtime version and only a strictly closer challenger
// wins. Equal closeness keeps the incumbent, so the first-discovered service
// wins ties. Losers are demoted to standalone and never re-enter contention.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/km-arc/go-plugkit/framework/logging"
	"github.com/km-arc/go-plugkit/framework/metadata"
	"github.com/km-arc/go-plugkit/framework/metrics"
	"github.com/km-arc/go-plugkit/framework/version"
)

// Interface computes a Plan for a given Input.
type Interface interface {
	Resolve(ctx context.Context, in Input) (*Plan, error)
}

// Resolver is the default Interface. It keeps no state between calls.
type Resolver struct {
	log     *zap.Logger
	metrics *metrics.Collector
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// WithMetrics records every pass on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Resolver) { r.metrics = c }
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logging.OrNop(r.log).Named("resolver")
	return r
}

// candidate is a descriptor that survived filtering.
type candidate struct {
	desc  metadata.ServiceDescriptor
	index int
	// best is the closest usable adapter version; zero when the service
	// has no adapters.
	best version.Version
}

func (c candidate) hasAdapters() bool { return !c.best.IsZero() }

// Resolve runs one resolution pass. The only error it returns is a wrapped
// version.ErrMalformedVersion (or ctx.Err() if ctx is already done).
func (r *Resolver) Resolve(ctx context.Context, in Input) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	parsed, err := parseAdapters(in.Candidates)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Contracts: make(map[metadata.Contract]metadata.ServiceDescriptor)}

	survivors := make([]candidate, 0, len(in.Candidates))
	for i, desc := range in.Candidates {
		if !desc.Feature.Allows(in.Features) {
			r.exclude(plan, desc, FilterFeature, fmt.Sprintf("feature gate %s not satisfied", desc.Feature))
			continue
		}

		c := candidate{desc: desc, index: i}
		if desc.HasAdapters() {
			usable := usableVersions(desc, parsed[i], in.Runtime)
			if len(usable) == 0 {
				r.exclude(plan, desc, FilterVersion, "no adapter compatible with "+in.Runtime.String())
				continue
			}
			c.best, _ = version.Best(in.Runtime.Version, usable)
		}
		survivors = append(survivors, c)
	}

	winners := r.contend(plan, survivors, in.Runtime.Version)

	for _, c := range survivors {
		if w, ok := winners[c.desc.Contract]; ok && w.index == c.index {
			continue
		}
		plan.Standalone = append(plan.Standalone, c.desc)
	}
	for _, contract := range plan.ContractOrder {
		plan.Contracts[contract] = winners[contract].desc
	}

	plan.Unresolved = unresolvedContracts(in, plan)

	r.report(plan)
	r.metrics.ObserveResolution(time.Since(start), len(plan.Contracts), len(plan.Unresolved), len(plan.Standalone), len(plan.Demoted))
	return plan, nil
}

// contend resolves every contract group and returns the final winners.
// plan.ContractOrder and plan.Demoted are filled along the way.
func (r *Resolver) contend(plan *Plan, survivors []candidate, running version.Version) map[metadata.Contract]candidate {
	winners := make(map[metadata.Contract]candidate)

	for _, challenger := range survivors {
		if !challenger.desc.HasContract() {
			continue
		}
		contract := challenger.desc.Contract

		incumbent, ok := winners[contract]
		if !ok {
			winners[contract] = challenger
			plan.ContractOrder = append(plan.ContractOrder, contract)
			continue
		}

		var reason string
		challengerWins := false
		switch {
		case !challenger.hasAdapters():
			reason = "no adapter declared"
		case !incumbent.hasAdapters():
			challengerWins = true
			reason = "no adapter declared"
		default:
			cmp := version.Closer(running, challenger.best, incumbent.best)
			challengerWins = cmp < 0
			if cmp == 0 {
				reason = fmt.Sprintf("best version %s ties with %s, first discovered wins", challenger.best, incumbent.best)
			} else {
				reason = fmt.Sprintf("best version %s is farther from %s than %s", loserOf(challengerWins, challenger, incumbent).best, running, winnerOf(challengerWins, challenger, incumbent).best)
			}
		}

		winner, loser := incumbent, challenger
		if challengerWins {
			winner, loser = challenger, incumbent
			winners[contract] = challenger
		}
		plan.Demoted = append(plan.Demoted, Demotion{
			Service:  loser.desc,
			Contract: contract,
			Winner:   winner.desc.ID(),
			Reason:   reason,
		})
		r.log.Debug("service demoted to standalone",
			zap.String("contract", string(contract)),
			zap.String("service", loser.desc.ID()),
			zap.String("winner", winner.desc.ID()),
			zap.String("reason", reason))
	}
	return winners
}

func winnerOf(challengerWins bool, challenger, incumbent candidate) candidate {
	if challengerWins {
		return challenger
	}
	return incumbent
}

func loserOf(challengerWins bool, challenger, incumbent candidate) candidate {
	if challengerWins {
		return incumbent
	}
	return challenger
}

func (r *Resolver) exclude(plan *Plan, desc metadata.ServiceDescriptor, filter, reason string) {
	plan.Excluded = append(plan.Excluded, Exclusion{Service: desc, Filter: filter, Reason: reason})
	r.metrics.ObserveExclusion(filter)
	r.log.Debug("service excluded",
		zap.String("service", desc.ID()),
		zap.String("filter", filter),
		zap.String("reason", reason))
}

func (r *Resolver) report(plan *Plan) {
	for _, contract := range plan.Unresolved {
		r.log.Warn("cannot find service matching contract", zap.String("contract", string(contract)))
	}
	r.log.Info("resolved services",
		zap.Int("contracts", len(plan.Contracts)),
		zap.Int("services", plan.ServiceCount()),
		zap.Int("standalone", len(plan.Standalone)),
		zap.Int("demoted", len(plan.Demoted)),
		zap.Int("excluded", len(plan.Excluded)),
		zap.Int("unresolved", len(plan.Unresolved)))
}

// parseAdapters parses every declared adapter version up front. Any malformed
// version fails the pass, whether or not its service would survive the
// feature filter.
func parseAdapters(candidates []metadata.ServiceDescriptor) ([][][]version.Version, error) {
	out := make([][][]version.Version, len(candidates))
	for i, desc := range candidates {
		out[i] = make([][]version.Version, len(desc.Adapters))
		for j, adapter := range desc.Adapters {
			vs, err := version.ParseAll(adapter.Versions)
			if err != nil {
				return nil, fmt.Errorf("resolver: service %s adapter %s: %w", desc.ID(), adapter.Platform, err)
			}
			out[i][j] = vs
		}
	}
	return out, nil
}

// usableVersions returns the versions of every adapter of desc that matches
// the runtime as compatible or exact.
func usableVersions(desc metadata.ServiceDescriptor, parsed [][]version.Version, runtime version.Runtime) []version.Version {
	var usable []version.Version
	for j, adapter := range desc.Adapters {
		if version.Match(adapter.Platform, parsed[j], runtime).Usable() {
			usable = append(usable, parsed[j]...)
		}
	}
	return usable
}

// unresolvedContracts lists declared contracts without a winner, host
// declarations first, then contracts claimed by any candidate, each once.
func unresolvedContracts(in Input, plan *Plan) []metadata.Contract {
	seen := make(map[metadata.Contract]bool)
	var out []metadata.Contract
	consider := func(c metadata.Contract) {
		if strings.TrimSpace(string(c)) == "" || seen[c] {
			return
		}
		seen[c] = true
		if _, bound := plan.Contracts[c]; !bound {
			out = append(out, c)
		}
	}
	for _, c := range in.Contracts {
		consider(c)
	}
	for _, d := range in.Candidates {
		consider(d.Contract)
	}
	return out
}
