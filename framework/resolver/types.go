package resolver

import (
	"github.com/km-arc/go-plugkit/framework/metadata"
	"github.com/km-arc/go-plugkit/framework/version"
)

// Input is the complete, already-discovered view the resolver works on.
type Input struct {
	// Candidates in discovery order. The order is the tie-break of last resort.
	Candidates []metadata.ServiceDescriptor
	// Contracts declared by the host, whether or not any candidate claims
	// them. Used only to report contracts that end up unbound.
	Contracts []metadata.Contract
	Features  metadata.FeatureSet
	Runtime   version.Runtime
}

// Plan is the outcome of one resolution pass. It is never mutated after
// Resolve returns.
type Plan struct {
	// Contracts maps every bound contract to its winner.
	Contracts map[metadata.Contract]metadata.ServiceDescriptor
	// ContractOrder lists the keys of Contracts in first-discovery order.
	ContractOrder []metadata.Contract
	// Standalone holds every surviving service that is not a contract
	// winner, in discovery order, demoted ones included.
	Standalone []metadata.ServiceDescriptor

	Demoted    []Demotion
	Excluded   []Exclusion
	Unresolved []metadata.Contract
}

// Demotion records a service that lost contract contention.
type Demotion struct {
	Service  metadata.ServiceDescriptor
	Contract metadata.Contract
	// Winner is the service that held the contract when the demotion
	// happened; it may itself be demoted later.
	Winner string
	Reason string
}

// Exclusion records a service dropped before grouping.
type Exclusion struct {
	Service metadata.ServiceDescriptor
	Filter  string // "feature" or "version"
	Reason  string
}

const (
	FilterFeature = "feature"
	FilterVersion = "version"
)

// Winner returns the service bound to contract.
func (p *Plan) Winner(contract metadata.Contract) (metadata.ServiceDescriptor, bool) {
	d, ok := p.Contracts[contract]
	return d, ok
}

// ServiceCount is the number of services the plan will register.
func (p *Plan) ServiceCount() int {
	return len(p.Contracts) + len(p.Standalone)
}
