package resolver

import "github.com/km-arc/go-plugkit/framework/metadata"

// Summary is a serializable view of a Plan, for diagnostics.
type Summary struct {
	Contracts  []BoundContract     `json:"contracts"`
	Standalone []string            `json:"standalone"`
	Demoted    []DemotionSummary   `json:"demoted,omitempty"`
	Excluded   []ExclusionSummary  `json:"excluded,omitempty"`
	Unresolved []metadata.Contract `json:"unresolved,omitempty"`
}

type BoundContract struct {
	Contract       metadata.Contract `json:"contract"`
	Service        string            `json:"service"`
	Implementation string            `json:"implementation"`
}

type DemotionSummary struct {
	Service  string            `json:"service"`
	Contract metadata.Contract `json:"contract"`
	Winner   string            `json:"winner"`
	Reason   string            `json:"reason"`
}

type ExclusionSummary struct {
	Service string `json:"service"`
	Filter  string `json:"filter"`
	Reason  string `json:"reason"`
}

// Summary flattens the plan, keeping discovery order throughout.
func (p *Plan) Summary() Summary {
	s := Summary{
		Contracts:  make([]BoundContract, 0, len(p.ContractOrder)),
		Standalone: make([]string, 0, len(p.Standalone)),
		Unresolved: p.Unresolved,
	}
	for _, c := range p.ContractOrder {
		w := p.Contracts[c]
		s.Contracts = append(s.Contracts, BoundContract{Contract: c, Service: w.Name, Implementation: w.Implementation})
	}
	for _, d := range p.Standalone {
		s.Standalone = append(s.Standalone, d.ID())
	}
	for _, d := range p.Demoted {
		s.Demoted = append(s.Demoted, DemotionSummary{Service: d.Service.ID(), Contract: d.Contract, Winner: d.Winner, Reason: d.Reason})
	}
	for _, e := range p.Excluded {
		s.Excluded = append(s.Excluded, ExclusionSummary{Service: e.Service.ID(), Filter: e.Filter, Reason: e.Reason})
	}
	return s
}
