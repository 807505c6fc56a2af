// Package weights resolves how much each agent's opinion counts in a given
// league, market and match-type context.
package weights

import (
	"fmt"
	"sort"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// Table maps agents to weights.
type Table map[domain.AgentID]float64

func (t Table) clone() Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Config is an immutable set of weight tables. Build it with NewConfig; the
// zero value resolves every agent to weight 0.
type Config struct {
	global      Table
	byLeague    map[string]Table
	byMarket    map[domain.Market]Table
	byMatchType map[string]Table
}

// NewConfig deep-copies the given tables so later changes to the arguments do
// not leak into the config.
func NewConfig(global Table, byLeague map[string]Table, byMarket map[domain.Market]Table, byMatchType map[string]Table) Config {
	c := Config{
		global:      global.clone(),
		byLeague:    make(map[string]Table, len(byLeague)),
		byMarket:    make(map[domain.Market]Table, len(byMarket)),
		byMatchType: make(map[string]Table, len(byMatchType)),
	}
	for k, t := range byLeague {
		c.byLeague[k] = t.clone()
	}
	for k, t := range byMarket {
		c.byMarket[k] = t.clone()
	}
	for k, t := range byMatchType {
		c.byMatchType[k] = t.clone()
	}
	return c
}

// Validate rejects negative weights anywhere in the config.
func (c Config) Validate() error {
	check := func(scope string, t Table) error {
		for id, w := range t {
			if w < 0 {
				return fmt.Errorf("weights: %s: agent %s has negative weight %g", scope, id, w)
			}
		}
		return nil
	}
	if err := check("global", c.global); err != nil {
		return err
	}
	for k, t := range c.byLeague {
		if err := check("league "+k, t); err != nil {
			return err
		}
	}
	for k, t := range c.byMarket {
		if err := check("market "+string(k), t); err != nil {
			return err
		}
	}
	for k, t := range c.byMatchType {
		if err := check("match type "+k, t); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the most specific weight configured for one agent:
// match type, then market, then league, then global. ok is false when no
// table mentions the agent.
func (c Config) Lookup(id domain.AgentID, league string, market domain.Market, matchType string) (w float64, ok bool) {
	if matchType != "" {
		if w, ok := c.byMatchType[matchType][id]; ok {
			return w, true
		}
	}
	if w, ok := c.byMarket[market][id]; ok {
		return w, true
	}
	if league != "" {
		if w, ok := c.byLeague[league][id]; ok {
			return w, true
		}
	}
	w, ok = c.global[id]
	return w, ok
}

// Resolve returns the normalized weight profile of the given agents for a
// context. Agents resolving to weight 0 are left out. It fails with a
// *domain.ConfigurationError when no agent has a positive weight.
func (c Config) Resolve(agents []domain.AgentID, league string, market domain.Market, matchType string) (domain.WeightProfile, error) {
	raw := make(domain.WeightProfile, len(agents))
	for _, id := range agents {
		if _, dup := raw[id]; dup {
			continue
		}
		w, _ := c.Lookup(id, league, market, matchType)
		if w > 0 {
			raw[id] = w
		}
	}
	if len(raw) == 0 {
		return nil, &domain.ConfigurationError{
			League:    league,
			Market:    market,
			MatchType: matchType,
			Reason:    fmt.Sprintf("none of %d agents has a positive weight", len(agents)),
		}
	}
	return Normalize(raw), nil
}

// Normalize scales positive weights so they sum to 1 and drops the rest. A
// single agent always ends up with weight 1.
func Normalize(p domain.WeightProfile) domain.WeightProfile {
	var sum float64
	for _, w := range p {
		if w > 0 {
			sum += w
		}
	}
	out := make(domain.WeightProfile, len(p))
	if sum == 0 {
		return out
	}
	for id, w := range p {
		if w > 0 {
			out[id] = w / sum
		}
	}
	return out
}

// Restrict re-normalizes p over the agents in subset. Agents in subset that p
// does not know are ignored.
func Restrict(p domain.WeightProfile, subset []domain.AgentID) domain.WeightProfile {
	picked := make(domain.WeightProfile, len(subset))
	for _, id := range subset {
		if w, ok := p[id]; ok {
			picked[id] = w
		}
	}
	return Normalize(picked)
}

// Agents returns the agent ids of p in sorted order.
func Agents(p domain.WeightProfile) []domain.AgentID {
	out := make([]domain.AgentID, 0, len(p))
	for id := range p {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
