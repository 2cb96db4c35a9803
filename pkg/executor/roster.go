package executor

import (
	"github.com/rhuss/relay/pkg/config"
)

// Agent is one entry of a domain roster.
type Agent struct {
	Name        string
	BaseURL     string
	Description string
}

// Roster is the set of agents a domain's plans may use. Names keep their
// configured order.
type Roster struct {
	agents []Agent
	byName map[string]int
}

// NewRoster builds a roster. A later agent with a duplicate name replaces
// the earlier one in lookups; config validation rejects duplicates anyway.
func NewRoster(agents ...Agent) *Roster {
	r := &Roster{byName: make(map[string]int, len(agents))}
	for _, a := range agents {
		if i, ok := r.byName[a.Name]; ok {
			r.agents[i] = a
			continue
		}
		r.byName[a.Name] = len(r.agents)
		r.agents = append(r.agents, a)
	}
	return r
}

// RosterFromConfig resolves each configured agent's base URL against host.
func RosterFromConfig(d config.DomainConfig, host string) *Roster {
	agents := make([]Agent, 0, len(d.Agents))
	for _, a := range d.Agents {
		agents = append(agents, Agent{
			Name:        a.Name,
			BaseURL:     a.BaseURL(host),
			Description: a.Description,
		})
	}
	return NewRoster(agents...)
}

// Lookup returns the agent with the given name.
func (r *Roster) Lookup(name string) (Agent, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Agent{}, false
	}
	return r.agents[i], true
}

// Names returns the agent names in configured order.
func (r *Roster) Names() []string {
	names := make([]string, len(r.agents))
	for i, a := range r.agents {
		names[i] = a.Name
	}
	return names
}

// Descriptions maps agent names to their descriptions, skipping empty ones.
func (r *Roster) Descriptions() map[string]string {
	out := make(map[string]string)
	for _, a := range r.agents {
		if a.Description != "" {
			out[a.Name] = a.Description
		}
	}
	return out
}

// Len returns the number of agents.
func (r *Roster) Len() int { return len(r.agents) }
