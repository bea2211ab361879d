// Package model defines the records that flow through the change-monitoring
// pipeline: targets, extracted page content, snapshots, scores and run results.
package model

import "strings"

// MonitorTarget is one tracked entity and the pages watched for it.
type MonitorTarget struct {
	EntityID string   `json:"entity_id" yaml:"entity_id" mapstructure:"entity_id"`
	URLs     []string `json:"urls" yaml:"urls" mapstructure:"urls"`
}

// Normalize trims whitespace, drops blank URLs and removes duplicate URLs
// while keeping the first-seen order.
func (t MonitorTarget) Normalize() MonitorTarget {
	out := MonitorTarget{EntityID: strings.TrimSpace(t.EntityID)}
	seen := make(map[string]bool, len(t.URLs))
	for _, u := range t.URLs {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out.URLs = append(out.URLs, u)
	}
	return out
}

// FilterTargets returns the targets whose EntityID matches entityID
// (case-insensitive). An empty entityID returns all targets.
func FilterTargets(targets []MonitorTarget, entityID string) []MonitorTarget {
	if entityID == "" {
		return targets
	}
	var out []MonitorTarget
	for _, t := range targets {
		if strings.EqualFold(t.EntityID, entityID) {
			out = append(out, t)
		}
	}
	return out
}
