// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package reputation

import (
	"github.com/danielhkuo/kidwa/catalog"
	"github.com/danielhkuo/kidwa/models"
)

// Accuracy is the percentage of resolved votes that were correct.
func Accuracy(correct, resolved int) float64 {
	return models.Percentage(correct, resolved)
}

// Badges evaluates rules against stats: the highest tier reached followed by
// every achievement reached, in rule order.
func Badges(stats models.UserStats, rules []catalog.BadgeRule) []models.Badge {
	badges := []models.Badge{}

	var tier *catalog.BadgeRule
	for i, r := range rules {
		if r.Kind == catalog.KindTier && metricValue(stats, r.Metric) >= r.Threshold {
			if tier == nil || r.Threshold >= tier.Threshold {
				tier = &rules[i]
			}
		}
	}
	if tier != nil {
		badges = append(badges, toBadge(*tier))
	}

	for _, r := range rules {
		if r.Kind != catalog.KindAchievement {
			continue
		}
		if r.Metric == catalog.MetricAccuracy && stats.Resolved < r.MinResolved {
			continue
		}
		if metricValue(stats, r.Metric) >= r.Threshold {
			badges = append(badges, toBadge(r))
		}
	}
	return badges
}

// Tier returns the ID of the highest tier reached at the given reputation.
func Tier(rep int) string {
	tier := ""
	best := -1.0
	for _, r := range catalog.Badges() {
		if r.Kind == catalog.KindTier && float64(rep) >= r.Threshold && r.Threshold > best {
			tier, best = r.ID, r.Threshold
		}
	}
	return tier
}

func metricValue(s models.UserStats, metric string) float64 {
	switch metric {
	case catalog.MetricReputation:
		return float64(s.Reputation)
	case catalog.MetricVotes:
		return float64(s.Votes)
	case catalog.MetricCorrect:
		return float64(s.Correct)
	case catalog.MetricAccuracy:
		return s.Accuracy
	case catalog.MetricPollsCreated:
		return float64(s.PollsCreated)
	case catalog.MetricFollowers:
		return float64(s.Followers)
	}
	return 0
}

func toBadge(r catalog.BadgeRule) models.Badge {
	return models.Badge{ID: r.ID, Name: r.Name, Description: r.Description, Kind: r.Kind}
}
