// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package catalog holds the static reference data shipped with the server:
// poll categories and badge rules. Both are embedded YAML parsed once at
// startup.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Badge kinds
const (
	KindTier        = "tier"
	KindAchievement = "achievement"
)

// Badge metrics
const (
	MetricReputation   = "reputation"
	MetricVotes        = "votes"
	MetricCorrect      = "correct"
	MetricAccuracy     = "accuracy"
	MetricPollsCreated = "polls_created"
	MetricFollowers    = "followers"
)

type Category struct {
	Slug string `yaml:"slug" json:"slug"`
	Name string `yaml:"name" json:"name"`
	Icon string `yaml:"icon" json:"icon"`
}

type BadgeRule struct {
	ID          string  `yaml:"id"`
	Kind        string  `yaml:"kind"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Metric      string  `yaml:"metric"`
	Threshold   float64 `yaml:"threshold"`
	MinResolved int     `yaml:"min_resolved"`
}

var (
	//go:embed categories.yaml
	categoriesYAML []byte
	//go:embed badges.yaml
	badgesYAML []byte

	categories     = mustParse(parseCategories, categoriesYAML)
	badgeRules     = mustParse(parseBadges, badgesYAML)
	categoryBySlug = indexCategories(categories)
)

// Categories returns the poll categories in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

func IsCategory(slug string) bool {
	_, ok := categoryBySlug[slug]
	return ok
}

func LookupCategory(slug string) (Category, bool) {
	c, ok := categoryBySlug[slug]
	return c, ok
}

// Badges returns every badge rule, tiers first in ascending threshold.
func Badges() []BadgeRule {
	return append([]BadgeRule(nil), badgeRules...)
}

func parseCategories(data []byte) ([]Category, error) {
	var doc struct {
		Categories []Category `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse categories: %w", err)
	}
	if len(doc.Categories) == 0 {
		return nil, fmt.Errorf("no categories defined")
	}

	seen := make(map[string]bool)
	for _, c := range doc.Categories {
		if c.Slug == "" || c.Name == "" {
			return nil, fmt.Errorf("category %q: slug and name are required", c.Slug)
		}
		if seen[c.Slug] {
			return nil, fmt.Errorf("duplicate category %q", c.Slug)
		}
		seen[c.Slug] = true
	}
	return doc.Categories, nil
}

func parseBadges(data []byte) ([]BadgeRule, error) {
	var doc struct {
		Badges []BadgeRule `yaml:"badges"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse badges: %w", err)
	}

	seen := make(map[string]bool)
	lastTier := -1.0
	for _, b := range doc.Badges {
		if b.ID == "" || b.Name == "" {
			return nil, fmt.Errorf("badge %q: id and name are required", b.ID)
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("duplicate badge %q", b.ID)
		}
		seen[b.ID] = true

		switch b.Metric {
		case MetricReputation, MetricVotes, MetricCorrect, MetricAccuracy, MetricPollsCreated, MetricFollowers:
		default:
			return nil, fmt.Errorf("badge %q: unknown metric %q", b.ID, b.Metric)
		}

		switch b.Kind {
		case KindTier:
			if b.Metric != MetricReputation {
				return nil, fmt.Errorf("tier badge %q must use the reputation metric", b.ID)
			}
			if b.Threshold <= lastTier {
				return nil, fmt.Errorf("tier badge %q: thresholds must ascend", b.ID)
			}
			lastTier = b.Threshold
		case KindAchievement:
		default:
			return nil, fmt.Errorf("badge %q: unknown kind %q", b.ID, b.Kind)
		}
	}
	return doc.Badges, nil
}

func mustParse[T any](parse func([]byte) ([]T, error), data []byte) []T {
	v, err := parse(data)
	if err != nil {
		panic(err)
	}
	return v
}

func indexCategories(cs []Category) map[string]Category {
	m := make(map[string]Category, len(cs))
	for _, c := range cs {
		m[c.Slug] = c
	}
	return m
}
