package catalog

import (
	"context"
	"fmt"
	"log/slog"
)

// Strategy names the rule that produced a match.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyKey
	StrategyTitleAllAuthors
	StrategyTitleAnyAuthor
	StrategyTitleContainment
)

func (s Strategy) String() string {
	switch s {
	case StrategyKey:
		return "key"
	case StrategyTitleAllAuthors:
		return "title_all_authors"
	case StrategyTitleAnyAuthor:
		return "title_any_author"
	case StrategyTitleContainment:
		return "title_containment"
	default:
		return "none"
	}
}

// MatchPolicy tunes the fuzzy strategies. Containment matching can merge
// distinct works that share a generic title and an author, so it can be
// switched off or made stricter.
type MatchPolicy struct {
	DisableContainment   bool
	MinContainmentLength int
	CandidateLimit       int
}

// DefaultMatchPolicy returns the policy used when nothing is configured.
func DefaultMatchPolicy() MatchPolicy {
	return MatchPolicy{
		MinContainmentLength: 4,
		CandidateLimit:       50,
	}
}

// Matcher finds the stored record that represents a requested book.
type Matcher struct {
	finder Finder
	policy MatchPolicy
}

// NewMatcher creates a Matcher over finder.
func NewMatcher(finder Finder, policy MatchPolicy) *Matcher {
	if policy.CandidateLimit <= 0 {
		policy.CandidateLimit = DefaultMatchPolicy().CandidateLimit
	}
	return &Matcher{finder: finder, policy: policy}
}

// Find runs the strategies in order and returns the first match, or nil
// with StrategyNone when nothing matches.
func (m *Matcher) Find(ctx context.Context, key, title string, authors []string) (*Record, Strategy, error) {
	rec, err := m.finder.FindByKey(ctx, key)
	if err != nil {
		return nil, StrategyNone, fmt.Errorf("find by key: %w", err)
	}
	if rec != nil {
		return rec, StrategyKey, nil
	}

	authors = cleanNames(authors)
	if title == "" || len(authors) == 0 {
		return nil, StrategyNone, nil
	}

	candidates, err := m.finder.FindByTitle(ctx, title)
	if err != nil {
		return nil, StrategyNone, fmt.Errorf("find by title: %w", err)
	}
	for _, c := range candidates {
		if SameTitle(c.Title, title) && containsAllAuthors(c.Authors, authors) {
			return c, StrategyTitleAllAuthors, nil
		}
	}
	for _, c := range candidates {
		if SameTitle(c.Title, title) && authorsOverlap(c.Authors, authors) {
			return c, StrategyTitleAnyAuthor, nil
		}
	}

	if m.policy.DisableContainment {
		return nil, StrategyNone, nil
	}

	candidates, err = m.finder.ListByAuthors(ctx, authors, m.policy.CandidateLimit)
	if err != nil {
		return nil, StrategyNone, fmt.Errorf("list by authors: %w", err)
	}
	for _, c := range candidates {
		if TitlesContain(c.Title, title, m.policy.MinContainmentLength) && authorsOverlap(c.Authors, authors) {
			slog.Debug("Matched by title containment", "key", key, "title", title, "matched_title", c.Title, "primary_key", c.PrimaryKey)
			return c, StrategyTitleContainment, nil
		}
	}

	return nil, StrategyNone, nil
}
