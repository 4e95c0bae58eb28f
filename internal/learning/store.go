// Package learning implements the Learning store / mapper (spec
// persistent per-(tool, rule-code) outcome statistics, and the
// strategy recommendations derived from them.
package learning

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nlabs/stomper/internal/types"
)

// Store is the learning store / mapper contract.
type Store interface {
	// Record updates the (tool, code) pattern's counts, strategy sets,
	// and history for one attempt, then persists durably if AutoSave
	// is enabled.
	Record(tool, code string, outcome types.Outcome, strategy types.Strategy, file string, now time.Time) error
	// Adapt recommends a prompting strategy for the next attempt.
	Adapt(tool, code string, retryCount int) types.AdaptiveStrategy
	// Fallback returns the next strategy to try given the strategies
	// already failed this file, or false once the ladder is
	// exhausted.
	Fallback(tool, code string, alreadyFailed []types.Strategy) (types.Strategy, bool)
	// SuccessRate returns successes/total_attempts for (tool, code),
	// or 0 for an unknown pattern.
	SuccessRate(tool, code string) float64
	// Statistics summarizes the store for reporting, with topN most
	// difficult and most successful patterns.
	Statistics(topN int) types.Statistics
}

// Config configures a Store.
type Config struct {
	// Path is the learning_data.json location. Must be rooted at the
	// main repository — never inside a sandbox.
	Path string
	// SandboxRoots, if any path is a prefix of Path, makes New refuse
	// construction.
	SandboxRoots []string
	// AutoSave persists after every Record when true (default true —
	// set via NewConfig).
	AutoSave bool
}

// NewConfig returns a Config with AutoSave enabled.
func NewConfig(path string) Config {
	return Config{Path: path, AutoSave: true}
}

type store struct {
	mu     sync.Mutex
	cfg    Config
	data   *types.LearningData
	logger func(format string, args ...any)
}

// New constructs a Store rooted at cfg.Path. Load is tolerant: a
// missing file yields an empty store; a malformed file yields an
// empty store plus a logged warning. logger may be nil.
func New(cfg Config, logger func(format string, args ...any)) (Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("learning store path is required")
	}
	for _, root := range cfg.SandboxRoots {
		if root == "" {
			continue
		}
		if rel, err := filepath.Rel(root, cfg.Path); err == nil && !strings.HasPrefix(rel, "..") {
			return nil, fmt.Errorf("learning store path %s resolves inside sandbox root %s", cfg.Path, root)
		}
	}
	if logger == nil {
		logger = func(string, ...any) {}
	}

	s := &store{cfg: cfg, logger: logger}
	s.data = s.load()
	return s, nil
}

func (s *store) load() *types.LearningData {
	raw, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		return types.NewLearningData()
	}

	var doc types.LearningData
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger("learning store: malformed document at %s, starting fresh: %v", s.cfg.Path, err)
		return types.NewLearningData()
	}
	if doc.Patterns == nil {
		doc.Patterns = make(map[string]*types.ErrorPattern)
	}
	major := doc.Version
	if idx := strings.Index(doc.Version, "."); idx >= 0 {
		major = doc.Version[:idx]
	}
	if major != "" && major != types.CurrentSchemaMajor {
		s.logger("learning store: refusing document with incompatible schema major %s (want %s), starting fresh", major, types.CurrentSchemaMajor)
		return types.NewLearningData()
	}
	return &doc
}

// patternKey builds the "{tool}:{code}" pattern key.
func patternKey(tool, code string) string {
	return tool + ":" + code
}

func (s *store) Record(tool, code string, outcome types.Outcome, strategy types.Strategy, file string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := patternKey(tool, code)
	pattern, ok := s.data.Patterns[key]
	if !ok {
		pattern = types.NewErrorPattern(tool, code)
		s.data.Patterns[key] = pattern
	}
	pattern.Record(outcome, strategy, file, now)

	s.data.TotalAttempts++
	if outcome == types.OutcomeSuccess {
		s.data.TotalSuccesses++
	}
	s.data.LastUpdated = now

	if !s.cfg.AutoSave {
		return nil
	}
	// LearningStoreWriteFailed is always recovered locally
	// a durability hiccup must never abort a file's remediation,
	// so it is logged and swallowed rather than returned.
	if err := s.save(); err != nil {
		s.logger("learning store: write failed: %v", fmt.Errorf("%w: %v", types.ErrLearningStoreWriteFailed, err))
	}
	return nil
}

// save writes the document to a temp file then renames it into place,
// so a crash mid-write never leaves a truncated document behind.
func (s *store) save() error {
	dir := filepath.Dir(s.cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating learning store directory: %w", err)
	}

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing learning data: %w", err)
	}

	tmpPath := s.cfg.Path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o644); err != nil {
		return fmt.Errorf("writing learning data: %w", err)
	}
	if err := os.Rename(tmpPath, s.cfg.Path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("committing learning data: %w", err)
	}
	return nil
}

func (s *store) Adapt(tool, code string, retryCount int) types.AdaptiveStrategy {
	s.mu.Lock()
	defer s.mu.Unlock()

	pattern, ok := s.data.Patterns[patternKey(tool, code)]
	if !ok || pattern.TotalAttempts == 0 {
		return types.AdaptiveStrategy{Verbosity: types.StrategyNormal}
	}

	if pattern.Difficult() {
		strategy := types.StrategyDetailed.Escalate(retryCount)
		adaptive := types.AdaptiveStrategy{
			Verbosity:       strategy,
			IncludeExamples: true,
			IncludeHistory:  true,
		}
		if best, found := pattern.MostSuccessfulStrategy(); found {
			adaptive.SuggestedApproach = fmt.Sprintf("the %s strategy has succeeded most often for %s:%s before", best, tool, code)
		}
		return adaptive
	}

	rate := pattern.SuccessRate()
	if rate >= 0.8 {
		return types.AdaptiveStrategy{Verbosity: types.StrategyMinimal}
	}
	return types.AdaptiveStrategy{Verbosity: types.StrategyNormal, IncludeExamples: rate < 0.6}
}

func (s *store) Fallback(tool, code string, alreadyFailed []types.Strategy) (types.Strategy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	failed := make(map[types.Strategy]bool, len(alreadyFailed))
	for _, st := range alreadyFailed {
		failed[st] = true
	}

	pattern, ok := s.data.Patterns[patternKey(tool, code)]
	if ok {
		for _, succeeded := range pattern.SucceededStrategiesList {
			if !failed[succeeded] {
				return succeeded, true
			}
		}
	}

	for _, rung := range types.Ladder {
		if !failed[rung] {
			return rung, true
		}
	}
	return types.StrategyMinimal, false
}

func (s *store) SuccessRate(tool, code string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	pattern, ok := s.data.Patterns[patternKey(tool, code)]
	if !ok {
		return 0
	}
	return pattern.SuccessRate()
}

func (s *store) Statistics(topN int) types.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := types.Statistics{
		TotalAttempts:  s.data.TotalAttempts,
		TotalSuccesses: s.data.TotalSuccesses,
	}
	if s.data.TotalAttempts > 0 {
		stats.OverallSuccessRate = float64(s.data.TotalSuccesses) / float64(s.data.TotalAttempts)
	}

	patterns := make([]*types.ErrorPattern, 0, len(s.data.Patterns))
	for _, p := range s.data.Patterns {
		patterns = append(patterns, p)
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].SuccessRate() != patterns[j].SuccessRate() {
			return patterns[i].SuccessRate() < patterns[j].SuccessRate()
		}
		return patterns[i].Tool+patterns[i].Code < patterns[j].Tool+patterns[j].Code
	})
	stats.MostDifficult = topPatterns(patterns, topN, func(p *types.ErrorPattern) bool { return p.Difficult() })

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].SuccessRate() != patterns[j].SuccessRate() {
			return patterns[i].SuccessRate() > patterns[j].SuccessRate()
		}
		return patterns[i].Tool+patterns[i].Code < patterns[j].Tool+patterns[j].Code
	})
	stats.MostSuccessful = topPatterns(patterns, topN, func(p *types.ErrorPattern) bool { return p.Successes > 0 })

	return stats
}

func topPatterns(sorted []*types.ErrorPattern, topN int, include func(*types.ErrorPattern) bool) []*types.ErrorPattern {
	var out []*types.ErrorPattern
	for _, p := range sorted {
		if !include(p) {
			continue
		}
		out = append(out, p)
		if len(out) == topN {
			break
		}
	}
	return out
}
