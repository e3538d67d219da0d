package interpreter

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"copytrader/internal/ports"
)

// Band maps a half-open R-value interval [Min, Max) to the action taken when
// an action R-mention falls inside it. Max <= 0 means unbounded.
type Band struct {
	Min                 float64 `yaml:"min"`
	Max                 float64 `yaml:"max"`
	PartialPercent      float64 `yaml:"partial_percent"`
	MoveStopToBreakeven bool    `yaml:"move_stop_to_breakeven"`
}

// Contains reports whether r falls inside the band.
func (b Band) Contains(r float64) bool {
	if r < b.Min {
		return false
	}
	return b.Max <= 0 || r < b.Max
}

// Policy is the caller-tunable table mapping R-value bands to partial-exit
// percentages and stop moves. The mapping is data, not code.
type Policy struct {
	Bands []Band `yaml:"bands"`
}

// Lookup returns the band containing r, if any.
func (p Policy) Lookup(r float64) (Band, bool) {
	for _, b := range p.Bands {
		if b.Contains(r) {
			return b, true
		}
	}
	return Band{}, false
}

// DefaultPolicy mirrors the source's staging: the first R level books 40%
// and migrates the stop to breakeven, 2R and beyond books another 30%
// without touching the stop.
func DefaultPolicy() Policy {
	return Policy{Bands: []Band{
		{Min: 1.0, Max: 2.0, PartialPercent: 40, MoveStopToBreakeven: true},
		{Min: 2.0, Max: 0, PartialPercent: 30, MoveStopToBreakeven: false},
	}}
}

// LoadPolicy reads a policy table from a YAML file.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file '%s': %w", path, err)
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy file '%s': %w", path, err)
	}
	if len(p.Bands) == 0 {
		return Policy{}, fmt.Errorf("policy file '%s': %w: no bands defined", path, ports.ErrConfigurationError)
	}
	return p, nil
}

// PolicyStore holds the active policy and supports hot reload when the
// backing file changes.
type PolicyStore struct {
	mu     sync.RWMutex
	policy Policy
	path   string
	logger ports.Logger
}

// NewPolicyStore creates a store seeded from the given file, or from
// DefaultPolicy when path is empty.
func NewPolicyStore(path string, logger ports.Logger) (*PolicyStore, error) {
	s := &PolicyStore{path: path, logger: logger}
	if path == "" {
		s.policy = DefaultPolicy()
		return s, nil
	}
	p, err := LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	s.policy = p
	return s, nil
}

// Current returns the active policy.
func (s *PolicyStore) Current() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// Watch reloads the policy whenever the backing file is rewritten, until the
// context is cancelled. A reload failure keeps the previous policy active.
// No-op when the store was seeded from the default table.
func (s *PolicyStore) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.path); err != nil {
		return fmt.Errorf("failed to watch policy file '%s': %w", s.path, err)
	}
	s.logger.Info(ctx, "Watching policy file for changes", map[string]interface{}{"path": s.path})

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			p, err := LoadPolicy(s.path)
			if err != nil {
				s.logger.Error(ctx, err, "Policy reload failed, keeping previous table")
				continue
			}
			s.mu.Lock()
			s.policy = p
			s.mu.Unlock()
			s.logger.Info(ctx, "Policy table reloaded", map[string]interface{}{"bands": len(p.Bands)})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error(ctx, err, "Policy watcher error")
		}
	}
}
