package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
)

// CustomRule is one CEL expression loaded from a policy bundle, evaluated
// in addition to the Comparator's structural checks.
type CustomRule struct {
	ID         string `json:"id"`
	Expression string `json:"expression"`
	Reason     string `json:"reason"`
}

// Bundle is a versioned, hot-reloadable policy document: the structural
// fields from the §6 policy surface table plus any custom CEL rules.
type Bundle struct {
	Version    string       `json:"version"`
	Name       string       `json:"name"`
	CreatedAt  time.Time    `json:"created_at"`
	Policy     Policy       `json:"policy"`
	CustomRules []CustomRule `json:"custom_rules,omitempty"`
}

// BundleLoader loads JSON bundle files by path and swaps the active bundle
// atomically on each successful LoadFile. It does not scan or watch
// bundleDir; a reload happens only when LoadFile is called.
type BundleLoader struct {
	mu              sync.RWMutex
	bundleDir       string
	expectedVersion *semver.Constraints
	active          *Bundle
	onReload        func(*Bundle)
}

// NewBundleLoader builds a loader for bundleDir. expectedVersionConstraint
// is a semver constraint string (e.g. ">= 1.0.0, < 2.0.0") the loaded
// bundle's Version must satisfy; pass "" to accept any version.
func NewBundleLoader(bundleDir, expectedVersionConstraint string) (*BundleLoader, error) {
	l := &BundleLoader{bundleDir: bundleDir}
	if expectedVersionConstraint != "" {
		c, err := semver.NewConstraint(expectedVersionConstraint)
		if err != nil {
			return nil, fmt.Errorf("policy: invalid version constraint: %w", err)
		}
		l.expectedVersion = c
	}
	return l, nil
}

// OnReload registers a callback fired whenever LoadFile successfully
// installs a new active bundle.
func (l *BundleLoader) OnReload(fn func(*Bundle)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = fn
}

// LoadFile loads and validates a single bundle file, atomically making it
// the active bundle on success. A version mismatch or parse failure leaves
// the previously active bundle (if any) in place.
func (l *BundleLoader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("policy: read bundle %s: %w", path, err)
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("policy: parse bundle %s: %w", path, err)
	}
	if b.Name == "" {
		b.Name = filepath.Base(path)
	}

	if l.expectedVersion != nil && b.Version != "" {
		v, err := semver.NewVersion(b.Version)
		if err != nil {
			return fmt.Errorf("policy: bundle %s has invalid version %q: %w", b.Name, b.Version, err)
		}
		if !l.expectedVersion.Check(v) {
			return fmt.Errorf("policy: bundle %s version %s does not satisfy constraint", b.Name, b.Version)
		}
	}

	l.mu.Lock()
	l.active = &b
	callback := l.onReload
	l.mu.Unlock()

	if callback != nil {
		callback(&b)
	}
	return nil
}

// Active returns the currently active bundle, or nil if none has loaded.
func (l *BundleLoader) Active() *Bundle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}
