// SPDX-License-Identifier: MPL-2.0

package build

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/berthbuild/berth/internal/plan"
)

// ErrNoRecord is returned by LoadRecord when the project was never built.
var ErrNoRecord = errors.New("no build record")

type (
	// Record describes the last successful build of a project.
	Record struct {
		Project  string       `toml:"project"`
		Tag      string       `toml:"tag"`
		Key      string       `toml:"key"`
		Engine   string       `toml:"engine"`
		BuiltAt  time.Time    `toml:"built_at"`
		Revision string       `toml:"revision,omitempty"`
		Steps    []RecordStep `toml:"step"`
	}

	// RecordStep is one planned step and its key.
	RecordStep struct {
		Kind string `toml:"kind"`
		Key  string `toml:"key"`
	}
)

// NewRecord captures p as built for project.
func NewRecord(project, tag, engine string, p *plan.Plan, builtAt time.Time) *Record {
	r := &Record{
		Project: project,
		Tag:     tag,
		Key:     p.Key(),
		Engine:  engine,
		BuiltAt: builtAt.UTC(),
	}
	for _, s := range p.Steps {
		r.Steps = append(r.Steps, RecordStep{Kind: string(s.Kind), Key: s.Key})
	}
	return r
}

// Keys returns the recorded step keys in plan order.
func (r *Record) Keys() []string {
	keys := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		keys[i] = s.Key
	}
	return keys
}

// RecordPath returns where the record for the project rooted at root lives.
func RecordPath(cacheDir, root string) string {
	sum := sha256.Sum256([]byte(root))
	return filepath.Join(cacheDir, "records", hex.EncodeToString(sum[:8])+".toml")
}

// LoadRecord reads the record for root. It returns an error wrapping
// ErrNoRecord when none exists.
func LoadRecord(cacheDir, root string) (*Record, error) {
	path := RecordPath(cacheDir, root)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w for %s", ErrNoRecord, root)
	}
	if err != nil {
		return nil, fmt.Errorf("read build record: %w", err)
	}

	var r Record
	if err := toml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse build record %s: %w", path, err)
	}
	return &r, nil
}

// SaveRecord writes r for root, replacing any previous record.
func SaveRecord(cacheDir, root string, r *Record) error {
	path := RecordPath(cacheDir, root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}

	data, err := toml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode build record: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write build record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write build record: %w", err)
	}
	return nil
}
