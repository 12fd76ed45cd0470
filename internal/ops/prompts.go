package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Prompt is a saved reusable prompt snippet, persisted as one JSON file per
// id under PromptsDir (mirroring the registry's atomic-write discipline,
// but file-per-entry rather than one combined document since prompts are
// edited independently and concurrently by multiple UI surfaces).
type Prompt struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (d *Deps) promptPath(id string) string {
	return filepath.Join(d.PromptsDir, id+".json")
}

// ListPrompts returns every saved prompt, sorted by name then id.
func (d *Deps) ListPrompts() ([]Prompt, error) {
	if d.PromptsDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(d.PromptsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Prompt
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.PromptsDir, e.Name()))
		if err != nil {
			continue
		}
		var p Prompt
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SavePrompt creates (id empty) or updates (id set) a saved prompt and
// persists it atomically.
func (d *Deps) SavePrompt(id, name, body string) (Prompt, error) {
	if d.PromptsDir == "" {
		return Prompt{}, fmt.Errorf("prompts storage is not configured")
	}
	if err := os.MkdirAll(d.PromptsDir, 0o755); err != nil {
		return Prompt{}, err
	}

	now := time.Now().UTC()
	p := Prompt{ID: id, Name: name, Body: body, CreatedAt: now, UpdatedAt: now}
	if id == "" {
		p.ID = uuid.NewString()
	} else if data, err := os.ReadFile(d.promptPath(id)); err == nil {
		var existing Prompt
		if json.Unmarshal(data, &existing) == nil {
			p.CreatedAt = existing.CreatedAt
		}
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return Prompt{}, err
	}
	path := d.promptPath(p.ID)
	tmp, err := os.CreateTemp(d.PromptsDir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return Prompt{}, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Prompt{}, err
	}
	if err := tmp.Close(); err != nil {
		return Prompt{}, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return Prompt{}, err
	}
	return p, nil
}

// DeletePrompt removes a saved prompt by id. Not an error if it is already
// gone.
func (d *Deps) DeletePrompt(id string) error {
	if d.PromptsDir == "" {
		return nil
	}
	err := os.Remove(d.promptPath(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
