package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Entity is one legal company in the group: a Wise profile on one side and a
// NetSuite subsidiary on the other.
type Entity struct {
	Key          string   `json:"key"`
	ProfileID    int64    `json:"profile_id"`
	SubsidiaryID int64    `json:"subsidiary_id"`
	DisplayName  string   `json:"display_name"`
	Jurisdiction string   `json:"jurisdiction"`
	Currency     string   `json:"currency"`
	Aliases      []string `json:"aliases"`
	KnownIBANs   []string `json:"known_ibans"`
}

// EntityRegistry holds the entity map used by the intercompany classifier.
// It is loaded from configuration at startup and reloadable at runtime.
type EntityRegistry struct {
	mu        sync.RWMutex
	path      string
	entities  []Entity
	byProfile map[int64]*Entity
	byName    map[string]*Entity // normalized display name and aliases
	byIBAN    map[string]*Entity
}

// NewEntityRegistry builds a registry from a fixed entity list.
func NewEntityRegistry(entities []Entity) *EntityRegistry {
	r := &EntityRegistry{}
	r.index(entities)
	return r
}

// LoadEntityRegistry reads the entity map from a JSON file.
func LoadEntityRegistry(path string) (*EntityRegistry, error) {
	r := &EntityRegistry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the entity map from its backing file.
func (r *EntityRegistry) Reload() error {
	if r.path == "" {
		return fmt.Errorf("entity registry has no backing file")
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read entity map: %w", err)
	}
	var entities []Entity
	if err := json.Unmarshal(data, &entities); err != nil {
		return fmt.Errorf("parse entity map: %w", err)
	}
	r.index(entities)
	return nil
}

func (r *EntityRegistry) index(entities []Entity) {
	byProfile := make(map[int64]*Entity, len(entities))
	byName := make(map[string]*Entity)
	byIBAN := make(map[string]*Entity)

	for i := range entities {
		e := &entities[i]
		byProfile[e.ProfileID] = e
		byName[NormalizeEntityName(e.DisplayName)] = e
		for _, a := range e.Aliases {
			byName[NormalizeEntityName(a)] = e
		}
		for _, iban := range e.KnownIBANs {
			byIBAN[NormalizeIBAN(iban)] = e
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = entities
	r.byProfile = byProfile
	r.byName = byName
	r.byIBAN = byIBAN
}

// All returns a copy of the entity list.
func (r *EntityRegistry) All() []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entity, len(r.entities))
	copy(out, r.entities)
	return out
}

// ByProfile looks an entity up by Wise profile id.
func (r *EntityRegistry) ByProfile(profileID int64) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byProfile[profileID]
	return e, ok
}

// ByName looks an entity up by normalized display name or alias.
func (r *EntityRegistry) ByName(name string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[NormalizeEntityName(name)]
	return e, ok
}

// ByIBAN looks an entity up by a known bank account.
func (r *EntityRegistry) ByIBAN(iban string) (*Entity, bool) {
	if iban == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byIBAN[NormalizeIBAN(iban)]
	return e, ok
}

// ContainsEntityName scans free text for any entity display name or alias and
// returns the matched entity.
func (r *EntityRegistry) ContainsEntityName(text string) (*Entity, bool) {
	if text == "" {
		return nil, false
	}
	norm := NormalizeEntityName(text)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, e := range r.byName {
		if name != "" && strings.Contains(norm, name) {
			return e, true
		}
	}
	return nil, false
}

// NormalizeEntityName lowercases and collapses punctuation and whitespace so
// "PHYGRID AB (PUBL)" and "Phygrid AB Publ" compare equal.
func NormalizeEntityName(name string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// NormalizeIBAN strips spaces and uppercases.
func NormalizeIBAN(iban string) string {
	return strings.ToUpper(strings.ReplaceAll(iban, " ", ""))
}
