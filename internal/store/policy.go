package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PolicyPack is a versioned, named bundle of policy rules (spec.md §6).
type PolicyPack struct {
	ID          int64
	Key         string
	Version     string
	Name        string
	Description string
	Status      string
	Pack        json.RawMessage
	CreatedAt   string
	UpdatedAt   string
}

// UpsertPolicyPackInput carries the fields needed to create or replace a
// policy pack version.
type UpsertPolicyPackInput struct {
	Key         string
	Version     string
	Name        string
	Description string
	Pack        json.RawMessage
}

// UpsertPolicyPack creates or replaces a (key, version) policy pack. Packs
// are versioned, not mutated in place: callers bump Version to publish a
// change while older protocol runs keep referencing their original version.
func (s *Store) UpsertPolicyPack(in UpsertPolicyPackInput) (*PolicyPack, error) {
	key := strings.TrimSpace(in.Key)
	version := strings.TrimSpace(in.Version)
	if key == "" || version == "" {
		return nil, fmt.Errorf("%w: policy pack key and version are required", ErrValidation)
	}
	pack := in.Pack
	if len(pack) == 0 {
		pack = json.RawMessage("{}")
	}

	_, err := s.db.Exec(`
		INSERT INTO policy_packs (key, version, name, description, pack)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			pack = excluded.pack,
			updated_at = datetime('now')
	`, key, version, in.Name, in.Description, string(pack))
	if err != nil {
		return nil, fmt.Errorf("store: upsert policy pack: %w", err)
	}
	return s.GetPolicyPack(key, version)
}

// GetPolicyPack fetches a policy pack by (key, version).
func (s *Store) GetPolicyPack(key, version string) (*PolicyPack, error) {
	var pp PolicyPack
	var pack string
	err := s.db.QueryRow(`
		SELECT id, key, version, name, description, status, pack, created_at, updated_at
		FROM policy_packs WHERE key = ? AND version = ?
	`, key, version).Scan(&pp.ID, &pp.Key, &pp.Version, &pp.Name, &pp.Description, &pp.Status, &pack, &pp.CreatedAt, &pp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: policy_pack %s@%s", ErrNotFound, key, version)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get policy pack: %w", err)
	}
	pp.Pack = json.RawMessage(pack)
	return &pp, nil
}

// GetLatestPolicyPack returns the lexicographically highest version of a
// pack key. Callers relying on semantic ordering should pin versions
// explicitly rather than use this helper.
func (s *Store) GetLatestPolicyPack(key string) (*PolicyPack, error) {
	var version string
	err := s.db.QueryRow(`
		SELECT version FROM policy_packs WHERE key = ? AND status = 'active' ORDER BY version DESC LIMIT 1
	`, key).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: policy_pack %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get latest policy pack: %w", err)
	}
	return s.GetPolicyPack(key, version)
}
