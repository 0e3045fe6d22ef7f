package directory

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixture is the YAML document accepted by LoadFixture.
type Fixture struct {
	Tenants       []Tenant          `yaml:"tenants"`
	Organizations []Organization    `yaml:"organizations"`
	Roles         []Role            `yaml:"roles"`
	Users         []User            `yaml:"users"`
	Overrides     []FixtureOverride `yaml:"overrides"`
}

// FixtureOverride is a tenant role override row in a fixture.
type FixtureOverride struct {
	UserID   string `yaml:"user_id"`
	TenantID string `yaml:"tenant_id"`
	RoleID   string `yaml:"role_id"`
}

// LoadFixture decodes a YAML fixture into a fresh MemoryStore.
func LoadFixture(r io.Reader) (*MemoryStore, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return fx.Build()
}

// LoadFixtureFile reads a YAML fixture from disk.
func LoadFixtureFile(path string) (*MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadFixture(f)
}

// Build populates a MemoryStore, enforcing the same invariants as the Put methods.
func (fx Fixture) Build() (*MemoryStore, error) {
	s := NewMemoryStore()
	for _, t := range fx.Tenants {
		if err := s.PutTenant(t); err != nil {
			return nil, err
		}
	}
	for _, r := range fx.Roles {
		if err := s.PutRole(r); err != nil {
			return nil, err
		}
	}
	for _, o := range fx.Organizations {
		if err := s.PutOrganization(o); err != nil {
			return nil, err
		}
	}
	for _, u := range fx.Users {
		if err := s.PutUser(u); err != nil {
			return nil, err
		}
	}
	for _, o := range fx.Overrides {
		if err := s.PutOverride(o.UserID, o.TenantID, o.RoleID); err != nil {
			return nil, err
		}
	}
	return s, nil
}
