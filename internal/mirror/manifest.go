package mirror

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Direction names which side is the source of a remaining-tier table.
type Direction string

const (
	LocalToRemote Direction = "local_to_remote"
	RemoteToLocal Direction = "remote_to_local"
)

// ParseDirection accepts the canonical names and the legacy LOCAL_TO_AZURE style aliases.
func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "local_to_remote", "local_to_azure", "push":
		return LocalToRemote, nil
	case "remote_to_local", "azure_to_local", "pull":
		return RemoteToLocal, nil
	default:
		return "", fmt.Errorf("unknown sync direction %q", raw)
	}
}

// UnmarshalYAML normalizes the direction while decoding.
func (d *Direction) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseDirection(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DirectionalTable is one remaining-tier entry.
type DirectionalTable struct {
	Table     string    `yaml:"table"`
	Direction Direction `yaml:"direction"`
}

// Manifest declares which tables the mirror touches and how.
type Manifest struct {
	// CreateMissing lists tables expected only on the remote side.
	CreateMissing []string `yaml:"create_missing"`
	// Critical tables are overwritten on the remote when local is ahead.
	Critical []string `yaml:"critical"`
	// Remaining tables are filled insert-only in their declared direction.
	Remaining []DirectionalTable `yaml:"remaining"`
}

// LoadManifest reads and validates a YAML manifest file.
func LoadManifest(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()
	return DecodeManifest(f)
}

// DecodeManifest decodes a manifest, rejecting unknown keys.
func DecodeManifest(r io.Reader) (Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return Manifest{}, errors.New("manifest is empty")
		}
		return Manifest{}, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate checks table names and rejects a table listed in both sync tiers.
func (m Manifest) Validate() error {
	seen := map[string]string{}
	check := func(tier, table string) error {
		if err := validTableName(table); err != nil {
			return fmt.Errorf("%s: %w", tier, err)
		}
		if prev, ok := seen[table]; ok && prev != tier {
			return fmt.Errorf("table %q listed in both %s and %s", table, prev, tier)
		}
		seen[table] = tier
		return nil
	}

	for _, table := range m.CreateMissing {
		if err := validTableName(table); err != nil {
			return fmt.Errorf("create_missing: %w", err)
		}
	}
	for _, table := range m.Critical {
		if err := check("critical", table); err != nil {
			return err
		}
	}
	for _, entry := range m.Remaining {
		if err := check("remaining", entry.Table); err != nil {
			return err
		}
		if entry.Direction == "" {
			return fmt.Errorf("remaining: table %q has no direction", entry.Table)
		}
	}
	if len(m.Tables()) == 0 {
		return errors.New("manifest lists no tables")
	}
	return nil
}

// Tables returns every table named in the manifest, de-duplicated, in manifest order.
func (m Manifest) Tables() []string {
	seen := map[string]bool{}
	var out []string
	add := func(table string) {
		if seen[table] {
			return
		}
		seen[table] = true
		out = append(out, table)
	}
	for _, table := range m.Critical {
		add(table)
	}
	for _, entry := range m.Remaining {
		add(entry.Table)
	}
	for _, table := range m.CreateMissing {
		add(table)
	}
	return out
}

func validTableName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("empty table name")
	}
	for _, r := range name {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return fmt.Errorf("invalid table name %q", name)
		}
	}
	return nil
}
