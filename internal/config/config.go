// Package config loads node configuration: a YAML genesis ceremony
// description plus an INI file of operational tunables, adapted from the
// teacher's config loader idiom (see DESIGN.md). Ed25519 node keys are
// loaded from a hex-encoded file exactly as the teacher's key loader does.
package config

import (
	"encoding/hex"
	"os"
	"strings"
	"time"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/mezonai/dagnode/internal/corestore"
)

// GenesisConfig describes the genesis approval ceremony (spec §4.6):
// the candidate's source file, the trusted approver set, the signature
// threshold, the ceremony duration and the broadcast interval.
type GenesisConfig struct {
	CandidatePath     string        `yaml:"candidate_path"`
	TrustedValidators []string      `yaml:"trusted_validators"` // hex-encoded Ed25519 public keys
	Threshold         int           `yaml:"threshold"`
	Duration          time.Duration `yaml:"duration"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// LoadGenesisConfig reads a YAML genesis ceremony description from path.
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, corestore.Wrap(corestore.KindIOError, "read genesis config", err)
	}
	var cfg GenesisConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, corestore.Wrap(corestore.KindIOError, "parse genesis config yaml", err)
	}
	return &cfg, nil
}

// TrustedValidatorKeys decodes every hex-encoded validator key in the
// genesis config.
func (c *GenesisConfig) TrustedValidatorKeys() ([][]byte, error) {
	out := make([][]byte, 0, len(c.TrustedValidators))
	for _, hx := range c.TrustedValidators {
		b, err := hex.DecodeString(strings.TrimSpace(hx))
		if err != nil {
			return nil, corestore.Wrap(corestore.KindMalformedValidator, "decode trusted validator hex", err)
		}
		out = append(out, b)
	}
	return out, nil
}

// NodeTunables holds the operational knobs an operator can override without
// touching the genesis description: checkpoint sizing, log rotation and
// poll intervals.
type NodeTunables struct {
	StoreDir            string
	MetaMaxSizeFactor   float64
	CheckpointSizeBytes int64
	LastMaxSizeFactor   float64
	LogFilename         string
	LogMaxSizeMB        int
	LogMaxAgeDays       int
	PollInterval        time.Duration
}

// LoadNodeTunables reads operational tunables from an INI file, matching
// the teacher's `config/config.go` use of gopkg.in/ini.v1 for everything
// that isn't the genesis ceremony description.
func LoadNodeTunables(path string) (*NodeTunables, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, corestore.Wrap(corestore.KindIOError, "load node tunables ini", err)
	}
	store := f.Section("store")
	logSec := f.Section("log")
	node := f.Section("node")

	t := &NodeTunables{
		StoreDir:            store.Key("dir").MustString("./data"),
		MetaMaxSizeFactor:   store.Key("meta_max_size_factor").MustFloat64(4),
		CheckpointSizeBytes: store.Key("checkpoint_size_bytes").MustInt64(1 << 20),
		LastMaxSizeFactor:   store.Key("last_max_size_factor").MustFloat64(4),
		LogFilename:         logSec.Key("filename").MustString(""),
		LogMaxSizeMB:        logSec.Key("max_size_mb").MustInt(50),
		LogMaxAgeDays:       logSec.Key("max_age_days").MustInt(14),
		PollInterval:        node.Key("poll_interval").MustDuration(2 * time.Second),
	}
	return t, nil
}

// LoadEd25519PrivKey loads a hex-encoded Ed25519 seed from path, mirroring
// the teacher's LoadEd25519PrivKey helper.
func LoadEd25519PrivKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, corestore.Wrap(corestore.KindIOError, "read ed25519 key file", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, corestore.Wrap(corestore.KindIOError, "decode ed25519 key hex", err)
	}
	return seed, nil
}
