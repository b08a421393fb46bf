// Package config loads and validates the protoctl TOML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the root configuration for a protoctl process.
type Config struct {
	General  General            `toml:"general"`
	Store    Store              `toml:"store"`
	Queue    Queue              `toml:"queue"`
	Git      Git                `toml:"git"`
	Policy   Policy             `toml:"policy"`
	Metrics  Metrics            `toml:"metrics"`
	Engines  map[string]Engine  `toml:"engines"`
	Projects map[string]Project `toml:"projects"`
}

// General holds process-wide tunables.
type General struct {
	LogLevel          string   `toml:"log_level"`
	PollInterval      Duration `toml:"poll_interval"`      // queue claim poll cadence, default 1s
	HeartbeatInterval Duration `toml:"heartbeat_interval"` // worker heartbeat cadence, default 10s
	VisibilityTimeout Duration `toml:"visibility_timeout"` // queue claim visibility timeout, default 30m
	MaxRetries        int      `toml:"max_retries"`        // execute_step retry budget, default 3
	RetryBackoffBase  Duration `toml:"retry_backoff_base"` // default 1s
	RetryMaxDelay     Duration `toml:"retry_max_delay"`    // default 60s
	AutoQAAfterExec   bool     `toml:"auto_qa_after_exec"` // default for steps that omit qa.policy
	AutoClone         bool     `toml:"auto_clone"`         // allow project_setup to clone missing repos
	WorkerCount       int      `toml:"worker_count"`       // number of in-process workers, default 1
	Workers           int      `toml:"workers"`            // deprecated alias for WorkerCount
}

// Store configures the persistence layer.
type Store struct {
	DBPath string `toml:"db_path"`
}

// Queue configures the durable job queue.
type Queue struct {
	Backend  string `toml:"backend"`   // "memory" or "redis"
	RedisURL string `toml:"redis_url"` // required when backend == "redis"
	Name     string `toml:"name"`      // default queue name, default "default"
}

// Git configures worktree and branch behavior.
type Git struct {
	WorktreeRoot  string `toml:"worktree_root"`  // default "<local_path>/../worktrees"
	BranchPrefix  string `toml:"branch_prefix"`  // default ""
	CleanupInTest bool   `toml:"cleanup_in_test"` // parsed only; no component reads it or removes worktrees
	CIHost        string `toml:"ci_host"`        // default "gh"; not read, open_pr_job always uses gh
}

// Policy configures default policy resolution.
type Policy struct {
	DefaultPackKey     string `toml:"default_pack_key"`
	DefaultPackVersion string `toml:"default_pack_version"`
	RepoLocalFileName  string `toml:"repo_local_file_name"` // default ".tasksgodzilla/policy"
}

// Metrics configures the Prometheus registry exposure (consumed by the out-of-scope HTTP layer).
type Metrics struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"` // default "protoctl"
}

// Engine configures one named engine adapter instance.
type Engine struct {
	Kind          string   `toml:"kind"` // "cli", "ide", "api"
	DisplayName   string   `toml:"display_name"`
	DefaultModel  string   `toml:"default_model"`
	Capabilities  []string `toml:"capabilities"`
	Command       string   `toml:"command"`        // cli: binary name
	Args          []string `toml:"args"`            // cli: extra args
	PromptMode    string   `toml:"prompt_mode"`     // cli: "stdin" or "file"
	Sandbox       string   `toml:"sandbox"`         // parsed only; backends ignore it and use the call site's sandbox mode
	CommandDir    string   `toml:"command_dir"`     // ide: directory for command files
	ResultTimeout Duration `toml:"result_timeout"`  // ide: how long to poll for a result file
	BaseURL       string   `toml:"base_url"`        // api: endpoint
	APIKeyEnv     string   `toml:"api_key_env"`     // api: env var holding the bearer token
	Timeout       Duration `toml:"timeout"`         // api/cli overall budget, default 180s
	ChunkTimeout  Duration `toml:"chunk_timeout"`   // cli: per-read-chunk timeout used for retry-on-timeout
	UseDocker     bool     `toml:"use_docker"`      // cli: run inside a container sandbox
	DockerImage   string   `toml:"docker_image"`    // cli: image used when UseDocker is set
}

// Project configures one onboarded project's defaults.
type Project struct {
	GitURL                 string   `toml:"git_url"`
	LocalPath              string   `toml:"local_path"`
	BaseBranch             string   `toml:"base_branch"`
	CIProvider             string   `toml:"ci_provider"`
	DefaultModels          []string `toml:"default_models"`
	PolicyPackKey          string   `toml:"policy_pack_key"`
	PolicyPackVersion      string   `toml:"policy_pack_version"`
	PolicyRepoLocalEnabled bool     `toml:"policy_repo_local_enabled"`
	PolicyEnforcementMode  string   `toml:"policy_enforcement_mode"` // "warn" or "block"
	ReplanCadence          string   `toml:"replan_cadence"`          // optional cron expression, see SPEC_FULL.md §12.4
}

// applyDefaults fills zero-valued fields with the process defaults named in
// spec.md's §5/§6 (visibility timeout, retry budget, API timeout).
func applyDefaults(cfg *Config) {
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.PollInterval.Duration == 0 {
		cfg.General.PollInterval = Duration{Duration: time.Second}
	}
	if cfg.General.HeartbeatInterval.Duration == 0 {
		cfg.General.HeartbeatInterval = Duration{Duration: 10 * time.Second}
	}
	if cfg.General.VisibilityTimeout.Duration == 0 {
		cfg.General.VisibilityTimeout = Duration{Duration: 30 * time.Minute}
	}
	if cfg.General.MaxRetries == 0 {
		cfg.General.MaxRetries = 3
	}
	if cfg.General.RetryBackoffBase.Duration == 0 {
		cfg.General.RetryBackoffBase = Duration{Duration: time.Second}
	}
	if cfg.General.RetryMaxDelay.Duration == 0 {
		cfg.General.RetryMaxDelay = Duration{Duration: 60 * time.Second}
	}
	if cfg.General.WorkerCount == 0 {
		if cfg.General.Workers > 0 {
			cfg.General.WorkerCount = cfg.General.Workers
		} else {
			cfg.General.WorkerCount = 1
		}
	}
	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = "memory"
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "default"
	}
	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = "protoctl.db"
	}
	if cfg.Policy.RepoLocalFileName == "" {
		cfg.Policy.RepoLocalFileName = ".tasksgodzilla/policy"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "protoctl"
	}
	if cfg.Git.CIHost == "" {
		cfg.Git.CIHost = "gh"
	}
	for name, eng := range cfg.Engines {
		if eng.Timeout.Duration == 0 {
			eng.Timeout = Duration{Duration: 180 * time.Second}
		}
		if eng.ResultTimeout.Duration == 0 {
			eng.ResultTimeout = Duration{Duration: 180 * time.Second}
		}
		cfg.Engines[name] = eng
	}
}

// Validate enforces cross-field invariants beyond what TOML decoding guarantees.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if cfg.Queue.Backend != "memory" && cfg.Queue.Backend != "redis" {
		return fmt.Errorf("config: queue.backend must be \"memory\" or \"redis\", got %q", cfg.Queue.Backend)
	}
	if cfg.Queue.Backend == "redis" && strings.TrimSpace(cfg.Queue.RedisURL) == "" {
		return fmt.Errorf("config: queue.redis_url is required when queue.backend = \"redis\"")
	}
	for name, eng := range cfg.Engines {
		switch eng.Kind {
		case "cli":
			if strings.TrimSpace(eng.Command) == "" {
				return fmt.Errorf("config: engines.%s.command is required for kind \"cli\"", name)
			}
		case "ide":
			if strings.TrimSpace(eng.CommandDir) == "" {
				return fmt.Errorf("config: engines.%s.command_dir is required for kind \"ide\"", name)
			}
		case "api":
			if strings.TrimSpace(eng.BaseURL) == "" {
				return fmt.Errorf("config: engines.%s.base_url is required for kind \"api\"", name)
			}
		default:
			return fmt.Errorf("config: engines.%s.kind must be one of cli, ide, api, got %q", name, eng.Kind)
		}
	}
	for name, project := range cfg.Projects {
		if project.PolicyEnforcementMode != "" &&
			project.PolicyEnforcementMode != "warn" && project.PolicyEnforcementMode != "block" {
			return fmt.Errorf("config: projects.%s.policy_enforcement_mode must be \"warn\" or \"block\", got %q",
				name, project.PolicyEnforcementMode)
		}
	}
	return nil
}

// Clone returns a deep copy so readers never observe mutation of a shared config.
func (cfg *Config) Clone() *Config {
	if cfg == nil {
		return nil
	}
	cloned := *cfg
	cloned.Engines = cloneEngineMap(cfg.Engines)
	cloned.Projects = cloneProjectMap(cfg.Projects)
	return &cloned
}

func cloneEngineMap(in map[string]Engine) map[string]Engine {
	if in == nil {
		return nil
	}
	out := make(map[string]Engine, len(in))
	for k, v := range in {
		v.Args = cloneStringSlice(v.Args)
		v.Capabilities = cloneStringSlice(v.Capabilities)
		out[k] = v
	}
	return out
}

func cloneProjectMap(in map[string]Project) map[string]Project {
	if in == nil {
		return nil
	}
	out := make(map[string]Project, len(in))
	for k, v := range in {
		v.DefaultModels = cloneStringSlice(v.DefaultModels)
		out[k] = v
	}
	return out
}

func cloneStringSlice(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Load reads and validates a protoctl TOML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ValidateReload checks that a reloaded configuration does not change a field
// that requires a process restart to take effect safely.
func ValidateReload(oldCfg, newCfg *Config) error {
	if oldCfg == nil || newCfg == nil {
		return fmt.Errorf("config: invalid config state during reload")
	}
	oldDB := strings.TrimSpace(oldCfg.Store.DBPath)
	newDB := strings.TrimSpace(newCfg.Store.DBPath)
	if oldDB != newDB {
		return fmt.Errorf("config: store.db_path changed (%q -> %q) and requires restart", oldDB, newDB)
	}
	if oldCfg.Queue.Backend != newCfg.Queue.Backend {
		return fmt.Errorf("config: queue.backend changed (%q -> %q) and requires restart",
			oldCfg.Queue.Backend, newCfg.Queue.Backend)
	}
	return nil
}
