// Package config holds the deployment configuration for the restage
// orchestrator. All values have working defaults that mirror the deployed
// layout of the PDF distributor; an optional restage.yml overrides them.
package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up in the working directory when no
// explicit path is given.
const DefaultFile = "restage.yml"

// ErrEnvFileMissing marks the fatal precondition of a redeploy run: the
// environment file supplies the application's entire runtime configuration
// and must pre-exist.
var ErrEnvFileMissing = errors.New("environment file not found")

// Config describes one deployment target.
type Config struct {
	// WorkDir is the source checkout and build context root.
	WorkDir string `yaml:"workdir"`
	// EnvFile is the key=value environment file, relative to WorkDir.
	EnvFile string `yaml:"env_file"`
	// CredentialFile is the persisted OAuth token file, relative to WorkDir.
	// It outlives every container generation.
	CredentialFile string `yaml:"credential_file"`
	// AppDir is the application directory inside the container; the
	// credential file is bind-mounted under it.
	AppDir string `yaml:"app_dir"`

	Image         string `yaml:"image"`
	ContainerName string `yaml:"container_name"`

	// Port is published on the host and exposed in the container with the
	// same number. 10031 is the externally observed contract.
	Port int `yaml:"port"`
	// ContainerPort may be set when a build definition claims a different
	// internal listening port. It is never used for the published mapping;
	// Warnings surfaces the mismatch instead.
	ContainerPort int `yaml:"container_port"`

	// AdminAddr is the listen address of the status/trigger API.
	AdminAddr string `yaml:"admin_addr"`
}

// Default returns the configuration matching the deployed layout.
func Default() Config {
	return Config{
		WorkDir:        ".",
		EnvFile:        ".env",
		CredentialFile: "baidu_token.json",
		AppDir:         "/app",
		Image:          "pdf-distributor:latest",
		ContainerName:  "pdf-distributor",
		Port:           10031,
		AdminAddr:      ":10032",
	}
}

// Load reads the config file at path, or WorkDir/restage.yml when path is
// empty. A missing optional file yields the defaults; a missing explicit
// file is an error.
func Load(file string) (Config, error) {
	cfg := Default()

	explicit := file != ""
	if !explicit {
		file = filepath.Join(cfg.WorkDir, DefaultFile)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", file, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", file, err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("workdir must not be empty")
	}
	if c.Image == "" || c.ContainerName == "" {
		return fmt.Errorf("image and container_name must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

// Warnings reports configuration oddities worth surfacing without failing.
// The known one: build definitions for this application disagree on the
// internal listening port (8501 in a comment, 10031 actually published); the
// published port is authoritative and a differing container_port is flagged.
func (c Config) Warnings() []string {
	var out []string
	if c.ContainerPort != 0 && c.ContainerPort != c.Port {
		out = append(out, fmt.Sprintf(
			"container_port %d differs from published port %d; the published port is used on both sides",
			c.ContainerPort, c.Port))
	}
	return out
}

// EnvFilePath is the environment file resolved against WorkDir.
func (c Config) EnvFilePath() string {
	return filepath.Join(c.WorkDir, c.EnvFile)
}

// CredentialFilePath is the host-side credential file resolved against
// WorkDir.
func (c Config) CredentialFilePath() string {
	return filepath.Join(c.WorkDir, c.CredentialFile)
}

// ContainerCredentialPath is where the credential file appears inside the
// container, under AppDir.
func (c Config) ContainerCredentialPath() string {
	return path.Join(c.AppDir, filepath.Base(c.CredentialFile))
}

// ReadEnvFile parses the environment file and returns its entries as KEY=VAL
// pairs in stable order. The file's absence maps to ErrEnvFileMissing.
func ReadEnvFile(file string) ([]string, error) {
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrEnvFileMissing, file)
	}

	vars, err := godotenv.Read(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment file %s: %w", file, err)
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env, nil
}
