// Package config reads the client configuration: credentials for the engine's
// authenticate operation and how to reach the engine.
//
// Files may be YAML or JSON. Without an explicit path the file is looked up as
// $HOME/.pixlise-config.json, then taken inline from $PIXLISE_CLIENT_CONFIG.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
)

const (
	EnvVar   = "PIXLISE_CLIENT_CONFIG"
	FileName = ".pixlise-config.json"
)

// ErrNotFound means no configuration was found in any of the lookup places.
var ErrNotFound = errors.New("no client configuration found")

// File is the configuration document.
type File struct {
	Host        string       `json:"host"`
	User        string       `json:"user"`
	Password    string       `json:"password"`
	LocalConfig *LocalConfig `json:"localConfig,omitempty"`
	Engine      Engine       `json:"engine,omitempty"`

	// Source is where the document came from: a path or EnvVar.
	Source string `json:"-"`
}

// LocalConfig replaces the auth settings normally fetched from Host.
type LocalConfig struct {
	Auth0Domain   string `json:"auth0_domain"`
	Auth0Client   string `json:"auth0_client"`
	Auth0Audience string `json:"auth0_audience"`
	APIURL        string `json:"apiUrl"`
}

// Engine says how to reach the engine. Durations use time.ParseDuration
// syntax ("10s").
type Engine struct {
	Target      string  `json:"target,omitempty"` // e.g. tcp://127.0.0.1:7400, etcd://pixlise-engine
	Codec       string  `json:"codec,omitempty"`  // json or binary
	Compress    bool    `json:"compress,omitempty"`
	PoolSize    int     `json:"poolSize,omitempty"`
	CallTimeout string  `json:"callTimeout,omitempty"`
	RateLimit   float64 `json:"rateLimit,omitempty"` // calls per second, 0 = unlimited
	RateBurst   int     `json:"rateBurst,omitempty"`

	EtcdEndpoints []string `json:"etcdEndpoints,omitempty"`
	Balancer      string   `json:"balancer,omitempty"`
	HashKey       string   `json:"hashKey,omitempty"`
}

// Timeout returns CallTimeout, or 0 when unset.
func (e Engine) Timeout() (time.Duration, error) {
	if e.CallTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(e.CallTimeout)
	if err != nil {
		return 0, fmt.Errorf("engine.callTimeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("engine.callTimeout: negative duration %s", d)
	}
	return d, nil
}

// Parse decodes a YAML or JSON document.
func Parse(b []byte) (*File, error) {
	f := &File{}
	if err := yaml.Unmarshal(b, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Load reads the document at path.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("failed to read pixlise config %q: %w", path, err)
	}
	f.Source = path
	return f, nil
}

// Resolve finds the configuration. An explicit path must exist; otherwise
// the home directory file is tried, then the environment variable.
func Resolve(path string) (*File, error) {
	if path != "" {
		return Load(path)
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, FileName)
		f, err := Load(p)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if inline := strings.TrimSpace(os.Getenv(EnvVar)); inline != "" {
		f, err := Parse([]byte(inline))
		if err != nil {
			return nil, fmt.Errorf("failed to read pixlise config from $%s: %w", EnvVar, err)
		}
		f.Source = EnvVar
		return f, nil
	}
	return nil, fmt.Errorf("%w: create $HOME/%s or set $%s", ErrNotFound, FileName, EnvVar)
}

// Inline renders f as a JSON document, the form $PIXLISE_CLIENT_CONFIG holds.
// Engines on another host are sent this instead of a local path.
func (f *File) Inline() (string, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Validate reports missing or inconsistent fields.
func (f *File) Validate() error {
	var errs []error
	if f.Host == "" && f.LocalConfig == nil {
		errs = append(errs, errors.New("host or localConfig is required"))
	}
	if f.User == "" {
		errs = append(errs, errors.New("user is required"))
	}
	if f.Password == "" {
		errs = append(errs, errors.New("password is required"))
	}
	if _, err := f.Engine.Timeout(); err != nil {
		errs = append(errs, err)
	}
	if f.Engine.RateLimit < 0 {
		errs = append(errs, errors.New("engine.rateLimit must not be negative"))
	}
	if f.Engine.RateLimit > 0 && f.Engine.RateBurst < 1 {
		errs = append(errs, errors.New("engine.rateBurst must be at least 1 when rateLimit is set"))
	}
	if strings.HasPrefix(f.Engine.Target, "etcd://") && len(f.Engine.EtcdEndpoints) == 0 {
		errs = append(errs, errors.New("engine.etcdEndpoints is required for etcd:// targets"))
	}
	return errors.Join(errs...)
}
