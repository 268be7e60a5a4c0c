package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const sampleYAML = `
host: https://www.pixlise.org
user: tester
password: secret
engine:
  target: tcp://127.0.0.1:7400
  codec: binary
  compress: true
  callTimeout: 10s
  rateLimit: 50
  rateBurst: 10
`

func TestParseYAMLAndJSON(t *testing.T) {
	fromYAML, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	fromJSON, err := Parse([]byte(`{"host": "https://www.pixlise.org", "user": "tester", "password": "secret",
		"engine": {"target": "tcp://127.0.0.1:7400", "codec": "binary", "compress": true,
		"callTimeout": "10s", "rateLimit": 50, "rateBurst": 10}}`))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(fromYAML, fromJSON); diff != "" {
		t.Fatalf("YAML and JSON differ (-yaml +json):\n%s", diff)
	}
	if err := fromYAML.Validate(); err != nil {
		t.Fatal(err)
	}
	d, err := fromYAML.Engine.Timeout()
	if err != nil || d != 10*time.Second {
		t.Fatalf("expect 10s, got %v %v", d, err)
	}
}

func TestInlineParsesBack(t *testing.T) {
	f, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	f.Source = "/home/tester/" + FileName
	doc, err := f.Inline()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(doc, f.Source) {
		t.Fatalf("inline document leaks the local path: %s", doc)
	}
	back, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	back.Source = f.Source
	if diff := cmp.Diff(f, back); diff != "" {
		t.Fatalf("inline document differs (-want +got):\n%s", diff)
	}
}

func TestLocalConfig(t *testing.T) {
	f, err := Parse([]byte(`{"user": "u", "password": "p", "localConfig": {"auth0_domain": "pixlise.au.auth0.com", "apiUrl": "localhost:8080"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if f.LocalConfig == nil || f.LocalConfig.APIURL != "localhost:8080" || f.LocalConfig.Auth0Domain != "pixlise.au.auth0.com" {
		t.Fatalf("unexpected local config %+v", f.LocalConfig)
	}
	if err := f.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestValidate(t *testing.T) {
	f := &File{Engine: Engine{CallTimeout: "soon", RateLimit: 5, Target: "etcd://pixlise-engine"}}
	err := f.Validate()
	if err == nil {
		t.Fatal("expect validation errors")
	}
	for _, want := range []string{"host", "user", "password", "callTimeout", "rateBurst", "etcdEndpoints"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expect %q in %v", want, err)
		}
	}
}

func TestResolveExplicitPath(t *testing.T) {
	p := filepath.Join(t.TempDir(), "client.yaml")
	if err := os.WriteFile(p, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := Resolve(p)
	if err != nil {
		t.Fatal(err)
	}
	if f.Source != p || f.User != "tester" {
		t.Fatalf("unexpected config %+v", f)
	}

	if _, err := Resolve(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expect not-exist error, got %v", err)
	}
}

func TestResolveHomeBeforeEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvVar, `{"host": "env", "user": "u", "password": "p"}`)

	f, err := Resolve("")
	if err != nil {
		t.Fatal(err)
	}
	if f.Source != EnvVar || f.Host != "env" {
		t.Fatalf("expect config from env, got %+v", f)
	}

	if err := os.WriteFile(filepath.Join(home, FileName), []byte(`{"host": "home", "user": "u", "password": "p"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err = Resolve("")
	if err != nil {
		t.Fatal(err)
	}
	if f.Host != "home" {
		t.Fatalf("expect config from home dir, got %+v", f)
	}
}

func TestResolveNothing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvVar, "")
	if _, err := Resolve(""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expect ErrNotFound, got %v", err)
	}
}
