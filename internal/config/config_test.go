package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const baseYAML = `
version: 1
sources:
  - id: evm_main
    type: evm
    rpc_url: ${RPC_URL}
    contract: "0x0000000000000000000000000000000000000001"
rules:
  - id: r1
    source: evm_main
    where: ["reason == Reset"]
    sinks: ["sink1"]
sinks:
  - id: sink1
    type: slack
    webhook_url: ${SLACK_HOOK}
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestLoadInterpolatesEnvAndValidates(t *testing.T) {
	cfgPath := writeConfig(t, baseYAML)

	t.Setenv("RPC_URL", "http://example-rpc")
	t.Setenv("SLACK_HOOK", "https://hooks.slack.test")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("expected load to succeed: %v", err)
	}

	if got := cfg.Sources[0].RPCURL; got != "http://example-rpc" {
		t.Fatalf("rpc_url not interpolated, got %q", got)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfgPath := writeConfig(t, baseYAML)
	t.Setenv("RPC_URL", "http://example-rpc")
	t.Setenv("SLACK_HOOK", "https://hooks.slack.test")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	src := cfg.Sources[0]
	if src.Event != DefaultEvent || src.ChunkSize != DefaultChunkSize {
		t.Fatalf("evm defaults not applied: %+v", src)
	}
	if cfg.Global.DBPath != DefaultDBPath {
		t.Fatalf("db path default not applied: %q", cfg.Global.DBPath)
	}
	if cfg.Notify.SeenMax != DefaultSeenMax {
		t.Fatalf("seen_max default = %d", cfg.Notify.SeenMax)
	}
	if !cfg.NewestFirst() {
		t.Fatalf("expected newest_first default true")
	}
	if cfg.SweepInterval() != time.Minute {
		t.Fatalf("unexpected sweep interval %s", cfg.SweepInterval())
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(baseYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	env := "RPC_URL_DOTENV_UNUSED=x\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("RPC_URL", "http://rpc")
	t.Setenv("SLACK_HOOK", "https://hook")

	if _, err := Load(cfgPath); err != nil {
		t.Fatalf("load with .env: %v", err)
	}
	if os.Getenv("RPC_URL_DOTENV_UNUSED") != "x" {
		t.Fatalf(".env not loaded")
	}
	os.Unsetenv("RPC_URL_DOTENV_UNUSED")
}

func TestLoadFailsOnMissingEnv(t *testing.T) {
	cfgPath := writeConfig(t, baseYAML)

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("expected missing env to fail")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no version", `
sources:
  - {id: a, type: evm, rpc_url: x, contract: "0x1"}
`},
		{"evm without contract", `
version: 1
sources:
  - {id: a, type: evm, rpc_url: x}
`},
		{"algorand without app", `
version: 1
sources:
  - {id: a, type: algorand, algod_url: x}
`},
		{"unknown sink in rule", `
version: 1
sources:
  - {id: a, type: evm, rpc_url: x, contract: "0x1"}
rules:
  - {id: r, sinks: [nope]}
`},
		{"bad rate", `
version: 1
sources:
  - {id: a, type: evm, rpc_url: x, contract: "0x1"}
sinks:
  - {id: s, type: webhook, url: http://x}
rules:
  - {id: r, sinks: [s], rate: {capacity: 0, per_second: 1}}
`},
		{"bad sweep interval", `
version: 1
notify: {sweep_interval: soon}
sources:
  - {id: a, type: evm, rpc_url: x, contract: "0x1"}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestSampleParses(t *testing.T) {
	t.Setenv("RPC_URL", "http://rpc")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hook")

	cfg, err := Parse([]byte(Sample))
	if err != nil {
		t.Fatalf("sample config invalid: %v", err)
	}
	if len(cfg.Rules) != 2 || cfg.API.Addr != ":8088" {
		t.Fatalf("unexpected sample: %+v", cfg)
	}
}
