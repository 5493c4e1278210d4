package config_test

import (
	"os"
	"path/filepath"
	"testing"

	pkgerrors "github.com/c360/reqgateway/errors"
	"github.com/c360/reqgateway/config"
	"github.com/c360/reqgateway/gateway"
)

func validConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Broker = config.Broker{URL: "nats://localhost:4222", InstanceID: "gw-1"}
	cfg.Gateway.Routes = []gateway.RouteMapping{
		{Entity: "equipment", PathPrefix: "/equipment", RoutingKey: "equipment.details"},
	}
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfig_ValidateMissingBrokerURL(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.URL = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing broker url")
	}
	if !pkgerrors.IsInvalid(err) {
		t.Errorf("expected Invalid classification, got: %v", err)
	}
}

func TestConfig_ValidateSweepDeadlineBelowCadence(t *testing.T) {
	cfg := validConfig()
	cfg.Sweep = config.Sweep{CadenceMS: 5000, DeadlineMS: 1000}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error when deadline is below cadence")
	}
}

func TestConfig_ValidateNegativeResolverDepth(t *testing.T) {
	cfg := validConfig()
	cfg.Resolver.MaxDepth = -1

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative resolver depth")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")

	yamlBody := `
broker:
  url: nats://localhost:4222
  instance_id: gw-1
listen_addr: ":9090"
sweep:
  cadence_ms: 1000
  deadline_ms: 10000
resolver:
  max_depth: 3
gateway:
  routes:
    - entity: equipment
      path_prefix: /equipment
      routing_key: equipment.details
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("expected listen_addr :9090, got %q", cfg.ListenAddr)
	}
	if cfg.Resolver.MaxDepth != 3 {
		t.Errorf("expected max_depth 3, got %d", cfg.Resolver.MaxDepth)
	}
	if len(cfg.Gateway.Routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(cfg.Gateway.Routes))
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	if _, err := config.LoadFile("/nonexistent/gateway.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFile_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")

	// missing broker.instance_id
	yamlBody := `
broker:
  url: nats://localhost:4222
gateway:
  routes:
    - entity: equipment
      path_prefix: /equipment
      routing_key: equipment.details
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	if _, err := config.LoadFile(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSafeConfig_GetReturnsIndependentCopy(t *testing.T) {
	safe := config.NewSafeConfig(validConfig())

	snapshot, err := safe.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snapshot.ListenAddr = "mutated"

	again, err := safe.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.ListenAddr == "mutated" {
		t.Fatal("mutating a snapshot leaked into the stored config")
	}
}

func TestSafeConfig_UpdateRejectsInvalid(t *testing.T) {
	safe := config.NewSafeConfig(validConfig())

	bad := validConfig()
	bad.Broker.URL = ""

	if err := safe.Update(bad); err == nil {
		t.Fatal("expected update to reject invalid config")
	}

	cfg, err := safe.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Broker.URL == "" {
		t.Fatal("invalid update should not have replaced the stored config")
	}
}

func TestSafeConfig_UpdateAppliesValid(t *testing.T) {
	safe := config.NewSafeConfig(validConfig())

	updated := validConfig()
	updated.ListenAddr = ":7070"

	if err := safe.Update(updated); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := safe.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Errorf("expected updated listen_addr, got %q", cfg.ListenAddr)
	}
}
