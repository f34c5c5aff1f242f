package registry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/studio233/batchd/config"
)

type fakeAgent struct {
	registered   []*api.AgentServiceRegistration
	deregistered []string
	err          error
}

func (f *fakeAgent) ServiceRegister(reg *api.AgentServiceRegistration) error {
	if f.err != nil {
		return f.err
	}
	f.registered = append(f.registered, reg)
	return nil
}

func (f *fakeAgent) ServiceDeregister(id string) error {
	f.deregistered = append(f.deregistered, id)
	return nil
}

func testConfig() *config.Consul {
	return &config.Consul{
		Address:         "127.0.0.1:8500",
		Scheme:          "http",
		Tags:            []string{"api"},
		Meta:            map[string]string{"team": "studio"},
		Check:           true,
		CheckInterval:   10 * time.Second,
		CheckTimeout:    5 * time.Second,
		DeregisterAfter: 5 * time.Minute,
	}
}

func TestNewDisabled(t *testing.T) {
	r, err := New(&config.Consul{})
	if err != nil || r != nil {
		t.Fatalf("expected nil registry, got %v %v", r, err)
	}
	// nil registry is a no-op
	if err := r.Register(context.Background(), "batchd", "10.0.0.1:8233", nil); err != nil {
		t.Error(err)
	}
	if err := r.Deregister(context.Background()); err != nil {
		t.Error(err)
	}
}

func TestRegister(t *testing.T) {
	fa := &fakeAgent{}
	r := &Registry{cfg: testConfig(), agent: fa}

	if err := r.Register(context.Background(), "batchd", "10.0.0.1:8233", map[string]string{"version": "v1"}); err != nil {
		t.Fatal(err)
	}
	reg := fa.registered[0]
	if !strings.HasPrefix(reg.ID, "batchd-") || reg.Address != "10.0.0.1" || reg.Port != 8233 {
		t.Errorf("registration = %+v", reg)
	}
	if reg.Meta["team"] != "studio" || reg.Meta["version"] != "v1" {
		t.Errorf("meta = %v", reg.Meta)
	}
	if reg.Check == nil || reg.Check.HTTP != "http://10.0.0.1:8233/health" {
		t.Fatalf("check = %+v", reg.Check)
	}
	if reg.Check.Interval != "10s" || reg.Check.DeregisterCriticalServiceAfter != "5m0s" {
		t.Errorf("check timings = %q %q", reg.Check.Interval, reg.Check.DeregisterCriticalServiceAfter)
	}

	if err := r.Deregister(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(fa.deregistered) != 1 || fa.deregistered[0] != reg.ID {
		t.Errorf("deregistered = %v", fa.deregistered)
	}
}

func TestRegisterErrors(t *testing.T) {
	r := &Registry{cfg: testConfig(), agent: &fakeAgent{err: errors.New("agent down")}}
	for _, addr := range []string{"nohost", ":8233", "h:port"} {
		if err := r.Register(context.Background(), "batchd", addr, nil); err == nil {
			t.Errorf("%s: expected error", addr)
		}
	}
	if err := r.Register(context.Background(), "batchd", "10.0.0.1:8233", nil); err == nil {
		t.Error("expected agent error")
	}
}
