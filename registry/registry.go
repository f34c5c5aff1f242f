// Package registry registers the API process with Consul.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/hashicorp/consul/api"
	"github.com/studio233/batchd/config"
	"github.com/studio233/batchd/logging/logger"
)

// agent is the part of the consul agent API the registry needs
type agent interface {
	ServiceRegister(reg *api.AgentServiceRegistration) error
	ServiceDeregister(serviceID string) error
}

// Registry holds one service registration
type Registry struct {
	cfg   *config.Consul
	agent agent
	id    string
}

// New returns nil when cfg does not enable Consul.
func New(cfg *config.Consul) (*Registry, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	cc := api.DefaultConfig()
	cc.Address = cfg.Address
	cc.Scheme = cfg.Scheme
	client, err := api.NewClient(cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}
	return &Registry{cfg: cfg, agent: client.Agent()}, nil
}

// Register announces name at addr ("host:port"). The health check polls
// /health on the same address.
func (r *Registry) Register(ctx context.Context, name, addr string, meta map[string]string) error {
	if r == nil {
		return nil
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid service address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid service port %q: %w", portStr, err)
	}
	if host == "" {
		return errors.New("service host is empty")
	}

	merged := make(map[string]string, len(r.cfg.Meta)+len(meta))
	for k, v := range r.cfg.Meta {
		merged[k] = v
	}
	for k, v := range meta {
		merged[k] = v
	}

	id := fmt.Sprintf("%s-%s", name, uuid.NewString()[:8])
	reg := &api.AgentServiceRegistration{
		ID:      id,
		Name:    name,
		Address: host,
		Port:    port,
		Tags:    r.cfg.Tags,
		Meta:    merged,
	}
	if r.cfg.Check {
		reg.Check = &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("%s://%s/health", r.cfg.Scheme, addr),
			Interval:                       r.cfg.CheckInterval.String(),
			Timeout:                        r.cfg.CheckTimeout.String(),
			DeregisterCriticalServiceAfter: r.cfg.DeregisterAfter.String(),
		}
	}
	if err := r.agent.ServiceRegister(reg); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}
	r.id = id
	logger.Info(ctx, "service registered", "id", id, "address", addr)
	return nil
}

// Deregister removes the registration made by Register
func (r *Registry) Deregister(ctx context.Context) error {
	if r == nil || r.id == "" {
		return nil
	}
	if err := r.agent.ServiceDeregister(r.id); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	logger.Info(ctx, "service deregistered", "id", r.id)
	r.id = ""
	return nil
}
