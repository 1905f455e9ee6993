package endpoints

import (
	"sort"

	"github.com/tsahiduek/ai-on-eks/config"
	"github.com/tsahiduek/ai-on-eks/internal/llmclient"
	"github.com/tsahiduek/ai-on-eks/internal/vllm"
)

// FromConfig builds a registry from configuration: the primary endpoint plus
// any named endpoints, in stable name order. Named endpoints without their
// own API key inherit the primary endpoint's key.
func FromConfig(cfg *config.Config, hooks llmclient.Hooks) *Registry {
	reg := NewRegistry()
	reg.Register(buildEndpoint(cfg.Endpoint, hooks))

	names := make([]string, 0, len(cfg.Endpoints))
	for name := range cfg.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ec := cfg.Endpoints[name]
		if ec.Name == "" {
			ec.Name = name
		}
		if ec.Name == cfg.Endpoint.Name {
			continue // already registered as the primary
		}
		if ec.APIKey == "" {
			ec.APIKey = cfg.Endpoint.APIKey
		}
		reg.Register(buildEndpoint(ec, hooks))
	}

	return reg
}

func buildEndpoint(ec config.EndpointConfig, hooks llmclient.Hooks) *Endpoint {
	clientCfg := llmclient.DefaultConfig(ec.Name, ec.ResolveBaseURL())
	clientCfg.Hooks = hooks
	client := vllm.NewWithConfig(ec.APIKey, clientCfg)
	return NewEndpoint(ec.Name, client)
}
