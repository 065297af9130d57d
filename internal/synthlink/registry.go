package synthlink

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/synthlink/driver"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/synthlink/driver/elevenlabs"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/synthlink/driver/replicate"
)

type Registry struct {
	cfg Config

	mu      sync.Mutex
	drivers map[string]driver.Driver
	rr      map[string]int
	pacers  map[string]*rate.Limiter
}

type ResolvedProvider struct {
	ProviderID string
	Provider   ProviderInstanceConfig
	Credential CredentialConfig
	Driver     driver.Driver
	Model      string
	// Pacer throttles outbound calls to the instance; nil means unlimited.
	Pacer *rate.Limiter
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg}
}

// Resolve picks the provider instance serving an operation class and returns
// everything needed to call it: driver, credential, model, pacer.
func (r *Registry) Resolve(class, modelOverride string) (*ResolvedProvider, error) {
	providerID, providerCfg, err := r.resolveProvider(class)
	if err != nil {
		return nil, err
	}

	resolved, err := r.assemble(providerID, providerCfg)
	if err != nil {
		return nil, err
	}

	model, err := resolveModel(providerCfg, class, modelOverride)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", providerID, err)
	}
	resolved.Model = model

	return resolved, nil
}

// ResolveByID returns the instance for a known provider id. Used when a
// stored job ref already names its instance and no routing is involved.
func (r *Registry) ResolveByID(providerID string) (*ResolvedProvider, error) {
	if r == nil {
		return nil, fmt.Errorf("synthlink registry not configured")
	}

	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return nil, fmt.Errorf("provider id is required")
	}

	providerCfg, ok := r.cfg.Providers[providerID]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", providerID)
	}
	if !providerCfg.Enabled {
		return nil, fmt.Errorf("provider %q is disabled", providerID)
	}

	return r.assemble(providerID, providerCfg)
}

func (r *Registry) assemble(providerID string, providerCfg ProviderInstanceConfig) (*ResolvedProvider, error) {
	cred, credKey, err := selectCredential(providerCfg, func(groupKey string, n int) int {
		return r.rrIndex(providerID+":"+groupKey, n)
	})
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", providerID, err)
	}

	drv, err := r.driverFor(providerID, providerCfg, cred, credKey)
	if err != nil {
		return nil, err
	}

	return &ResolvedProvider{
		ProviderID: providerID,
		Provider:   providerCfg,
		Credential: cred,
		Driver:     drv,
		Pacer:      r.pacerFor(providerID, providerCfg),
	}, nil
}

func (r *Registry) resolveProvider(class string) (string, ProviderInstanceConfig, error) {
	if r == nil {
		return "", ProviderInstanceConfig{}, fmt.Errorf("synthlink registry not configured")
	}

	class = strings.TrimSpace(class)
	if class != "" {
		if providerID, ok := r.cfg.Routing[class]; ok {
			providerID = strings.TrimSpace(providerID)
			if providerID != "" {
				providerCfg, ok := r.cfg.Providers[providerID]
				if !ok {
					return "", ProviderInstanceConfig{}, fmt.Errorf("unknown provider %q for class %q", providerID, class)
				}
				if !providerCfg.Enabled {
					return "", ProviderInstanceConfig{}, fmt.Errorf("provider %q is disabled", providerID)
				}
				return providerID, providerCfg, nil
			}
		}

		for providerID, providerCfg := range r.cfg.Providers {
			if !providerCfg.Enabled {
				continue
			}
			if contains(providerCfg.Classes, class) {
				return providerID, providerCfg, nil
			}
		}
	}

	if id := strings.TrimSpace(r.cfg.DefaultProvider); id != "" {
		providerCfg, ok := r.cfg.Providers[id]
		if !ok {
			return "", ProviderInstanceConfig{}, fmt.Errorf("default provider %q not configured", id)
		}
		if !providerCfg.Enabled {
			return "", ProviderInstanceConfig{}, fmt.Errorf("default provider %q is disabled", id)
		}
		return id, providerCfg, nil
	}

	var onlyID string
	var onlyCfg ProviderInstanceConfig
	for providerID, providerCfg := range r.cfg.Providers {
		if !providerCfg.Enabled {
			continue
		}
		if onlyID != "" {
			return "", ProviderInstanceConfig{}, fmt.Errorf("no provider routing configured for class %q", class)
		}
		onlyID = providerID
		onlyCfg = providerCfg
	}
	if onlyID == "" {
		return "", ProviderInstanceConfig{}, fmt.Errorf("no enabled providers configured")
	}
	return onlyID, onlyCfg, nil
}

func selectCredential(cfg ProviderInstanceConfig, rrNext func(groupKey string, n int) int) (CredentialConfig, string, error) {
	if len(cfg.Credentials) == 0 {
		return CredentialConfig{}, "", fmt.Errorf("no credentials configured")
	}

	enabled := make([]CredentialConfig, 0, len(cfg.Credentials))
	for _, cred := range cfg.Credentials {
		if !cred.Enabled && strings.TrimSpace(cred.Label) != "" {
			continue
		}
		if strings.TrimSpace(cred.APIKey) == "" {
			continue
		}
		enabled = append(enabled, cred)
	}
	if len(enabled) == 0 {
		// Credentials exist but are not usable; return first so caller can report missing key.
		cred := cfg.Credentials[0]
		key := strings.TrimSpace(cred.Label)
		if key == "" {
			key = "0"
		}
		return cred, key, nil
	}

	if label := strings.TrimSpace(cfg.DefaultCredential); label != "" {
		for _, cred := range enabled {
			if strings.EqualFold(strings.TrimSpace(cred.Label), label) {
				return cred, strings.TrimSpace(cred.Label), nil
			}
		}
	}

	policy := strings.ToLower(strings.TrimSpace(cfg.SelectionPolicy))
	if policy == "" {
		policy = "priority"
	}

	// Compute highest priority set.
	highest := enabled[0].Priority
	for _, cred := range enabled[1:] {
		if cred.Priority > highest {
			highest = cred.Priority
		}
	}
	group := make([]CredentialConfig, 0, len(enabled))
	for _, cred := range enabled {
		if cred.Priority == highest {
			group = append(group, cred)
		}
	}

	switch policy {
	case "round_robin":
		idx := 0
		if rrNext != nil {
			idx = rrNext(fmt.Sprintf("%d", highest), len(group))
		}
		cred := group[idx]
		key := strings.TrimSpace(cred.Label)
		if key == "" {
			key = fmt.Sprintf("p%d", highest)
		}
		return cred, key, nil
	case "priority":
		fallthrough
	default:
		cred := group[0]
		key := strings.TrimSpace(cred.Label)
		if key == "" {
			key = fmt.Sprintf("p%d", highest)
		}
		return cred, key, nil
	}
}

func (r *Registry) driverFor(providerID string, providerCfg ProviderInstanceConfig, cred CredentialConfig, credKey string) (driver.Driver, error) {
	if strings.TrimSpace(providerID) == "" {
		return nil, fmt.Errorf("provider id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drivers == nil {
		r.drivers = map[string]driver.Driver{}
	}
	if r.rr == nil {
		r.rr = map[string]int{}
	}
	driverKey := providerID
	if strings.TrimSpace(credKey) != "" {
		driverKey += ":" + credKey
	}
	if drv, ok := r.drivers[driverKey]; ok {
		return drv, nil
	}

	providerType := strings.ToLower(strings.TrimSpace(providerCfg.Provider))
	switch providerType {
	case "replicate":
		client := replicate.NewClient(providerCfg.BaseURL, cred.APIKey)
		client.Timeout = r.cfg.DefaultTimeout
		r.drivers[driverKey] = client
		return client, nil
	case "elevenlabs":
		client := elevenlabs.NewClient(providerCfg.BaseURL, cred.APIKey)
		client.Timeout = r.cfg.DefaultTimeout
		r.drivers[driverKey] = client
		return client, nil
	default:
		if providerType == "" {
			providerType = "(unset)"
		}
		return nil, fmt.Errorf("unsupported provider %q for instance %q", providerType, providerID)
	}
}

// pacerFor returns the shared limiter for an instance, or nil when the
// instance is unthrottled.
func (r *Registry) pacerFor(providerID string, providerCfg ProviderInstanceConfig) *rate.Limiter {
	if providerCfg.MaxRPS <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pacers == nil {
		r.pacers = map[string]*rate.Limiter{}
	}
	if pacer, ok := r.pacers[providerID]; ok {
		return pacer
	}

	burst := providerCfg.Burst
	if burst < 1 {
		burst = 1
	}
	pacer := rate.NewLimiter(rate.Limit(providerCfg.MaxRPS), burst)
	r.pacers[providerID] = pacer
	return pacer
}

func resolveModel(providerCfg ProviderInstanceConfig, class, override string) (string, error) {
	model := strings.TrimSpace(override)
	if model != "" {
		return model, nil
	}

	if providerCfg.Models != nil {
		if class = strings.TrimSpace(class); class != "" {
			model = strings.TrimSpace(providerCfg.Models[class])
			if model != "" {
				return model, nil
			}
		}
		model = strings.TrimSpace(providerCfg.Models["default"])
		if model != "" {
			return model, nil
		}
	}

	return "", fmt.Errorf("no model configured for class %q", class)
}

// Instances returns a diagnostic view of all configured provider instances,
// sorted by id.
func (r *Registry) Instances() []InstanceInfo {
	if r == nil {
		return nil
	}

	ids := make([]string, 0, len(r.cfg.Providers))
	for id := range r.cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	infos := make([]InstanceInfo, 0, len(ids))
	for _, id := range ids {
		providerCfg := r.cfg.Providers[id]

		hasCredential := false
		for _, cred := range providerCfg.Credentials {
			if strings.TrimSpace(cred.APIKey) != "" {
				hasCredential = true
				break
			}
		}

		classes := append([]string(nil), providerCfg.Classes...)
		for class, target := range r.cfg.Routing {
			if target == id && !contains(classes, class) {
				classes = append(classes, class)
			}
		}
		sort.Strings(classes)

		infos = append(infos, InstanceInfo{
			ID:            id,
			Provider:      providerCfg.Provider,
			Enabled:       providerCfg.Enabled,
			BaseURL:       providerCfg.BaseURL,
			Classes:       classes,
			HasCredential: hasCredential,
			Async:         providerCfg.Capabilities.Async,
			CanCancel:     providerCfg.Capabilities.Cancel,
			MaxRPS:        providerCfg.MaxRPS,
		})
	}
	return infos
}

func (r *Registry) rrIndex(key string, n int) int {
	if n <= 1 {
		return 0
	}
	if r == nil {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rr == nil {
		r.rr = map[string]int{}
	}
	idx := r.rr[key] % n
	r.rr[key] = r.rr[key] + 1
	return idx
}

func contains(values []string, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), needle) {
			return true
		}
	}
	return false
}
