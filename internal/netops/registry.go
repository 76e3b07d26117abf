package netops

import (
	"sync"

	"github.com/guestgate/guestgate/internal/models"
)

// Factory builds an adapter bound to one device's connection config.
type Factory func(cfg Config) Adapter

// Registry maps equipment brands to adapter constructors. An
// unregistered brand yields UnsupportedBrandError, which is distinct
// from any operational failure and is never counted against a device.
type Registry struct {
	mu        sync.RWMutex
	factories map[models.DeviceBrand]Factory
}

var (
	defaultRegistry *Registry
	registryOnce    sync.Once
)

// DefaultRegistry returns the singleton registry with all built-in
// adapters registered.
func DefaultRegistry() *Registry {
	registryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		defaultRegistry.registerBuiltins()
	})
	return defaultRegistry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[models.DeviceBrand]Factory)}
}

func (r *Registry) registerBuiltins() {
	r.Register(models.BrandUbiquiti, NewUbiquitiAdapter)
	r.Register(models.BrandMikrotik, NewMikrotikAdapter)
	r.Register(models.BrandCisco, NewCiscoAdapter)
	r.Register(models.BrandOpenWrt, NewOpenWrtAdapter)

	// Consumer-grade brands without a usable management API get the
	// read-only SNMP probe; blocking calls on them fail locally.
	for _, brand := range []models.DeviceBrand{
		models.BrandTPLink,
		models.BrandAsus,
		models.BrandDLink,
		models.BrandNetgear,
		models.BrandOther,
	} {
		r.Register(brand, NewSNMPProbe)
	}
}

// Register installs a factory for a brand, replacing any previous one.
func (r *Registry) Register(brand models.DeviceBrand, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[brand] = f
}

// Supported reports whether a factory is registered for the brand.
func (r *Registry) Supported(brand models.DeviceBrand) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[brand]
	return ok
}

// Brands lists all registered brands.
func (r *Registry) Brands() []models.DeviceBrand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	brands := make([]models.DeviceBrand, 0, len(r.factories))
	for b := range r.factories {
		brands = append(brands, b)
	}
	return brands
}

// SelectAdapter resolves the adapter for a device and binds it to the
// device's connection config and decrypted credentials.
func (r *Registry) SelectAdapter(device *models.NetworkDevice, creds Credentials) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[device.Brand]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnsupportedBrandError{Brand: device.Brand}
	}

	return factory(Config{
		Host:        device.Host,
		Port:        device.Port,
		UseTLS:      device.UseTLS,
		VerifyTLS:   device.VerifyTLS,
		Timeout:     device.Timeout(),
		Credentials: creds,
	}), nil
}
