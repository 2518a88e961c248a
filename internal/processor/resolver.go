package processor

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	cache "github.com/patrickmn/go-cache"
)

// ConfigKey is the per-site configuration key naming the active
// processor.
const ConfigKey = "promo_processor"

// SiteConfigRepository reads per-site configuration values.
type SiteConfigRepository interface {
	// GetValue returns the configured value for (site, key), or an empty
	// string when no override exists.
	GetValue(ctx context.Context, site, key string) (string, error)
}

// Factory builds a processor instance for a site.
type Factory func(site string) (Processor, error)

// Resolver selects the active processor per site: a per-site config
// override first, then the statically configured default. Site config is
// read-mostly, so resolved names are cached.
type Resolver struct {
	configs     SiteConfigRepository
	factories   map[string]Factory
	defaultName string
	names       *cache.Cache
}

// NewResolver creates a resolver with the given default processor name.
func NewResolver(configs SiteConfigRepository, defaultName string) *Resolver {
	return &Resolver{
		configs:     configs,
		factories:   make(map[string]Factory),
		defaultName: defaultName,
		names:       cache.New(5*time.Minute, 10*time.Minute),
	}
}

// Register adds a factory under a processor name. Later registrations
// with the same name replace earlier ones.
func (r *Resolver) Register(name string, f Factory) {
	r.factories[name] = f
}

// For resolves exactly one processor for the site.
func (r *Resolver) For(ctx context.Context, site string) (Processor, error) {
	name, err := r.nameFor(ctx, site)
	if err != nil {
		return nil, err
	}

	f, ok := r.factories[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownProcessor, "%q for site %q", name, site)
	}
	return f(site)
}

func (r *Resolver) nameFor(ctx context.Context, site string) (string, error) {
	if v, ok := r.names.Get(site); ok {
		return v.(string), nil
	}

	name, err := r.configs.GetValue(ctx, site, ConfigKey)
	if err != nil {
		return "", errors.Wrap(err, "read site processor config")
	}
	if name == "" {
		name = r.defaultName
	}

	r.names.SetDefault(site, name)
	return name, nil
}

// Invalidate drops the cached processor name for a site. Called by
// config-update flows.
func (r *Resolver) Invalidate(site string) {
	r.names.Delete(site)
}
