package scrapers

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
)

// Registry resolves scraper plugins by upstream version string, with
// fallback to the newest plugin of the same version family.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]interfaces.ScraperPlugin
	logger  arbor.ILogger
}

// NewRegistry creates an empty plugin registry.
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		plugins: map[string]interfaces.ScraperPlugin{},
		logger:  logger,
	}
}

var _ interfaces.PluginRegistry = (*Registry)(nil)

// Register adds a plugin. Duplicate versions are rejected.
func (r *Registry) Register(plugin interfaces.ScraperPlugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	version := plugin.Version()
	if version == "" {
		return fmt.Errorf("plugin version is required")
	}
	if _, exists := r.plugins[version]; exists {
		return fmt.Errorf("plugin already registered for version %s", version)
	}

	r.plugins[version] = plugin
	r.logger.Info().
		Str("version", version).
		Str("family", plugin.Family()).
		Msg("Scraper plugin registered")
	return nil
}

// Resolve returns the plugin for the exact version. When no exact match
// exists, the newest registered plugin of the same family is returned, on
// the grounds that minor upstream releases rarely change the page layout.
func (r *Registry) Resolve(version string) (interfaces.ScraperPlugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if plugin, ok := r.plugins[version]; ok {
		return plugin, nil
	}

	family := familyOf(version)
	var best interfaces.ScraperPlugin
	for _, plugin := range r.plugins {
		if plugin.Family() != family {
			continue
		}
		if best == nil || compareVersions(plugin.Version(), best.Version()) > 0 {
			best = plugin
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no scraper plugin for version %s", models.ErrConfig, version)
	}

	r.logger.Warn().
		Str("requested", version).
		Str("resolved", best.Version()).
		Msg("No exact plugin match, using family fallback")
	return best, nil
}

// Versions lists registered versions in ascending order.
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.plugins))
	for v := range r.plugins {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return compareVersions(out[i], out[j]) < 0 })
	return out
}

// familyOf maps a version string to its family name, e.g. "4.2.0" to
// "sei_v4".
func familyOf(version string) string {
	major := version
	if i := strings.IndexByte(version, '.'); i >= 0 {
		major = version[:i]
	}
	return "sei_v" + major
}

// compareVersions orders dotted numeric versions. Non-numeric segments
// compare as zero.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
