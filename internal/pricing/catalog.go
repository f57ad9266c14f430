package pricing

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

// Verification timeouts are clamped to this window; the sweeper's
// cadence is sized for the lower bound.
const (
	minVerificationTimeout = 45 * time.Second
	maxVerificationTimeout = 15 * time.Minute
)

// defaultVerificationTimeout applies to services without a catalog entry.
const defaultVerificationTimeout = 120 * time.Second

type ServiceConfig struct {
	Name    string
	Popular bool
	Timeout time.Duration
}

// serviceEntry is the YAML shape; timeouts are duration strings like
// "90s" or "5m".
type serviceEntry struct {
	Name    string `yaml:"name"`
	Popular bool   `yaml:"popular"`
	Timeout string `yaml:"timeout"`
}

type catalogFile struct {
	Services []serviceEntry `yaml:"services"`
}

// Catalog is the service rate-card input: which services are popular
// and how long their verifications live.
type Catalog struct {
	services map[string]ServiceConfig
}

// NewCatalog builds a catalog from explicit entries.
func NewCatalog(services []ServiceConfig) *Catalog {
	c := &Catalog{services: make(map[string]ServiceConfig, len(services))}
	for _, svc := range services {
		c.services[svc.Name] = svc
	}
	return c
}

// LoadCatalog reads the service catalog from a YAML file.
func LoadCatalog(catalogFilePath string) (*Catalog, error) {
	path := catalogFilePath
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", catalogFilePath, err)
	}

	var parsed catalogFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", catalogFilePath, err)
	}

	services := make([]ServiceConfig, 0, len(parsed.Services))
	for i, entry := range parsed.Services {
		if entry.Name == "" {
			return nil, fmt.Errorf("service at index %d missing name", i)
		}
		svc := ServiceConfig{Name: entry.Name, Popular: entry.Popular}
		if entry.Timeout != "" {
			timeout, err := time.ParseDuration(entry.Timeout)
			if err != nil {
				return nil, fmt.Errorf("service %s has invalid timeout %q: %w", entry.Name, entry.Timeout, err)
			}
			if timeout < 0 {
				return nil, fmt.Errorf("service %s has negative timeout", entry.Name)
			}
			svc.Timeout = timeout
		}
		services = append(services, svc)
	}

	return NewCatalog(services), nil
}

// IsPopular reports whether the service has the discounted popular base
// rate. Unlisted services are general.
func (c *Catalog) IsPopular(serviceName string) bool {
	svc, ok := c.services[serviceName]
	return ok && svc.Popular
}

// VerificationTimeout returns the service's verification window,
// clamped to the supported range.
func (c *Catalog) VerificationTimeout(serviceName string) time.Duration {
	timeout := defaultVerificationTimeout
	if svc, ok := c.services[serviceName]; ok && svc.Timeout > 0 {
		timeout = svc.Timeout
	}
	if timeout < minVerificationTimeout {
		return minVerificationTimeout
	}
	if timeout > maxVerificationTimeout {
		return maxVerificationTimeout
	}
	return timeout
}
