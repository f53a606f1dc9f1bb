package models

import "time"

// Credentials is the decrypted login pair for a tenant's upstream account.
// It exists in memory only for the duration of a single pipeline run and must
// never be logged or serialized into task rows.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Tenant is one administrative boundary (institution) with its own upstream
// URL, credentials and process corpus.
type Tenant struct {
	ID                   string                 `json:"id" badgerhold:"key"`
	Name                 string                 `json:"name"`
	UpstreamURL          string                 `json:"upstream_url"`
	ScraperVersion       string                 `json:"scraper_version"`
	IsActive             bool                   `json:"is_active"`
	EncryptedCredentials string                 `json:"-"`
	ExtraMetadata        map[string]interface{} `json:"extra_metadata,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

// NewTenant creates an active tenant with timestamps set.
func NewTenant(id, name, upstreamURL, scraperVersion string) *Tenant {
	now := time.Now()
	return &Tenant{
		ID:             id,
		Name:           name,
		UpstreamURL:    upstreamURL,
		ScraperVersion: scraperVersion,
		IsActive:       true,
		ExtraMetadata:  map[string]interface{}{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
