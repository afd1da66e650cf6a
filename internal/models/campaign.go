package models

import (
	"errors"
	"time"
)

// Campaign represents one advertising/analytics campaign within a
// datasource. When the vendor supplies a stable external identifier,
// uniqueness is enforced on (data_source_id, external_id); otherwise it
// falls back to (data_source_id, campaign_name). Campaign identity is
// always scoped to a datasource so equal names on different platforms
// never merge.
type Campaign struct {
	ID           int64     `json:"id"`
	DatasourceID int64     `json:"data_source_id"`
	Name         string    `json:"campaign_name"`
	ExternalID   string    `json:"external_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks required campaign fields.
func (c *Campaign) Validate() error {
	if c.DatasourceID <= 0 {
		return errors.New("campaign datasource is required")
	}
	if c.Name == "" && c.ExternalID == "" {
		return errors.New("campaign needs a name or an external id")
	}
	return nil
}
