package models

import "time"

// Datasource represents one connected platform for one user, e.g.
// "Google Ads" for user 7. Unique per (user_id, source_name); created
// lazily the first time a fetch succeeds for that provider.
type Datasource struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	SourceName string    `json:"source_name"`
	CreatedAt  time.Time `json:"created_at"`
}
