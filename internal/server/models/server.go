package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the upstream lifecycle state of a server version.
type Status string

const (
	StatusActive     Status = "active"
	StatusDeprecated Status = "deprecated"
	StatusDeleted    Status = "deleted"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusDeprecated, StatusDeleted:
		return true
	}
	return false
}

// Visibility is the local publication gate of a package or version.
type Visibility string

const (
	VisibilityDraft     Visibility = "draft"
	VisibilityPublished Visibility = "published"
)

// Valid reports whether v is one of the known visibilities.
func (v Visibility) Valid() bool {
	return v == VisibilityDraft || v == VisibilityPublished
}

// Repository points at the source repository of a server.
type Repository struct {
	URL       string `json:"url,omitempty"`
	Source    string `json:"source,omitempty"`
	ID        string `json:"id,omitempty"`
	Subfolder string `json:"subfolder,omitempty"`
}

// Value stores the repository as JSONB; a nil repository is SQL NULL.
func (r *Repository) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("repository encode: %w", err)
	}
	return b, nil
}

// NullRepository scans a nullable JSONB repository column.
type NullRepository struct {
	Repository *Repository
}

func (n *NullRepository) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if b == nil {
		n.Repository = nil
		return nil
	}
	var r Repository
	if err := json.Unmarshal(b, &r); err != nil {
		return fmt.Errorf("repository decode: %w", err)
	}
	n.Repository = &r
	return nil
}

// ServerVersion is one upstream entry at one version, keyed by (Name, Version).
//
// Upstream-owned fields are replaced on every sync. VersionRegistryMeta and
// Visibility are owned by the admin surface and are only initialised on insert.
type ServerVersion struct {
	Name    string
	Version string

	Description        string
	Status             Status
	IsLatest           bool
	Repository         *Repository
	WebsiteURL         string
	Packages           RawList
	Remotes            RawList
	PublisherMeta      Meta
	ParentRegistryMeta Meta
	PublishedAt        *time.Time

	VersionRegistryMeta Meta
	Visibility          Visibility

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PackageEnrichment is local curation shared by every version of a name.
type PackageEnrichment struct {
	Name         string
	RegistryMeta Meta
	Visibility   Visibility
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ServerView is a server version joined with its optional enrichment.
type ServerView struct {
	Version    ServerVersion
	Enrichment *PackageEnrichment
}
