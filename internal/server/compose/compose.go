// Package compose builds the served JSON shape of a server version from its
// stored row and the optional package enrichment.
package compose

import (
	"maps"

	"github.com/dmitrijs2005/regmirror/internal/server/models"
)

// ServerBody is the served entity. Its _meta is the publisher metadata.
type ServerBody struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Version     string             `json:"version"`
	Repository  *models.Repository `json:"repository,omitempty"`
	WebsiteURL  string             `json:"websiteUrl,omitempty"`
	Packages    models.RawList     `json:"packages,omitempty"`
	Remotes     models.RawList     `json:"remotes,omitempty"`
	Meta        models.Meta        `json:"_meta,omitempty"`
}

// ServerJSON wraps a served entity with the composed registry metadata.
type ServerJSON struct {
	Server ServerBody  `json:"server"`
	Meta   models.Meta `json:"_meta"`
}

// Overlay merges layers in order; keys of later layers replace earlier ones.
// The merge is shallow and never mutates its inputs. Nil layers are skipped.
func Overlay(layers ...models.Meta) models.Meta {
	out := models.Meta{}
	for _, l := range layers {
		maps.Copy(out, l)
	}
	return out
}

// Server composes the response for view. Registry metadata is the overlay
// parent registry -> package enrichment -> version registry.
func Server(view models.ServerView) ServerJSON {
	sv := view.Version

	var pkgMeta models.Meta
	if view.Enrichment != nil {
		pkgMeta = view.Enrichment.RegistryMeta
	}

	return ServerJSON{
		Server: ServerBody{
			Name:        sv.Name,
			Description: sv.Description,
			Version:     sv.Version,
			Repository:  sv.Repository,
			WebsiteURL:  sv.WebsiteURL,
			Packages:    sv.Packages,
			Remotes:     sv.Remotes,
			Meta:        sv.PublisherMeta,
		},
		Meta: Overlay(sv.ParentRegistryMeta, pkgMeta, sv.VersionRegistryMeta),
	}
}

// Servers composes every view in order.
func Servers(views []models.ServerView) []ServerJSON {
	out := make([]ServerJSON, 0, len(views))
	for _, v := range views {
		out = append(out, Server(v))
	}
	return out
}
