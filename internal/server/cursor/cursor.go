// Package cursor encodes list positions as "name:version" tokens.
//
// Names never contain ':' (the record validator rejects them), so a token is
// split at its first ':' and the remainder, colons included, is the version.
package cursor

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/regmirror/internal/common"
)

const separator = ":"

// Position is a (name, version) key in the list order.
type Position struct {
	Name    string
	Version string
}

// Encode returns the token for p.
func Encode(p Position) string {
	return p.Name + separator + p.Version
}

// Decode parses a token produced by Encode. An empty token yields (nil, nil).
// Malformed tokens wrap common.ErrInvalidArgument.
func Decode(token string) (*Position, error) {
	if token == "" {
		return nil, nil
	}
	name, version, ok := strings.Cut(token, separator)
	if !ok || name == "" || version == "" {
		return nil, fmt.Errorf("%w: malformed cursor %q", common.ErrInvalidArgument, token)
	}
	return &Position{Name: name, Version: version}, nil
}

// After reports whether p sorts strictly after other in byte order of
// (name, version).
func (p Position) After(other Position) bool {
	if p.Name != other.Name {
		return p.Name > other.Name
	}
	return p.Version > other.Version
}
