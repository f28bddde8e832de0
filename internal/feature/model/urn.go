// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidURN is returned by ParseURN for malformed identifiers.
var ErrInvalidURN = errors.New("invalid feature urn")

// providerNamespace seeds the name-based UUID derived from a provider id.
var providerNamespace = uuid.MustParse("6c7a4f7e-2f0b-4a8e-9d4f-0f3d6c1b7e21")

// URN is the parsed form of URN:FEATURE:<entityType>:<tenant>:<uuid>:V<version>.
type URN struct {
	EntityType string
	Tenant     string
	ID         uuid.UUID
	Version    int
}

// NewURN derives the URN of version v of the feature identified by providerID.
func NewURN(entityType, tenant, providerID string, v int) URN {
	if entityType == "" {
		entityType = DefaultEntityType
	}
	return URN{
		EntityType: entityType,
		Tenant:     tenant,
		ID:         uuid.NewMD5(providerNamespace, []byte(providerID)),
		Version:    v,
	}
}

func (u URN) String() string {
	return fmt.Sprintf("URN:FEATURE:%s:%s:%s:V%03d", u.EntityType, u.Tenant, u.ID, u.Version)
}

// ParseURN parses a feature urn.
func ParseURN(s string) (URN, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 || parts[0] != "URN" || parts[1] != "FEATURE" {
		return URN{}, fmt.Errorf("%w: %q", ErrInvalidURN, s)
	}
	if parts[2] == "" || parts[3] == "" {
		return URN{}, fmt.Errorf("%w: %q: empty entity type or tenant", ErrInvalidURN, s)
	}
	id, err := uuid.Parse(parts[4])
	if err != nil {
		return URN{}, fmt.Errorf("%w: %q: %v", ErrInvalidURN, s, err)
	}
	if !strings.HasPrefix(parts[5], "V") {
		return URN{}, fmt.Errorf("%w: %q: missing version", ErrInvalidURN, s)
	}
	v, err := strconv.Atoi(parts[5][1:])
	if err != nil || v < 1 {
		return URN{}, fmt.Errorf("%w: %q: bad version", ErrInvalidURN, s)
	}
	return URN{EntityType: parts[2], Tenant: parts[3], ID: id, Version: v}, nil
}
