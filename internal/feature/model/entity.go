// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// Entity is the persisted aggregate owning one feature snapshot.
type Entity struct {
	URN                string
	PreviousVersionURN string
	ProviderID         string
	Model              string
	Session            string
	SessionOwner       string
	Version            int
	Feature            Feature
	CreationDate       time.Time
	LastUpdate         time.Time
	Disseminations     []Dissemination
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := *e
	out.Feature = e.Feature.Clone()
	out.Disseminations = CloneDisseminations(e.Disseminations)
	return &out
}

// NeverUpdated reports whether the entity still holds its creation snapshot.
func (e *Entity) NeverUpdated() bool {
	return e.LastUpdate.Equal(e.CreationDate)
}
