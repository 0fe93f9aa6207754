// Package testutil provides deterministic clocks, run ids and payload
// builders shared by the package tests.
package testutil

import (
	"time"

	"github.com/roach88/fusionsync/internal/payload"
)

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Actor returns an actor reference with a derived email.
func Actor(uuid string) *payload.ActorRef {
	return &payload.ActorRef{UUID: uuid, Email: uuid + "@example.com", Name: uuid}
}

// Design builds a design payload.
func Design(uuid string, versions ...payload.DesignVersion) payload.DesignStructure {
	return payload.DesignStructure{
		UUID:         uuid,
		Name:         "Design " + uuid,
		CreationDate: payload.At(Epoch),
		CreatedBy:    Actor("designer"),
		Versions:     versions,
	}
}

// DesignVersion builds a numbered design version.
func DesignVersion(uuid string, number int, entries ...payload.ComponentVersionEntry) payload.DesignVersion {
	return payload.DesignVersion{
		UUID:              uuid,
		VersionNumber:     payload.Number(number),
		RevisionDate:      payload.At(Epoch.Add(time.Duration(number) * time.Hour)),
		ModifiedBy:        Actor("designer"),
		ComponentVersions: entries,
	}
}

// Component builds a component version entry with the given lines.
func Component(uuid string, number int, lines ...payload.AssemblyLine) payload.ComponentVersionEntry {
	return payload.ComponentVersionEntry{
		FusionComponentVersion: &payload.ComponentVersion{
			UUID:          uuid,
			Name:          "Component " + uuid,
			CreationDate:  payload.At(Epoch),
			CreatedBy:     Actor("designer"),
			VersionNumber: payload.Number(number),
			RevisionDate:  payload.At(Epoch.Add(time.Duration(number) * time.Minute)),
			ModifiedBy:    Actor("designer"),
			AssemblyLines: lines,
		},
	}
}

// Line references the latest revision of child with an explicit quantity.
func Line(child string, quantity int) payload.AssemblyLine {
	return payload.AssemblyLine{ChildComponentVersionID: child, Quantity: Ptr(quantity)}
}

// LineAt references a numbered revision of child.
func LineAt(child string, number, quantity int) payload.AssemblyLine {
	return payload.AssemblyLine{
		ChildComponentVersionID: child,
		ChildVersionNumber:      payload.Number(number),
		Quantity:                Ptr(quantity),
	}
}

// DefaultLine references the latest revision of child with quantity and
// sequence omitted.
func DefaultLine(child string) payload.AssemblyLine {
	return payload.AssemblyLine{ChildComponentVersionID: child}
}
