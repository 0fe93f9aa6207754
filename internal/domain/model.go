// Package domain holds the persistent record types of a synced Fusion design
// and the storage port the reconciliation engine is written against.
//
// Records are keyed by a store-assigned int64 ID. External identity lives in
// the UUID fields minted by the authoring tool; ComponentRevision is keyed by
// (ComponentID, VersionNumber) and AssemblyEdge by (ParentRevisionID,
// ChildRevisionID).
package domain

import "time"

// User is an actor referenced by created_by / modified_by fields.
type User struct {
	ID        int64
	UUID      string
	Name      string
	Email     string
	Role      string
	Active    bool
	CreatedAt time.Time
}

// Component is the immutable identity of a part. Only Name is refreshed by
// later syncs.
type Component struct {
	ID           int64
	UUID         string
	Name         string
	CreationDate time.Time
	CreatedByID  *int64
}

// ComponentRevision is one numbered snapshot of a Component.
type ComponentRevision struct {
	ID            int64
	ComponentID   int64
	VersionNumber int
	RevisionDate  time.Time
	ModifiedByID  *int64

	// DesignRevisionID is the design revision the revision was last synced in.
	DesignRevisionID *int64

	// ExternalDesignRevisionID links revisions that originate from another
	// design (Fusion external references).
	ExternalDesignRevisionID *int64
}

// AssemblyEdge is a quantified parent → child link in the bill of materials.
// The parent revision owns the edge; the child is only referenced.
type AssemblyEdge struct {
	ID               int64
	ParentRevisionID int64
	ChildRevisionID  int64
	Quantity         int
	Sequence         int
}

// Design is the immutable identity of a Fusion design document.
type Design struct {
	ID           int64
	UUID         string
	Name         string
	CreationDate time.Time
	CreatedByID  *int64
}

// DesignRevision is one numbered snapshot of a Design.
type DesignRevision struct {
	ID            int64
	DesignID      int64
	UUID          string
	VersionNumber int
	RevisionDate  time.Time
	ModifiedByID  *int64
}

// Counts reports the number of records per entity kind.
type Counts struct {
	Users              int `json:"users"`
	Components         int `json:"components"`
	ComponentRevisions int `json:"component_revisions"`
	AssemblyEdges      int `json:"assembly_edges"`
	Designs            int `json:"designs"`
	DesignRevisions    int `json:"design_revisions"`
}

// EntityKind names a record type in the sync event log.
type EntityKind string

const (
	KindUser              EntityKind = "user"
	KindComponent         EntityKind = "component"
	KindComponentRevision EntityKind = "component_revision"
	KindAssemblyEdge      EntityKind = "assembly_edge"
	KindDesign            EntityKind = "design"
	KindDesignRevision    EntityKind = "design_revision"
)

// EventAction is what a sync did to a record.
type EventAction string

const (
	ActionCreated EventAction = "created"
	ActionUpdated EventAction = "updated"
)

// SyncEvent is one append-only audit entry. Seq is a per-run logical clock;
// events are always read in seq order, never by wall time.
type SyncEvent struct {
	RunID       string      `json:"run_id"`
	Seq         int64       `json:"seq"`
	Kind        EntityKind  `json:"kind"`
	EntityID    int64       `json:"entity_id"`
	ExternalKey string      `json:"external_key"`
	Action      EventAction `json:"action"`
}

// RunStatus is the outcome of one ingestion call.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// SyncRun records one ingestion call, successful or not.
type SyncRun struct {
	ID            string    `json:"id"`
	DesignUUID    string    `json:"design_uuid"`
	PayloadDigest string    `json:"payload_digest"`
	Status        RunStatus `json:"status"`
	ErrorCode     string    `json:"error_code,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Created       int       `json:"created"`
	Updated       int       `json:"updated"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}
