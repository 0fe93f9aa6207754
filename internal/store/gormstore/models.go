package gormstore

import (
	"time"

	"github.com/roach88/fusionsync/internal/domain"
)

// Table layout mirrors the SQLite store's schema.sql. Foreign keys are not
// declared; the engine only writes ids it has just read in the same
// transaction.

type userModel struct {
	ID        int64      `gorm:"primaryKey"`
	UUID      string     `gorm:"column:uuid;size:255;not null;uniqueIndex"`
	Name      string     `gorm:"size:255;not null;default:''"`
	Email     string     `gorm:"size:255;not null"`
	Role      string     `gorm:"size:100;not null;default:''"`
	Active    bool       `gorm:"not null"`
	CreatedOn *time.Time `gorm:"column:created_at"`
}

func (userModel) TableName() string { return "users" }

type componentModel struct {
	ID           int64  `gorm:"primaryKey"`
	UUID         string `gorm:"column:uuid;size:255;not null;uniqueIndex"`
	Name         string `gorm:"size:255;not null;default:''"`
	CreationDate *time.Time
	CreatedBy    *int64
}

func (componentModel) TableName() string { return "components" }

type componentRevisionModel struct {
	ID                       int64 `gorm:"primaryKey"`
	ComponentID              int64 `gorm:"not null;uniqueIndex:idx_component_revisions_number,priority:1"`
	VersionNumber            int   `gorm:"not null;uniqueIndex:idx_component_revisions_number,priority:2"`
	RevisionDate             *time.Time
	ModifiedBy               *int64
	DesignRevisionID         *int64
	ExternalDesignRevisionID *int64
}

func (componentRevisionModel) TableName() string { return "component_revisions" }

type assemblyEdgeModel struct {
	ID               int64 `gorm:"primaryKey"`
	ParentRevisionID int64 `gorm:"not null;uniqueIndex:idx_assembly_edges_pair,priority:1"`
	ChildRevisionID  int64 `gorm:"not null;uniqueIndex:idx_assembly_edges_pair,priority:2;index:idx_assembly_edges_child"`
	Quantity         int   `gorm:"not null"`
	Sequence         int   `gorm:"not null"`
}

func (assemblyEdgeModel) TableName() string { return "assembly_edges" }

type designModel struct {
	ID           int64  `gorm:"primaryKey"`
	UUID         string `gorm:"column:uuid;size:255;not null;uniqueIndex"`
	Name         string `gorm:"size:255;not null;default:''"`
	CreationDate *time.Time
	CreatedBy    *int64
}

func (designModel) TableName() string { return "designs" }

type designRevisionModel struct {
	ID            int64  `gorm:"primaryKey"`
	DesignID      int64  `gorm:"not null;uniqueIndex:idx_design_revisions_number,priority:1"`
	UUID          string `gorm:"column:uuid;size:255;not null;uniqueIndex"`
	VersionNumber int    `gorm:"not null;uniqueIndex:idx_design_revisions_number,priority:2"`
	RevisionDate  *time.Time
	ModifiedBy    *int64
}

func (designRevisionModel) TableName() string { return "design_revisions" }

// syncRunModel keys runs by an insertion counter so listing newest first
// does not depend on wall clocks.
type syncRunModel struct {
	Pos           int64  `gorm:"primaryKey"`
	RunID         string `gorm:"size:64;not null;uniqueIndex"`
	DesignUUID    string `gorm:"column:design_uuid;size:255;not null;default:''"`
	PayloadDigest string `gorm:"size:64;not null;default:''"`
	Status        string `gorm:"size:20;not null"`
	ErrorCode     string `gorm:"size:64;not null;default:''"`
	ErrorMessage  string `gorm:"type:text;not null;default:''"`
	Created       int    `gorm:"not null;default:0"`
	Updated       int    `gorm:"not null;default:0"`
	StartedAt     time.Time
	FinishedAt    time.Time
}

func (syncRunModel) TableName() string { return "sync_runs" }

type syncEventModel struct {
	RunID       string `gorm:"primaryKey;size:64"`
	Seq         int64  `gorm:"primaryKey;autoIncrement:false"`
	Kind        string `gorm:"size:40;not null"`
	EntityID    int64  `gorm:"not null"`
	ExternalKey string `gorm:"size:512;not null;default:''"`
	Action      string `gorm:"size:20;not null"`
}

func (syncEventModel) TableName() string { return "sync_events" }

func allModels() []any {
	return []any{
		&userModel{},
		&componentModel{},
		&componentRevisionModel{},
		&assemblyEdgeModel{},
		&designModel{},
		&designRevisionModel{},
		&syncRunModel{},
		&syncEventModel{},
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func (m userModel) toDomain() domain.User {
	return domain.User{
		ID:        m.ID,
		UUID:      m.UUID,
		Name:      m.Name,
		Email:     m.Email,
		Role:      m.Role,
		Active:    m.Active,
		CreatedAt: timeOf(m.CreatedOn),
	}
}

func (m componentModel) toDomain() domain.Component {
	return domain.Component{
		ID:           m.ID,
		UUID:         m.UUID,
		Name:         m.Name,
		CreationDate: timeOf(m.CreationDate),
		CreatedByID:  m.CreatedBy,
	}
}

func (m componentRevisionModel) toDomain() domain.ComponentRevision {
	return domain.ComponentRevision{
		ID:                       m.ID,
		ComponentID:              m.ComponentID,
		VersionNumber:            m.VersionNumber,
		RevisionDate:             timeOf(m.RevisionDate),
		ModifiedByID:             m.ModifiedBy,
		DesignRevisionID:         m.DesignRevisionID,
		ExternalDesignRevisionID: m.ExternalDesignRevisionID,
	}
}

func (m assemblyEdgeModel) toDomain() domain.AssemblyEdge {
	return domain.AssemblyEdge{
		ID:               m.ID,
		ParentRevisionID: m.ParentRevisionID,
		ChildRevisionID:  m.ChildRevisionID,
		Quantity:         m.Quantity,
		Sequence:         m.Sequence,
	}
}

func (m designModel) toDomain() domain.Design {
	return domain.Design{
		ID:           m.ID,
		UUID:         m.UUID,
		Name:         m.Name,
		CreationDate: timeOf(m.CreationDate),
		CreatedByID:  m.CreatedBy,
	}
}

func (m designRevisionModel) toDomain() domain.DesignRevision {
	return domain.DesignRevision{
		ID:            m.ID,
		DesignID:      m.DesignID,
		UUID:          m.UUID,
		VersionNumber: m.VersionNumber,
		RevisionDate:  timeOf(m.RevisionDate),
		ModifiedByID:  m.ModifiedBy,
	}
}

func (m syncRunModel) toDomain() domain.SyncRun {
	return domain.SyncRun{
		ID:            m.RunID,
		DesignUUID:    m.DesignUUID,
		PayloadDigest: m.PayloadDigest,
		Status:        domain.RunStatus(m.Status),
		ErrorCode:     m.ErrorCode,
		ErrorMessage:  m.ErrorMessage,
		Created:       m.Created,
		Updated:       m.Updated,
		StartedAt:     m.StartedAt.UTC(),
		FinishedAt:    m.FinishedAt.UTC(),
	}
}

func (m syncEventModel) toDomain() domain.SyncEvent {
	return domain.SyncEvent{
		RunID:       m.RunID,
		Seq:         m.Seq,
		Kind:        domain.EntityKind(m.Kind),
		EntityID:    m.EntityID,
		ExternalKey: m.ExternalKey,
		Action:      domain.EventAction(m.Action),
	}
}
