package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/fusionsync/internal/domain"
)

// CreateUser inserts a user. Uses ON CONFLICT(uuid) DO NOTHING followed by a
// select, so a user committed concurrently is returned as is.
func (t *sqlTx) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO users (uuid, name, email, role, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO NOTHING
	`,
		u.UUID,
		u.Name,
		u.Email,
		u.Role,
		u.Active,
		timeValue(u.CreatedAt),
	)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return t.FindUserByUUID(ctx, u.UUID)
}

// CreateComponent inserts a component, insert-or-select like CreateUser.
func (t *sqlTx) CreateComponent(ctx context.Context, c domain.Component) (domain.Component, error) {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO components (uuid, name, creation_date, created_by)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(uuid) DO NOTHING
	`,
		c.UUID,
		c.Name,
		timeValue(c.CreationDate),
		idValue(c.CreatedByID),
	)
	if err != nil {
		return domain.Component{}, fmt.Errorf("create component: %w", err)
	}
	return t.FindComponentByUUID(ctx, c.UUID)
}

func (t *sqlTx) UpdateComponent(ctx context.Context, c domain.Component) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE components SET name = ?, creation_date = ?, created_by = ? WHERE id = ?
	`,
		c.Name,
		timeValue(c.CreationDate),
		idValue(c.CreatedByID),
		c.ID,
	)
	return checkUpdated(res, err, "component", c.ID)
}

// CreateComponentRevision inserts a revision. A (component, number) pair
// that is already taken fails with domain.ErrConflict.
func (t *sqlTx) CreateComponentRevision(ctx context.Context, r domain.ComponentRevision) (domain.ComponentRevision, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO component_revisions
		(component_id, version_number, revision_date, modified_by, design_revision_id, external_design_revision_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		r.ComponentID,
		r.VersionNumber,
		timeValue(r.RevisionDate),
		idValue(r.ModifiedByID),
		idValue(r.DesignRevisionID),
		idValue(r.ExternalDesignRevisionID),
	)
	if err != nil {
		return domain.ComponentRevision{}, fmt.Errorf("create component revision: %w", conflictErr(err))
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return domain.ComponentRevision{}, fmt.Errorf("create component revision: last insert id: %w", err)
	}
	return t.GetComponentRevision(ctx, r.ID)
}

func (t *sqlTx) UpdateComponentRevision(ctx context.Context, r domain.ComponentRevision) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE component_revisions
		SET revision_date = ?, modified_by = ?, design_revision_id = ?, external_design_revision_id = ?
		WHERE id = ?
	`,
		timeValue(r.RevisionDate),
		idValue(r.ModifiedByID),
		idValue(r.DesignRevisionID),
		idValue(r.ExternalDesignRevisionID),
		r.ID,
	)
	return checkUpdated(res, err, "component revision", r.ID)
}

// CreateEdge inserts an assembly edge. A (parent, child) pair that is
// already taken fails with domain.ErrConflict.
func (t *sqlTx) CreateEdge(ctx context.Context, e domain.AssemblyEdge) (domain.AssemblyEdge, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO assembly_edges (parent_revision_id, child_revision_id, quantity, sequence)
		VALUES (?, ?, ?, ?)
	`,
		e.ParentRevisionID,
		e.ChildRevisionID,
		e.Quantity,
		e.Sequence,
	)
	if err != nil {
		return domain.AssemblyEdge{}, fmt.Errorf("create assembly edge: %w", conflictErr(err))
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return domain.AssemblyEdge{}, fmt.Errorf("create assembly edge: last insert id: %w", err)
	}
	return e, nil
}

func (t *sqlTx) UpdateEdge(ctx context.Context, e domain.AssemblyEdge) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE assembly_edges SET quantity = ?, sequence = ? WHERE id = ?
	`, e.Quantity, e.Sequence, e.ID)
	return checkUpdated(res, err, "assembly edge", e.ID)
}

// CreateDesign inserts a design, insert-or-select like CreateUser.
func (t *sqlTx) CreateDesign(ctx context.Context, d domain.Design) (domain.Design, error) {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO designs (uuid, name, creation_date, created_by)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(uuid) DO NOTHING
	`,
		d.UUID,
		d.Name,
		timeValue(d.CreationDate),
		idValue(d.CreatedByID),
	)
	if err != nil {
		return domain.Design{}, fmt.Errorf("create design: %w", err)
	}
	return t.FindDesignByUUID(ctx, d.UUID)
}

func (t *sqlTx) UpdateDesign(ctx context.Context, d domain.Design) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE designs SET name = ?, creation_date = ?, created_by = ? WHERE id = ?
	`,
		d.Name,
		timeValue(d.CreationDate),
		idValue(d.CreatedByID),
		d.ID,
	)
	return checkUpdated(res, err, "design", d.ID)
}

// CreateDesignRevision inserts a design revision. A taken uuid or
// (design, number) pair fails with domain.ErrConflict.
func (t *sqlTx) CreateDesignRevision(ctx context.Context, r domain.DesignRevision) (domain.DesignRevision, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO design_revisions (design_id, uuid, version_number, revision_date, modified_by)
		VALUES (?, ?, ?, ?, ?)
	`,
		r.DesignID,
		r.UUID,
		r.VersionNumber,
		timeValue(r.RevisionDate),
		idValue(r.ModifiedByID),
	)
	if err != nil {
		return domain.DesignRevision{}, fmt.Errorf("create design revision: %w", conflictErr(err))
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return domain.DesignRevision{}, fmt.Errorf("create design revision: last insert id: %w", err)
	}
	return t.GetDesignRevision(ctx, r.ID)
}

func (t *sqlTx) UpdateDesignRevision(ctx context.Context, r domain.DesignRevision) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE design_revisions SET revision_date = ?, modified_by = ? WHERE id = ?
	`,
		timeValue(r.RevisionDate),
		idValue(r.ModifiedByID),
		r.ID,
	)
	return checkUpdated(res, err, "design revision", r.ID)
}

// AppendEvent writes one event of the running sync. Events commit or roll
// back with the records they describe.
func (t *sqlTx) AppendEvent(ctx context.Context, ev domain.SyncEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sync_events (run_id, seq, kind, entity_id, external_key, action)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		ev.RunID,
		ev.Seq,
		string(ev.Kind),
		ev.EntityID,
		ev.ExternalKey,
		string(ev.Action),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", conflictErr(err))
	}
	return nil
}

// checkUpdated turns an UPDATE that matched no row into domain.ErrNotFound.
func checkUpdated(res sql.Result, err error, kind string, id int64) error {
	if err != nil {
		return fmt.Errorf("update %s %d: %w", kind, id, conflictErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %d: rows affected: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, domain.ErrNotFound)
	}
	return nil
}
