package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/fusionsync/internal/domain"
)

// sqlTx implements domain.Tx over one SQLite transaction.
type sqlTx struct {
	tx *sql.Tx
}

var _ domain.Tx = (*sqlTx)(nil)

const (
	userColumns      = `id, uuid, name, email, role, active, created_at`
	componentColumns = `id, uuid, name, creation_date, created_by`
	designColumns    = `id, uuid, name, creation_date, created_by`
	revisionColumns  = `id, component_id, version_number, revision_date, modified_by,
		design_revision_id, external_design_revision_id`
	designRevisionColumns = `id, design_id, uuid, version_number, revision_date, modified_by`
	edgeColumns           = `id, parent_revision_id, child_revision_id, quantity, sequence`
)

func (t *sqlTx) FindUserByUUID(ctx context.Context, uuid string) (domain.User, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE uuid = ?`, uuid)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, notFoundErr("user", uuid, err)
	}
	return u, nil
}

func (t *sqlTx) FindComponentByUUID(ctx context.Context, uuid string) (domain.Component, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+componentColumns+` FROM components WHERE uuid = ?`, uuid)
	c, err := scanComponent(row)
	if err != nil {
		return domain.Component{}, notFoundErr("component", uuid, err)
	}
	return c, nil
}

func (t *sqlTx) GetComponent(ctx context.Context, id int64) (domain.Component, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+componentColumns+` FROM components WHERE id = ?`, id)
	c, err := scanComponent(row)
	if err != nil {
		return domain.Component{}, notFoundErr("component", id, err)
	}
	return c, nil
}

func (t *sqlTx) FindComponentRevision(ctx context.Context, componentID int64, versionNumber int) (domain.ComponentRevision, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+revisionColumns+`
		FROM component_revisions
		WHERE component_id = ? AND version_number = ?
	`, componentID, versionNumber)
	r, err := scanRevision(row)
	if err != nil {
		return domain.ComponentRevision{}, notFoundErr("component revision", fmt.Sprintf("%d@%d", componentID, versionNumber), err)
	}
	return r, nil
}

func (t *sqlTx) GetComponentRevision(ctx context.Context, id int64) (domain.ComponentRevision, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+revisionColumns+` FROM component_revisions WHERE id = ?`, id)
	r, err := scanRevision(row)
	if err != nil {
		return domain.ComponentRevision{}, notFoundErr("component revision", id, err)
	}
	return r, nil
}

func (t *sqlTx) LatestComponentRevision(ctx context.Context, componentID int64) (domain.ComponentRevision, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+revisionColumns+`
		FROM component_revisions
		WHERE component_id = ?
		ORDER BY version_number DESC
		LIMIT 1
	`, componentID)
	r, err := scanRevision(row)
	if err != nil {
		return domain.ComponentRevision{}, notFoundErr("component revision of", componentID, err)
	}
	return r, nil
}

func (t *sqlTx) CountComponentRevisions(ctx context.Context, componentID int64, versionNumber int) (int, error) {
	query := `SELECT COUNT(*) FROM component_revisions WHERE component_id = ?`
	args := []any{componentID}
	if versionNumber > 0 {
		query += ` AND version_number = ?`
		args = append(args, versionNumber)
	}

	var n int
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count component revisions: %w", err)
	}
	return n, nil
}

func (t *sqlTx) FindEdge(ctx context.Context, parentRevisionID, childRevisionID int64) (domain.AssemblyEdge, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+edgeColumns+`
		FROM assembly_edges
		WHERE parent_revision_id = ? AND child_revision_id = ?
	`, parentRevisionID, childRevisionID)
	e, err := scanEdge(row)
	if err != nil {
		return domain.AssemblyEdge{}, notFoundErr("assembly edge", fmt.Sprintf("%d->%d", parentRevisionID, childRevisionID), err)
	}
	return e, nil
}

func (t *sqlTx) ChildEdges(ctx context.Context, parentRevisionID int64) ([]domain.AssemblyEdge, error) {
	return t.queryEdges(ctx, `
		SELECT `+edgeColumns+`
		FROM assembly_edges
		WHERE parent_revision_id = ?
		ORDER BY sequence ASC, id ASC
	`, parentRevisionID)
}

func (t *sqlTx) ParentEdges(ctx context.Context, childRevisionID int64) ([]domain.AssemblyEdge, error) {
	return t.queryEdges(ctx, `
		SELECT `+edgeColumns+`
		FROM assembly_edges
		WHERE child_revision_id = ?
		ORDER BY id ASC
	`, childRevisionID)
}

func (t *sqlTx) queryEdges(ctx context.Context, query string, arg int64) ([]domain.AssemblyEdge, error) {
	rows, err := t.tx.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query assembly edges: %w", err)
	}
	defer rows.Close()

	var edges []domain.AssemblyEdge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assembly edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assembly edges: %w", err)
	}
	return edges, nil
}

func (t *sqlTx) FindDesignByUUID(ctx context.Context, uuid string) (domain.Design, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+designColumns+` FROM designs WHERE uuid = ?`, uuid)
	d, err := scanDesign(row)
	if err != nil {
		return domain.Design{}, notFoundErr("design", uuid, err)
	}
	return d, nil
}

func (t *sqlTx) GetDesign(ctx context.Context, id int64) (domain.Design, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+designColumns+` FROM designs WHERE id = ?`, id)
	d, err := scanDesign(row)
	if err != nil {
		return domain.Design{}, notFoundErr("design", id, err)
	}
	return d, nil
}

func (t *sqlTx) FindDesignRevision(ctx context.Context, designID int64, versionNumber int) (domain.DesignRevision, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+designRevisionColumns+`
		FROM design_revisions
		WHERE design_id = ? AND version_number = ?
	`, designID, versionNumber)
	r, err := scanDesignRevision(row)
	if err != nil {
		return domain.DesignRevision{}, notFoundErr("design revision", fmt.Sprintf("%d@%d", designID, versionNumber), err)
	}
	return r, nil
}

func (t *sqlTx) FindDesignRevisionByUUID(ctx context.Context, uuid string) (domain.DesignRevision, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+designRevisionColumns+` FROM design_revisions WHERE uuid = ?`, uuid)
	r, err := scanDesignRevision(row)
	if err != nil {
		return domain.DesignRevision{}, notFoundErr("design revision", uuid, err)
	}
	return r, nil
}

func (t *sqlTx) GetDesignRevision(ctx context.Context, id int64) (domain.DesignRevision, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+designRevisionColumns+` FROM design_revisions WHERE id = ?`, id)
	r, err := scanDesignRevision(row)
	if err != nil {
		return domain.DesignRevision{}, notFoundErr("design revision", id, err)
	}
	return r, nil
}

func (t *sqlTx) CountDesignRevisions(ctx context.Context, designID int64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM design_revisions WHERE design_id = ?`, designID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count design revisions: %w", err)
	}
	return n, nil
}

func (t *sqlTx) Counts(ctx context.Context) (domain.Counts, error) {
	var c domain.Counts
	err := t.tx.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM components),
			(SELECT COUNT(*) FROM component_revisions),
			(SELECT COUNT(*) FROM assembly_edges),
			(SELECT COUNT(*) FROM designs),
			(SELECT COUNT(*) FROM design_revisions)
	`).Scan(
		&c.Users,
		&c.Components,
		&c.ComponentRevisions,
		&c.AssemblyEdges,
		&c.Designs,
		&c.DesignRevisions,
	)
	if err != nil {
		return domain.Counts{}, fmt.Errorf("count records: %w", err)
	}
	return c, nil
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u         domain.User
		createdAt sql.NullString
	)
	if err := row.Scan(&u.ID, &u.UUID, &u.Name, &u.Email, &u.Role, &u.Active, &createdAt); err != nil {
		return domain.User{}, err
	}
	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func scanComponent(row rowScanner) (domain.Component, error) {
	var (
		c         domain.Component
		created   sql.NullString
		createdBy sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.UUID, &c.Name, &created, &createdBy); err != nil {
		return domain.Component{}, err
	}
	var err error
	if c.CreationDate, err = parseTime(created); err != nil {
		return domain.Component{}, err
	}
	c.CreatedByID = idPtr(createdBy)
	return c, nil
}

func scanDesign(row rowScanner) (domain.Design, error) {
	var (
		d         domain.Design
		created   sql.NullString
		createdBy sql.NullInt64
	)
	if err := row.Scan(&d.ID, &d.UUID, &d.Name, &created, &createdBy); err != nil {
		return domain.Design{}, err
	}
	var err error
	if d.CreationDate, err = parseTime(created); err != nil {
		return domain.Design{}, err
	}
	d.CreatedByID = idPtr(createdBy)
	return d, nil
}

func scanRevision(row rowScanner) (domain.ComponentRevision, error) {
	var (
		r          domain.ComponentRevision
		date       sql.NullString
		modifiedBy sql.NullInt64
		designRev  sql.NullInt64
		external   sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.ComponentID, &r.VersionNumber, &date, &modifiedBy, &designRev, &external); err != nil {
		return domain.ComponentRevision{}, err
	}
	var err error
	if r.RevisionDate, err = parseTime(date); err != nil {
		return domain.ComponentRevision{}, err
	}
	r.ModifiedByID = idPtr(modifiedBy)
	r.DesignRevisionID = idPtr(designRev)
	r.ExternalDesignRevisionID = idPtr(external)
	return r, nil
}

func scanDesignRevision(row rowScanner) (domain.DesignRevision, error) {
	var (
		r          domain.DesignRevision
		date       sql.NullString
		modifiedBy sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.DesignID, &r.UUID, &r.VersionNumber, &date, &modifiedBy); err != nil {
		return domain.DesignRevision{}, err
	}
	var err error
	if r.RevisionDate, err = parseTime(date); err != nil {
		return domain.DesignRevision{}, err
	}
	r.ModifiedByID = idPtr(modifiedBy)
	return r, nil
}

func scanEdge(row rowScanner) (domain.AssemblyEdge, error) {
	var e domain.AssemblyEdge
	err := row.Scan(&e.ID, &e.ParentRevisionID, &e.ChildRevisionID, &e.Quantity, &e.Sequence)
	return e, err
}
