package gormstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/roach88/fusionsync/internal/domain"
)

// gormTx implements domain.Tx over the *gorm.DB of one Transaction.
type gormTx struct {
	db *gorm.DB
}

var _ domain.Tx = (*gormTx)(nil)

// onUUIDConflict turns an insert into insert-or-ignore on the uuid column.
var onUUIDConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "uuid"}},
	DoNothing: true,
}

// first loads one row matching query into dest.
func (t *gormTx) first(ctx context.Context, dest any, kind string, key any, query string, args ...any) error {
	err := t.db.WithContext(ctx).Where(query, args...).Take(dest).Error
	if err != nil {
		return fmt.Errorf("%s %v: %w", kind, key, translate(err))
	}
	return nil
}

// update writes columns to the row with id and reports ErrNotFound when no
// row matched.
func (t *gormTx) update(ctx context.Context, model any, kind string, id int64, columns map[string]any) error {
	res := t.db.WithContext(ctx).Model(model).Where("id = ?", id).Updates(columns)
	if res.Error != nil {
		return fmt.Errorf("update %s %d: %w", kind, id, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, domain.ErrNotFound)
	}
	return nil
}

func (t *gormTx) FindUserByUUID(ctx context.Context, uuid string) (domain.User, error) {
	var m userModel
	if err := t.first(ctx, &m, "user", uuid, "uuid = ?", uuid); err != nil {
		return domain.User{}, err
	}
	return m.toDomain(), nil
}

func (t *gormTx) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	m := userModel{
		UUID:      u.UUID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		Active:    u.Active,
		CreatedOn: timePtr(u.CreatedAt),
	}
	res := t.db.WithContext(ctx).Clauses(onUUIDConflict).Create(&m)
	if res.Error != nil {
		return domain.User{}, fmt.Errorf("create user: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return t.FindUserByUUID(ctx, u.UUID)
	}
	return m.toDomain(), nil
}

func (t *gormTx) FindComponentByUUID(ctx context.Context, uuid string) (domain.Component, error) {
	var m componentModel
	if err := t.first(ctx, &m, "component", uuid, "uuid = ?", uuid); err != nil {
		return domain.Component{}, err
	}
	return m.toDomain(), nil
}

func (t *gormTx) GetComponent(ctx context.Context, id int64) (domain.Component, error) {
	var m componentModel
	if err := t.first(ctx, &m, "component", id, "id = ?", id); err != nil {
		return domain.Component{}, err
	}
	return m.toDomain(), nil
}

func (t *gormTx) CreateComponent(ctx context.Context, c domain.Component) (domain.Component, error) {
	m := componentModel{
		UUID:         c.UUID,
		Name:         c.Name,
		CreationDate: timePtr(c.CreationDate),
		CreatedBy:    c.CreatedByID,
	}
	res := t.db.WithContext(ctx).Clauses(onUUIDConflict).Create(&m)
	if res.Error != nil {
		return domain.Component{}, fmt.Errorf("create component: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return t.FindComponentByUUID(ctx, c.UUID)
	}
	return m.toDomain(), nil
}

func (t *gormTx) UpdateComponent(ctx context.Context, c domain.Component) error {
	return t.update(ctx, &componentModel{}, "component", c.ID, map[string]any{
		"name":          c.Name,
		"creation_date": timePtr(c.CreationDate),
		"created_by":    c.CreatedByID,
	})
}

func (t *gormTx) FindComponentRevision(ctx context.Context, componentID int64, versionNumber int) (domain.ComponentRevision, error) {
	var m componentRevisionModel
	key := fmt.Sprintf("%d@%d", componentID, versionNumber)
	if err := t.first(ctx, &m, "component revision", key, "component_id = ? AND version_number = ?", componentID, versionNumber); err != nil {
		return domain.ComponentRevision{}, err
	}
	return m.toDomain(), nil
}

func (t *gormTx) GetComponentRevision(ctx context.Context, id int64) (domain.ComponentRevision, error) {
	var m componentRevisionModel
	if err := t.first(ctx, &m, "component revision", id, "id = ?", id); err != nil {
		return domain.ComponentRevision{}, err
	}
	return m.toDomain(), nil
}

func (t *gormTx) LatestComponentRevision(ctx context.Context, componentID int64) (domain.ComponentRevision, error) {
	var m componentRevisionModel
	err := t.db.WithContext(ctx).
		Where("component_id = ?", componentID).
		Order("version_number DESC").
		Take(&m).Error
	if err != nil {
		return domain.ComponentRevision{}, fmt.Errorf("component revision of %d: %w", componentID, translate(err))
	}
	return m.toDomain(), nil
}

func (t *gormTx) CreateComponentRevision(ctx context.Context, r domain.ComponentRevision) (domain.ComponentRevision, error) {
	m := componentRevisionModel{
		ComponentID:              r.ComponentID,
		VersionNumber:            r.VersionNumber,
		RevisionDate:             timePtr(r.RevisionDate),
		ModifiedBy:               r.ModifiedByID,
		DesignRevisionID:         r.DesignRevisionID,
		ExternalDesignRevisionID: r.ExternalDesignRevisionID,
	}
	if err := t.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.ComponentRevision{}, fmt.Errorf("create component revision: %w", translate(err))
	}
	return m.toDomain(), nil
}

func (t *gormTx) UpdateComponentRevision(ctx context.Context, r domain.ComponentRevision) error {
	return t.update(ctx, &componentRevisionModel{}, "component revision", r.ID, map[string]any{
		"revision_date":               timePtr(r.RevisionDate),
		"modified_by":                 r.ModifiedByID,
		"design_revision_id":          r.DesignRevisionID,
		"external_design_revision_id": r.ExternalDesignRevisionID,
	})
}

func (t *gormTx) CountComponentRevisions(ctx context.Context, componentID int64, versionNumber int) (int, error) {
	q := t.db.WithContext(ctx).Model(&componentRevisionModel{}).Where("component_id = ?", componentID)
	if versionNumber > 0 {
		q = q.Where("version_number = ?", versionNumber)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count component revisions: %w", err)
	}
	return int(n), nil
}

func (t *gormTx) FindEdge(ctx context.Context, parentRevisionID, childRevisionID int64) (domain.AssemblyEdge, error) {
	var m assemblyEdgeModel
	key := fmt.Sprintf("%d->%d", parentRevisionID, childRevisionID)
	if err := t.first(ctx, &m, "assembly edge", key, "parent_revision_id = ? AND child_revision_id = ?", parentRevisionID, childRevisionID); err != nil {
		return domain.AssemblyEdge{}, err
	}
	return m.toDomain(), nil
}

func (t *gormTx) CreateEdge(ctx context.Context, e domain.AssemblyEdge) (domain.AssemblyEdge, error) {
	m := assemblyEdgeModel{
		ParentRevisionID: e.ParentRevisionID,
		ChildRevisionID:  e.ChildRevisionID,
		Quantity:         e.Quantity,
		Sequence:         e.Sequence,
	}
	if err := t.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.AssemblyEdge{}, fmt.Errorf("create assembly edge: %w", translate(err))
	}
	return m.toDomain(), nil
}

func (t *gormTx) UpdateEdge(ctx context.Context, e domain.AssemblyEdge) error {
	return t.update(ctx, &assemblyEdgeModel{}, "assembly edge", e.ID, map[string]any{
		"quantity": e.Quantity,
		"sequence": e.Sequence,
	})
}

func (t *gormTx) ChildEdges(ctx context.Context, parentRevisionID int64) ([]domain.AssemblyEdge, error) {
	return t.edges(ctx, "parent_revision_id = ?", parentRevisionID, "sequence ASC, id ASC")
}

func (t *gormTx) ParentEdges(ctx context.Context, childRevisionID int64) ([]domain.AssemblyEdge, error) {
	return t.edges(ctx, "child_revision_id = ?", childRevisionID, "id ASC")
}

func (t *gormTx) edges(ctx context.Context, where string, id int64, order string) ([]domain.AssemblyEdge, error) {
	var rows []assemblyEdgeModel
	if err := t.db.WithContext(ctx).Where(where, id).Order(order).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query assembly edges: %w", err)
	}
	var edges []domain.AssemblyEdge
	for _, m := range rows {
		edges = append(edges, m.toDomain())
	}
	return edges, nil
}

func (t *gormTx) FindDesignByUUID(ctx context.Context, uuid string) (domain.Design, error) {
	var m designModel
	if err := t.first(ctx, &m, "design", uuid, "uuid = ?", uuid); err != nil {
		return domain.Design{}, err
	}
	return m.toDomain(), nil
}

func (t *gormTx) GetDesign(ctx context.Context, id int64) (domain.Design, error) {
	var m designModel
	if err := t.first(ctx, &m, "design", id, "id = ?", id); err != nil {
		return domain.Design{}, err
	}
	return m.toDomain(), nil
}

func (t *gormTx) CreateDesign(ctx context.Context, d domain.Design) (domain.Design, error) {
	m := designModel{
		UUID:         d.UUID,
		Name:         d.Name,
		CreationDate: timePtr(d.CreationDate),
		CreatedBy:    d.CreatedByID,
	}
	res := t.db.WithContext(ctx).Clauses(onUUIDConflict).Create(&m)
	if res.Error != nil {
		return domain.Design{}, fmt.Errorf("create design: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return t.FindDesignByUUID(ctx, d.UUID)
	}
	return m.toDomain(), nil
}

func (t *gormTx) UpdateDesign(ctx context.Context, d domain.Design) error {
	return t.update(ctx, &designModel{}, "design", d.ID, map[string]any{
		"name":          d.Name,
		"creation_date": timePtr(d.CreationDate),
		"created_by":    d.CreatedByID,
	})
}

func (t *gormTx) FindDesignRevision(ctx context.Context, designID int64, versionNumber int) (domain.DesignRevision, error) {
	var m designRevisionModel
	key := fmt.Sprintf("%d@%d", designID, versionNumber)
	if err := t.first(ctx, &m, "design revision", key, "design_id = ? AND version_number = ?", designID, versionNumber); err != nil {
		return domain.DesignRevision{}, err
	}
	return m.toDomain(), nil
}

func (t *gormTx) FindDesignRevisionByUUID(ctx context.Context, uuid string) (domain.DesignRevision, error) {
	var m designRevisionModel
	if err := t.first(ctx, &m, "design revision", uuid, "uuid = ?", uuid); err != nil {
		return domain.DesignRevision{}, err
	}
	return m.toDomain(), nil
}

func (t *gormTx) GetDesignRevision(ctx context.Context, id int64) (domain.DesignRevision, error) {
	var m designRevisionModel
	if err := t.first(ctx, &m, "design revision", id, "id = ?", id); err != nil {
		return domain.DesignRevision{}, err
	}
	return m.toDomain(), nil
}

func (t *gormTx) CreateDesignRevision(ctx context.Context, r domain.DesignRevision) (domain.DesignRevision, error) {
	m := designRevisionModel{
		DesignID:      r.DesignID,
		UUID:          r.UUID,
		VersionNumber: r.VersionNumber,
		RevisionDate:  timePtr(r.RevisionDate),
		ModifiedBy:    r.ModifiedByID,
	}
	if err := t.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.DesignRevision{}, fmt.Errorf("create design revision: %w", translate(err))
	}
	return m.toDomain(), nil
}

func (t *gormTx) UpdateDesignRevision(ctx context.Context, r domain.DesignRevision) error {
	return t.update(ctx, &designRevisionModel{}, "design revision", r.ID, map[string]any{
		"revision_date": timePtr(r.RevisionDate),
		"modified_by":   r.ModifiedByID,
	})
}

func (t *gormTx) CountDesignRevisions(ctx context.Context, designID int64) (int, error) {
	var n int64
	err := t.db.WithContext(ctx).Model(&designRevisionModel{}).Where("design_id = ?", designID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count design revisions: %w", err)
	}
	return int(n), nil
}

func (t *gormTx) AppendEvent(ctx context.Context, ev domain.SyncEvent) error {
	m := syncEventModel{
		RunID:       ev.RunID,
		Seq:         ev.Seq,
		Kind:        string(ev.Kind),
		EntityID:    ev.EntityID,
		ExternalKey: ev.ExternalKey,
		Action:      string(ev.Action),
	}
	if err := t.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("append event: %w", translate(err))
	}
	return nil
}

func (t *gormTx) Counts(ctx context.Context) (domain.Counts, error) {
	var c domain.Counts
	targets := []struct {
		model any
		dest  *int
	}{
		{&userModel{}, &c.Users},
		{&componentModel{}, &c.Components},
		{&componentRevisionModel{}, &c.ComponentRevisions},
		{&assemblyEdgeModel{}, &c.AssemblyEdges},
		{&designModel{}, &c.Designs},
		{&designRevisionModel{}, &c.DesignRevisions},
	}
	for _, target := range targets {
		var n int64
		if err := t.db.WithContext(ctx).Model(target.model).Count(&n).Error; err != nil {
			return domain.Counts{}, fmt.Errorf("count records: %w", err)
		}
		*target.dest = int(n)
	}
	return c, nil
}
