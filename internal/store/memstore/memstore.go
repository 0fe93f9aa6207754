// Package memstore provides an in-memory domain.Store.
//
// A transaction works on a clone of the committed state and swaps it in on
// success, so a failed sync leaves no trace. One mutex serializes
// transactions; the store suits tests and short-lived CLI runs, not large
// catalogs.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/fusionsync/internal/domain"
)

type revisionKey struct {
	componentID int64
	number      int
}

type edgeKey struct {
	parent int64
	child  int64
}

type designRevisionKey struct {
	designID int64
	number   int
}

type ids struct {
	users, components, revisions, edges, designs, designRevisions int64
}

type state struct {
	next ids

	users        map[int64]domain.User
	userByUUID   map[string]int64
	components   map[int64]domain.Component
	compByUUID   map[string]int64
	revisions    map[int64]domain.ComponentRevision
	revByKey     map[revisionKey]int64
	edges        map[int64]domain.AssemblyEdge
	edgeByKey    map[edgeKey]int64
	designs      map[int64]domain.Design
	designByUUID map[string]int64
	designRevs   map[int64]domain.DesignRevision
	dRevByKey    map[designRevisionKey]int64
	dRevByUUID   map[string]int64
	events       []domain.SyncEvent
}

func newState() state {
	return state{
		users:        map[int64]domain.User{},
		userByUUID:   map[string]int64{},
		components:   map[int64]domain.Component{},
		compByUUID:   map[string]int64{},
		revisions:    map[int64]domain.ComponentRevision{},
		revByKey:     map[revisionKey]int64{},
		edges:        map[int64]domain.AssemblyEdge{},
		edgeByKey:    map[edgeKey]int64{},
		designs:      map[int64]domain.Design{},
		designByUUID: map[string]int64{},
		designRevs:   map[int64]domain.DesignRevision{},
		dRevByKey:    map[designRevisionKey]int64{},
		dRevByUUID:   map[string]int64{},
	}
}

func (s state) clone() state {
	return state{
		next:         s.next,
		users:        cloneMap(s.users, identity[domain.User]),
		userByUUID:   cloneMap(s.userByUUID, identity[int64]),
		components:   cloneMap(s.components, cloneComponent),
		compByUUID:   cloneMap(s.compByUUID, identity[int64]),
		revisions:    cloneMap(s.revisions, cloneRevision),
		revByKey:     cloneMap(s.revByKey, identity[int64]),
		edges:        cloneMap(s.edges, identity[domain.AssemblyEdge]),
		edgeByKey:    cloneMap(s.edgeByKey, identity[int64]),
		designs:      cloneMap(s.designs, cloneDesign),
		designByUUID: cloneMap(s.designByUUID, identity[int64]),
		designRevs:   cloneMap(s.designRevs, cloneDesignRevision),
		dRevByKey:    cloneMap(s.dRevByKey, identity[int64]),
		dRevByUUID:   cloneMap(s.dRevByUUID, identity[int64]),
		events:       slices.Clone(s.events),
	}
}

// Store is an in-memory domain.Store.
type Store struct {
	mu    sync.RWMutex
	state state
	runs  []domain.SyncRun
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

var _ domain.Store = (*Store)(nil)

// WithinTx runs fn against a clone of the state and commits it if fn
// returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &txn{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// RecordRun appends a run.
func (s *Store) RecordRun(_ context.Context, run domain.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(_ context.Context, limit int) ([]domain.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SyncRun, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		out = append(out, s.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListEvents returns the committed events of a run in seq order.
func (s *Store) ListEvents(_ context.Context, runID string) ([]domain.SyncEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.SyncEvent
	for _, ev := range s.state.events {
		if ev.RunID == runID {
			out = append(out, ev)
		}
	}
	slices.SortFunc(out, func(a, b domain.SyncEvent) int { return cmp.Compare(a.Seq, b.Seq) })
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

type txn struct {
	state state
}

func notFound(kind string, key any) error {
	return fmt.Errorf("%s %v: %w", kind, key, domain.ErrNotFound)
}

func conflict(kind string, key any) error {
	return fmt.Errorf("%s %v: %w", kind, key, domain.ErrConflict)
}

func (t *txn) FindUserByUUID(_ context.Context, uuid string) (domain.User, error) {
	id, ok := t.state.userByUUID[uuid]
	if !ok {
		return domain.User{}, notFound("user", uuid)
	}
	return t.state.users[id], nil
}

func (t *txn) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	if _, ok := t.state.userByUUID[u.UUID]; ok {
		return t.FindUserByUUID(ctx, u.UUID)
	}
	t.state.next.users++
	u.ID = t.state.next.users
	t.state.users[u.ID] = u
	t.state.userByUUID[u.UUID] = u.ID
	return u, nil
}

func (t *txn) FindComponentByUUID(ctx context.Context, uuid string) (domain.Component, error) {
	id, ok := t.state.compByUUID[uuid]
	if !ok {
		return domain.Component{}, notFound("component", uuid)
	}
	return t.GetComponent(ctx, id)
}

func (t *txn) GetComponent(_ context.Context, id int64) (domain.Component, error) {
	c, ok := t.state.components[id]
	if !ok {
		return domain.Component{}, notFound("component", id)
	}
	return cloneComponent(c), nil
}

func (t *txn) CreateComponent(ctx context.Context, c domain.Component) (domain.Component, error) {
	if _, ok := t.state.compByUUID[c.UUID]; ok {
		return t.FindComponentByUUID(ctx, c.UUID)
	}
	t.state.next.components++
	c.ID = t.state.next.components
	t.state.components[c.ID] = cloneComponent(c)
	t.state.compByUUID[c.UUID] = c.ID
	return c, nil
}

func (t *txn) UpdateComponent(_ context.Context, c domain.Component) error {
	if _, ok := t.state.components[c.ID]; !ok {
		return notFound("component", c.ID)
	}
	t.state.components[c.ID] = cloneComponent(c)
	return nil
}

func (t *txn) FindComponentRevision(ctx context.Context, componentID int64, number int) (domain.ComponentRevision, error) {
	id, ok := t.state.revByKey[revisionKey{componentID, number}]
	if !ok {
		return domain.ComponentRevision{}, notFound("component revision", fmt.Sprintf("%d@%d", componentID, number))
	}
	return t.GetComponentRevision(ctx, id)
}

func (t *txn) GetComponentRevision(_ context.Context, id int64) (domain.ComponentRevision, error) {
	r, ok := t.state.revisions[id]
	if !ok {
		return domain.ComponentRevision{}, notFound("component revision", id)
	}
	return cloneRevision(r), nil
}

func (t *txn) LatestComponentRevision(_ context.Context, componentID int64) (domain.ComponentRevision, error) {
	var (
		latest domain.ComponentRevision
		found  bool
	)
	for _, r := range t.state.revisions {
		if r.ComponentID != componentID {
			continue
		}
		if !found || r.VersionNumber > latest.VersionNumber {
			latest, found = r, true
		}
	}
	if !found {
		return domain.ComponentRevision{}, notFound("component revision of", componentID)
	}
	return cloneRevision(latest), nil
}

func (t *txn) CreateComponentRevision(_ context.Context, r domain.ComponentRevision) (domain.ComponentRevision, error) {
	key := revisionKey{r.ComponentID, r.VersionNumber}
	if _, ok := t.state.revByKey[key]; ok {
		return domain.ComponentRevision{}, conflict("component revision", key)
	}
	if _, ok := t.state.components[r.ComponentID]; !ok {
		return domain.ComponentRevision{}, notFound("component", r.ComponentID)
	}
	t.state.next.revisions++
	r.ID = t.state.next.revisions
	t.state.revisions[r.ID] = cloneRevision(r)
	t.state.revByKey[key] = r.ID
	return r, nil
}

func (t *txn) UpdateComponentRevision(_ context.Context, r domain.ComponentRevision) error {
	if _, ok := t.state.revisions[r.ID]; !ok {
		return notFound("component revision", r.ID)
	}
	t.state.revisions[r.ID] = cloneRevision(r)
	return nil
}

func (t *txn) CountComponentRevisions(_ context.Context, componentID int64, number int) (int, error) {
	n := 0
	for _, r := range t.state.revisions {
		if r.ComponentID == componentID && (number <= 0 || r.VersionNumber == number) {
			n++
		}
	}
	return n, nil
}

func (t *txn) FindEdge(_ context.Context, parent, child int64) (domain.AssemblyEdge, error) {
	id, ok := t.state.edgeByKey[edgeKey{parent, child}]
	if !ok {
		return domain.AssemblyEdge{}, notFound("assembly edge", fmt.Sprintf("%d->%d", parent, child))
	}
	return t.state.edges[id], nil
}

func (t *txn) CreateEdge(_ context.Context, e domain.AssemblyEdge) (domain.AssemblyEdge, error) {
	key := edgeKey{e.ParentRevisionID, e.ChildRevisionID}
	if _, ok := t.state.edgeByKey[key]; ok {
		return domain.AssemblyEdge{}, conflict("assembly edge", key)
	}
	t.state.next.edges++
	e.ID = t.state.next.edges
	t.state.edges[e.ID] = e
	t.state.edgeByKey[key] = e.ID
	return e, nil
}

func (t *txn) UpdateEdge(_ context.Context, e domain.AssemblyEdge) error {
	if _, ok := t.state.edges[e.ID]; !ok {
		return notFound("assembly edge", e.ID)
	}
	t.state.edges[e.ID] = e
	return nil
}

func (t *txn) ChildEdges(_ context.Context, parent int64) ([]domain.AssemblyEdge, error) {
	var out []domain.AssemblyEdge
	for _, e := range t.state.edges {
		if e.ParentRevisionID == parent {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b domain.AssemblyEdge) int {
		if a.Sequence != b.Sequence {
			return a.Sequence - b.Sequence
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (t *txn) ParentEdges(_ context.Context, child int64) ([]domain.AssemblyEdge, error) {
	var out []domain.AssemblyEdge
	for _, e := range t.state.edges {
		if e.ChildRevisionID == child {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b domain.AssemblyEdge) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *txn) FindDesignByUUID(ctx context.Context, uuid string) (domain.Design, error) {
	id, ok := t.state.designByUUID[uuid]
	if !ok {
		return domain.Design{}, notFound("design", uuid)
	}
	return t.GetDesign(ctx, id)
}

func (t *txn) GetDesign(_ context.Context, id int64) (domain.Design, error) {
	d, ok := t.state.designs[id]
	if !ok {
		return domain.Design{}, notFound("design", id)
	}
	return cloneDesign(d), nil
}

func (t *txn) CreateDesign(ctx context.Context, d domain.Design) (domain.Design, error) {
	if _, ok := t.state.designByUUID[d.UUID]; ok {
		return t.FindDesignByUUID(ctx, d.UUID)
	}
	t.state.next.designs++
	d.ID = t.state.next.designs
	t.state.designs[d.ID] = cloneDesign(d)
	t.state.designByUUID[d.UUID] = d.ID
	return d, nil
}

func (t *txn) UpdateDesign(_ context.Context, d domain.Design) error {
	if _, ok := t.state.designs[d.ID]; !ok {
		return notFound("design", d.ID)
	}
	t.state.designs[d.ID] = cloneDesign(d)
	return nil
}

func (t *txn) FindDesignRevision(ctx context.Context, designID int64, number int) (domain.DesignRevision, error) {
	id, ok := t.state.dRevByKey[designRevisionKey{designID, number}]
	if !ok {
		return domain.DesignRevision{}, notFound("design revision", fmt.Sprintf("%d@%d", designID, number))
	}
	return t.GetDesignRevision(ctx, id)
}

func (t *txn) FindDesignRevisionByUUID(ctx context.Context, uuid string) (domain.DesignRevision, error) {
	id, ok := t.state.dRevByUUID[uuid]
	if !ok {
		return domain.DesignRevision{}, notFound("design revision", uuid)
	}
	return t.GetDesignRevision(ctx, id)
}

func (t *txn) GetDesignRevision(_ context.Context, id int64) (domain.DesignRevision, error) {
	r, ok := t.state.designRevs[id]
	if !ok {
		return domain.DesignRevision{}, notFound("design revision", id)
	}
	return cloneDesignRevision(r), nil
}

func (t *txn) CreateDesignRevision(_ context.Context, r domain.DesignRevision) (domain.DesignRevision, error) {
	key := designRevisionKey{r.DesignID, r.VersionNumber}
	if _, ok := t.state.dRevByKey[key]; ok {
		return domain.DesignRevision{}, conflict("design revision", key)
	}
	if _, ok := t.state.dRevByUUID[r.UUID]; ok {
		return domain.DesignRevision{}, conflict("design revision", r.UUID)
	}
	t.state.next.designRevisions++
	r.ID = t.state.next.designRevisions
	t.state.designRevs[r.ID] = cloneDesignRevision(r)
	t.state.dRevByKey[key] = r.ID
	t.state.dRevByUUID[r.UUID] = r.ID
	return r, nil
}

func (t *txn) UpdateDesignRevision(_ context.Context, r domain.DesignRevision) error {
	if _, ok := t.state.designRevs[r.ID]; !ok {
		return notFound("design revision", r.ID)
	}
	t.state.designRevs[r.ID] = cloneDesignRevision(r)
	return nil
}

func (t *txn) CountDesignRevisions(_ context.Context, designID int64) (int, error) {
	n := 0
	for _, r := range t.state.designRevs {
		if r.DesignID == designID {
			n++
		}
	}
	return n, nil
}

func (t *txn) AppendEvent(_ context.Context, ev domain.SyncEvent) error {
	t.state.events = append(t.state.events, ev)
	return nil
}

func (t *txn) Counts(_ context.Context) (domain.Counts, error) {
	return domain.Counts{
		Users:              len(t.state.users),
		Components:         len(t.state.components),
		ComponentRevisions: len(t.state.revisions),
		AssemblyEdges:      len(t.state.edges),
		Designs:            len(t.state.designs),
		DesignRevisions:    len(t.state.designRevs),
	}, nil
}

func cloneMap[K comparable, V any](m map[K]V, cloneValue func(V) V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func identity[V any](v V) V { return v }

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneComponent(c domain.Component) domain.Component {
	c.CreatedByID = cloneID(c.CreatedByID)
	return c
}

func cloneRevision(r domain.ComponentRevision) domain.ComponentRevision {
	r.ModifiedByID = cloneID(r.ModifiedByID)
	r.DesignRevisionID = cloneID(r.DesignRevisionID)
	r.ExternalDesignRevisionID = cloneID(r.ExternalDesignRevisionID)
	return r
}

func cloneDesign(d domain.Design) domain.Design {
	d.CreatedByID = cloneID(d.CreatedByID)
	return d
}

func cloneDesignRevision(r domain.DesignRevision) domain.DesignRevision {
	r.ModifiedByID = cloneID(r.ModifiedByID)
	return r
}
