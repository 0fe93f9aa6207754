package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.Store {
		path := filepath.Join(t.TempDir(), "conformance.db")
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		return s
	})
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{
		"users",
		"components",
		"component_revisions",
		"assembly_edges",
		"designs",
		"design_revisions",
		"sync_runs",
		"sync_events",
	}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

// Pragma tests

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name string
		want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		if err := s.verifyPragma(tt.name, tt.want); err != nil {
			t.Error(err)
		}
	}
}

// Schema tests

func TestSchema_ComponentRevisionColumns(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "component_revisions")
	for _, want := range []string{
		"id",
		"component_id",
		"version_number",
		"revision_date",
		"modified_by",
		"design_revision_id",
		"external_design_revision_id",
	} {
		if !contains(columns, want) {
			t.Errorf("component_revisions missing column %q, got %v", want, columns)
		}
	}
}

func TestConstraint_EdgeRejectsSelfLoopAndZeroQuantity(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx domain.Tx) error {
		comp, err := tx.CreateComponent(ctx, domain.Component{UUID: "c"})
		if err != nil {
			return err
		}
		rev, err := tx.CreateComponentRevision(ctx, domain.ComponentRevision{ComponentID: comp.ID, VersionNumber: 1})
		if err != nil {
			return err
		}
		other, err := tx.CreateComponentRevision(ctx, domain.ComponentRevision{ComponentID: comp.ID, VersionNumber: 2})
		if err != nil {
			return err
		}

		if _, err := tx.CreateEdge(ctx, domain.AssemblyEdge{ParentRevisionID: rev.ID, ChildRevisionID: rev.ID, Quantity: 1}); err == nil {
			t.Error("expected CHECK failure for self loop")
		} else if errors.Is(err, domain.ErrConflict) {
			t.Errorf("self loop reported as conflict: %v", err)
		}

		if _, err := tx.CreateEdge(ctx, domain.AssemblyEdge{ParentRevisionID: rev.ID, ChildRevisionID: other.ID, Quantity: 0}); err == nil {
			t.Error("expected CHECK failure for zero quantity")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithinTx() failed: %v", err)
	}
}

func TestConstraint_ForeignKeyRevisionToComponent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx domain.Tx) error {
		_, err := tx.CreateComponentRevision(ctx, domain.ComponentRevision{ComponentID: 999, VersionNumber: 1})
		return err
	})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}

// seedEdge stores parent@1 -> child@1 and returns the two revision ids.
func seedEdge(t *testing.T, s *Store) (parentID, childID int64) {
	t.Helper()
	ctx := context.Background()
	err := s.WithinTx(ctx, func(tx domain.Tx) error {
		var revs []domain.ComponentRevision
		for _, uuid := range []string{"parent", "child"} {
			comp, err := tx.CreateComponent(ctx, domain.Component{UUID: uuid})
			if err != nil {
				return err
			}
			rev, err := tx.CreateComponentRevision(ctx, domain.ComponentRevision{ComponentID: comp.ID, VersionNumber: 1})
			if err != nil {
				return err
			}
			revs = append(revs, rev)
		}
		parentID, childID = revs[0].ID, revs[1].ID
		_, err := tx.CreateEdge(ctx, domain.AssemblyEdge{ParentRevisionID: parentID, ChildRevisionID: childID, Quantity: 2, Sequence: 10})
		return err
	})
	if err != nil {
		t.Fatalf("WithinTx() failed: %v", err)
	}
	return parentID, childID
}

func countEdges(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM assembly_edges").Scan(&n); err != nil {
		t.Fatalf("count edges: %v", err)
	}
	return n
}

func TestConstraint_ChildRevisionDeleteRestricted(t *testing.T) {
	s := createTestStore(t)
	parentID, childID := seedEdge(t, s)

	if _, err := s.db.Exec("DELETE FROM component_revisions WHERE id = ?", childID); err == nil {
		t.Fatal("expected deleting a used child revision to fail")
	}
	if n := countEdges(t, s.db); n != 1 {
		t.Errorf("edges = %d after refused delete, want 1", n)
	}

	if _, err := s.db.Exec("DELETE FROM component_revisions WHERE id = ?", parentID); err != nil {
		t.Fatalf("deleting the parent revision failed: %v", err)
	}
	if n := countEdges(t, s.db); n != 0 {
		t.Errorf("edges = %d after parent delete, want 0", n)
	}
}

func TestTimes_ZeroStoredAsNull(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx domain.Tx) error {
		_, err := tx.CreateComponent(ctx, domain.Component{UUID: "undated"})
		return err
	})
	if err != nil {
		t.Fatalf("WithinTx() failed: %v", err)
	}

	var date sql.NullString
	if err := s.db.QueryRow("SELECT creation_date FROM components WHERE uuid = ?", "undated").Scan(&date); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if date.Valid {
		t.Errorf("creation_date = %q, want NULL", date.String)
	}
}

// Migration tests

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}

	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Apply schema but not migrations.
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("failed to set user_version: %v", err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d after migration", version, currentSchemaVersion)
	}

	indexes := getTableIndexes(t, s.db, "assembly_edges")
	if !contains(indexes, "idx_assembly_edges_child") {
		t.Errorf("expected idx_assembly_edges_child after migration, got indexes: %v", indexes)
	}
}

func TestMigration_UpgradeFromV1RestrictsChildDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// A v1 database whose edges cascade on child delete.
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	for _, stmt := range []string{
		schemaSQL,
		`DROP TABLE assembly_edges`,
		`CREATE TABLE assembly_edges (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			parent_revision_id INTEGER NOT NULL REFERENCES component_revisions(id) ON DELETE CASCADE,
			child_revision_id  INTEGER NOT NULL REFERENCES component_revisions(id) ON DELETE CASCADE,
			quantity           INTEGER NOT NULL CHECK (quantity >= 1),
			sequence           INTEGER NOT NULL DEFAULT 10,
			UNIQUE (parent_revision_id, child_revision_id),
			CHECK (parent_revision_id <> child_revision_id)
		)`,
		`CREATE INDEX idx_assembly_edges_child ON assembly_edges(child_revision_id)`,
		`INSERT INTO components (id, uuid) VALUES (1, 'parent'), (2, 'child')`,
		`INSERT INTO component_revisions (id, component_id, version_number) VALUES (1, 1, 1), (2, 2, 1)`,
		`INSERT INTO assembly_edges (id, parent_revision_id, child_revision_id, quantity, sequence) VALUES (7, 1, 2, 3, 20)`,
		`PRAGMA user_version = 1`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to build v1 database: %v", err)
		}
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var id, quantity, sequence int
	if err := s.db.QueryRow("SELECT id, quantity, sequence FROM assembly_edges").Scan(&id, &quantity, &sequence); err != nil {
		t.Fatalf("edge lost in migration: %v", err)
	}
	if id != 7 || quantity != 3 || sequence != 20 {
		t.Errorf("edge = (%d, %d, %d), want (7, 3, 20)", id, quantity, sequence)
	}
	if !contains(getTableIndexes(t, s.db, "assembly_edges"), "idx_assembly_edges_child") {
		t.Error("expected idx_assembly_edges_child after migration")
	}

	if _, err := s.db.Exec("DELETE FROM component_revisions WHERE id = 2"); err == nil {
		t.Fatal("expected deleting a used child revision to fail after migration")
	}
	if n := countEdges(t, s.db); n != 1 {
		t.Errorf("edges = %d, want 1", n)
	}
}
