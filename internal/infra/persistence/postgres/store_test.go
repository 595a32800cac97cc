package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"lifelab/internal/infra/persistence/postgres/testutil"
	"lifelab/pkg/domain"
)

func newStubbedStore(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		return db, nil
	})
	t.Cleanup(restore)
	store, err := NewStore("postgres://stub/lifelab", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, conn
}

func TestNewStoreEnsuresStateTable(t *testing.T) {
	_, conn := newStubbedStore(t)

	found := false
	for _, q := range conn.Execs {
		if q == `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)` {
			found = true
		}
	}
	if !found {
		t.Fatalf("state table DDL not executed, got %v", conn.Execs)
	}
}

func TestRunInTransactionSnapshotsState(t *testing.T) {
	store, conn := newStubbedStore(t)

	var lab domain.Lab
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		created, err := tx.CreateLab(domain.Lab{Name: "chemistry"})
		lab = created
		return err
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}

	payload, ok := conn.State["labs"]
	if !ok {
		t.Fatalf("labs bucket not persisted, buckets: %v", keys(conn.State))
	}
	var labs map[int64]domain.Lab
	if err := json.Unmarshal(payload, &labs); err != nil {
		t.Fatalf("decode labs payload: %v", err)
	}
	if got, ok := labs[lab.ID]; !ok || got.Name != "chemistry" {
		t.Fatalf("unexpected persisted labs: %+v", labs)
	}
	if _, ok := conn.State["sequence"]; !ok {
		t.Fatal("sequence bucket not persisted")
	}
}

func TestNewStoreHydratesFromSnapshot(t *testing.T) {
	first, _ := newStubbedStore(t)

	var lab domain.Lab
	var issue domain.Issue
	if _, err := first.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		created, err := tx.CreateLab(domain.Lab{Name: "chemistry"})
		if err != nil {
			return err
		}
		lab = created
		issue, err = tx.CreateIssue(lab.ID, domain.IssueDraft{Title: "restored"})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// A second store over the same stub connection sees the snapshot.
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) {
		return first.DB(), nil
	})
	defer restore()

	second, err := NewStore("postgres://stub/lifelab", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := second.GetIssue(lab.ID, issue.Number)
	if !ok {
		t.Fatal("issue lost across hydration")
	}
	if got.Title != "restored" {
		t.Fatalf("unexpected issue: %+v", got)
	}
}

func TestPersistFailureSurfaces(t *testing.T) {
	store, conn := newStubbedStore(t)
	conn.FailBegin = true

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateLab(domain.Lab{Name: "unlucky"})
		return err
	})
	if err == nil {
		t.Fatal("expected begin failure to surface")
	}
}

func TestNewStorePingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) {
		return db, nil
	})
	defer restore()

	if _, err := NewStore("postgres://stub/lifelab", domain.NewRulesEngine()); err == nil {
		t.Fatal("expected ping failure")
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
