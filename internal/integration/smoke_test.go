package integration

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lifelab/internal/adapters/archive"
	"lifelab/internal/blob"
	"lifelab/internal/core"
	"lifelab/pkg/domain"
)

// TestIntegrationSmoke exercises a minimal end-to-end write/read cycle for
// each supported in-process storage and blob adapter. It intentionally keeps
// scope tiny so it can act as a fast CI health check.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	storeVariants := []struct {
		name string
		open func(t *testing.T) domain.PersistentStore
	}{
		{
			name: "memory-store",
			open: func(_ *testing.T) domain.PersistentStore {
				return core.NewMemoryStore(core.NewDefaultRulesEngine())
			},
		},
		{
			name: "sqlite-store",
			open: func(t *testing.T) domain.PersistentStore {
				path := filepath.Join(t.TempDir(), "core.db")
				s, err := core.NewSQLiteStore(path, core.NewDefaultRulesEngine())
				if err != nil {
					t.Skipf("new sqlite store: %v", err)
				}
				return s
			},
		},
	}

	blobVariants := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{
			name: "memory-blob",
			open: func(_ *testing.T) blob.Store { return blob.NewMemory() },
		},
		{
			name: "filesystem-blob",
			open: func(t *testing.T) blob.Store {
				fs, err := blob.NewFilesystem(t.TempDir())
				if err != nil {
					t.Fatalf("new filesystem blob: %v", err)
				}
				return fs
			},
		},
		{
			name: "mock-s3-blob",
			open: func(_ *testing.T) blob.Store { return blob.NewMockS3ForTests() },
		},
	}

	for _, sv := range storeVariants {
		for _, bv := range blobVariants {
			t.Run(sv.name+"/"+bv.name, func(t *testing.T) {
				svc := core.NewService(sv.open(t))
				lab, _, err := svc.CreateLab(ctx, "integration lab")
				if err != nil {
					t.Fatalf("create lab: %v", err)
				}
				issue, _, err := svc.CreateIssue(ctx, lab.ID, core.IssueDraft{Title: "wire up smoke"})
				if err != nil {
					t.Fatalf("create issue: %v", err)
				}
				if issue.Number != 1 {
					t.Fatalf("expected first issue number 1, got %d", issue.Number)
				}
				queue, _, err := svc.Queue(ctx, lab.ID)
				if err != nil {
					t.Fatalf("queue: %v", err)
				}
				if len(queue) != 1 || queue[0] != issue.ID {
					t.Fatalf("unexpected queue %v", queue)
				}
				checkIn, _, err := svc.TodayCheckIn(ctx, lab.ID)
				if err != nil {
					t.Fatalf("today check-in: %v", err)
				}
				if checkIn.Number != 1 {
					t.Fatalf("expected first check-in number 1, got %d", checkIn.Number)
				}

				worker := archive.NewWorker(svc, bv.open(t), &archive.MemoryAuditLog{})
				worker.Start()
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = worker.Stop(stopCtx)
				}()
				record, err := worker.EnqueueExport(ctx, archive.ExportInput{LabID: lab.ID, RequestedBy: "smoke"})
				if err != nil {
					t.Fatalf("enqueue export: %v", err)
				}
				deadline := time.Now().Add(5 * time.Second)
				for {
					current, ok := worker.GetExport(record.ID)
					if !ok {
						t.Fatalf("export %s vanished", record.ID)
					}
					if current.Status == archive.StatusSucceeded {
						break
					}
					if current.Status == archive.StatusFailed {
						t.Fatalf("export failed: %s", current.Error)
					}
					if time.Now().After(deadline) {
						t.Fatalf("export did not finish")
					}
					time.Sleep(5 * time.Millisecond)
				}
			})
		}
	}
}

// TestIntegrationReopenSQLite verifies that lab state written through the
// service survives reopening the sqlite file.
func TestIntegrationReopenSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	first, err := core.NewSQLiteStore(path, core.NewDefaultRulesEngine())
	if err != nil {
		t.Skipf("new sqlite store: %v", err)
	}
	svc := core.NewService(first)
	lab, _, err := svc.CreateLab(ctx, "persistent lab")
	if err != nil {
		t.Fatalf("create lab: %v", err)
	}
	if _, _, err := svc.CreateIssue(ctx, lab.ID, core.IssueDraft{Title: "survives restart"}); err != nil {
		t.Fatalf("create issue: %v", err)
	}

	second, err := core.NewSQLiteStore(path, core.NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("reopen sqlite store: %v", err)
	}
	reopened := core.NewService(second)
	issues := reopened.ListIssues(ctx, lab.ID)
	if len(issues) != 1 || issues[0].Title != "survives restart" {
		t.Fatalf("unexpected issues after reopen: %+v", issues)
	}
}

// TestIntegrationArchiveArtifactContents round-trips an archive artifact
// through the filesystem blob store and checks the rendered payloads.
func TestIntegrationArchiveArtifactContents(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	store, err := blob.NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem blob: %v", err)
	}
	worker := archive.NewWorker(svc, store, &archive.MemoryAuditLog{})
	worker.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = worker.Stop(stopCtx)
	}()

	lab, _, err := svc.CreateLab(ctx, "archive lab")
	if err != nil {
		t.Fatalf("create lab: %v", err)
	}
	if _, _, err := svc.CreateIssue(ctx, lab.ID, core.IssueDraft{Title: "catalogue samples"}); err != nil {
		t.Fatalf("create issue: %v", err)
	}

	record, err := worker.EnqueueExport(ctx, archive.ExportInput{LabID: lab.ID, Formats: []archive.Format{archive.FormatCSV}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	var finished archive.ExportRecord
	for {
		current, ok := worker.GetExport(record.ID)
		if !ok {
			t.Fatalf("export vanished")
		}
		if current.Status == archive.StatusSucceeded {
			finished = current
			break
		}
		if current.Status == archive.StatusFailed {
			t.Fatalf("export failed: %s", current.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("export did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if len(finished.Artifacts) != 1 {
		t.Fatalf("expected one artifact, got %+v", finished.Artifacts)
	}
	_, rc, err := store.Get(ctx, finished.Artifacts[0].Key)
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	payload, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !strings.Contains(string(payload), "catalogue samples") {
		t.Fatalf("artifact missing issue row: %s", payload)
	}
}
