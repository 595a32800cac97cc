package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"lifelab/internal/blob/core"
)

func TestStore_MissingObjects(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Head(ctx, "missing"); err == nil {
		t.Fatalf("expected head error")
	}
	if _, _, err := store.Get(ctx, "missing"); err == nil {
		t.Fatalf("expected get error")
	}
	if ok, err := store.Delete(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected delete false, got %v %v", ok, err)
	}
}

func TestStore_PutGetListDelete(t *testing.T) {
	store := New()
	ctx := context.Background()
	info, err := store.Put(ctx, "exports/lab-1.json", bytes.NewReader([]byte("payload")), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"lab": "1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("payload")) || info.ContentType != "application/json" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "exports/lab-1.json", bytes.NewReader([]byte("other")), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put error")
	}
	got, rc, err := store.Get(ctx, "exports/lab-1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "payload" || got.Metadata["lab"] != "1" {
		t.Fatalf("unexpected get result %q %+v", data, got)
	}
	if _, err := store.Put(ctx, "exports/lab-2.json", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	list, err := store.List(ctx, "exports/")
	if err != nil || len(list) != 2 {
		t.Fatalf("list: %v %d", err, len(list))
	}
	if list[0].Key != "exports/lab-1.json" || list[1].Key != "exports/lab-2.json" {
		t.Fatalf("unexpected order %v", list)
	}
	if ok, err := store.Delete(ctx, "exports/lab-1.json"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if list, _ := store.List(ctx, ""); len(list) != 1 {
		t.Fatalf("expected one object after delete, got %d", len(list))
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, fmt.Errorf("fail") }

func TestStore_PutReadErrorAndDriver(t *testing.T) {
	store := New()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("expected memory driver")
	}
	if _, err := store.Put(context.Background(), "bad", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read error")
	}
	if _, err := store.PresignURL(context.Background(), "bad", core.SignedURLOptions{}); err == nil {
		t.Fatalf("expected unsupported presign")
	}
}
