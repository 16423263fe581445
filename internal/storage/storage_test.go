package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	logx "schedbot/pkg/logx"
)

func openTest(t *testing.T, driver string) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "groups")
	switch driver {
	case "file":
		path += ".json"
	case "sqlite":
		path += ".db"
	}
	st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open %s: %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st, path
}

func TestStore_Drivers(t *testing.T) {
	for _, driver := range []string{"file", "sqlite", "memory"} {
		t.Run(driver, func(t *testing.T) {
			st, _ := openTest(t, driver)
			ctx := context.Background()

			if _, err := st.GetGroup(ctx, 42); !errors.Is(err, ErrNotFound) {
				t.Fatalf("get unset: %v", err)
			}
			if err := st.SaveGroup(ctx, 42, " 108 "); err != nil {
				t.Fatalf("save: %v", err)
			}
			if g, err := st.GetGroup(ctx, 42); err != nil || g != "108" {
				t.Fatalf("get = %q, %v", g, err)
			}
			if err := st.SaveGroup(ctx, 42, "205"); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			if g, _ := st.GetGroup(ctx, 42); g != "205" {
				t.Fatalf("get after overwrite = %q", g)
			}
			if err := st.DeleteGroup(ctx, 42); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := st.DeleteGroup(ctx, 42); err != nil {
				t.Fatalf("delete twice: %v", err)
			}
			if _, err := st.GetGroup(ctx, 42); !errors.Is(err, ErrNotFound) {
				t.Fatalf("get deleted: %v", err)
			}
		})
	}
}

func TestFileStore_FormatAndReopen(t *testing.T) {
	st, path := openTest(t, "file")
	ctx := context.Background()
	_ = st.SaveGroup(ctx, 123, "108")
	_ = st.SaveGroup(ctx, -100200, "205")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw map[string]string
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if raw["123"] != "108" || raw["-100200"] != "205" || len(raw) != 2 {
		t.Fatalf("file = %s", b)
	}

	again, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	if g, _ := again.GetGroup(ctx, -100200); g != "205" {
		t.Fatalf("reopened group = %q", g)
	}
}

func TestFileStore_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_groups.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	if _, err := st.GetGroup(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	st, path := openTest(t, "sqlite")
	if err := st.SaveGroup(context.Background(), 7, "301"); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = st.Close()

	again, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	if g, err := again.GetGroup(context.Background(), 7); err != nil || g != "301" {
		t.Fatalf("get = %q, %v", g, err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatalf("expected missing path error")
	}
}
