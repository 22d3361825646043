package migration

import (
	"testing"
	"testing/fstest"
)

func TestLoad_OrdersAndValidates(t *testing.T) {
	src := fstest.MapFS{
		"V2__second.sql": {Data: []byte("SELECT 2;")},
		"V1__first.sql":  {Data: []byte("SELECT 1;")},
		"README.md":      {Data: []byte("ignored")},
	}
	migs, err := Load(src)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(migs) != 2 || migs[0].Name != "first" || migs[1].Version != 2 {
		t.Fatalf("unexpected migrations %+v", migs)
	}
	if migs[0].Checksum == "" || migs[0].Checksum == migs[1].Checksum {
		t.Fatalf("checksums not computed")
	}
}

func TestLoad_RejectsDuplicatesAndEmpty(t *testing.T) {
	if _, err := Load(fstest.MapFS{
		"V1__a.sql":  {Data: []byte("SELECT 1;")},
		"V01__b.sql": {Data: []byte("SELECT 1;")},
	}); err == nil {
		t.Fatalf("expected duplicate version error")
	}
	if _, err := Load(fstest.MapFS{"V3__empty.sql": {Data: []byte("  \n")}}); err == nil {
		t.Fatalf("expected empty file error")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	src, err := Runner{}.source()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	migs, err := Load(src)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(migs) < 2 || migs[0].Name != "tracked_jobs" {
		t.Fatalf("unexpected embedded set %+v", migs)
	}
}
