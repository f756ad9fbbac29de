package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEveryUpHasADown(t *testing.T) {
	ups, err := fs.Glob(FS, "*.up.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no migrations embedded")
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(FS, down); err != nil {
			t.Errorf("%s has no down migration", up)
		}
	}
}

func TestSchemaDefinesBookingTables(t *testing.T) {
	data, err := fs.ReadFile(FS, "000001_booking_schema.up.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	for _, table := range []string{"treatments", "professionals", "appointments", "outbox"} {
		if !strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("schema missing table %s", table)
		}
	}
}
