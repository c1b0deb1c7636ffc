package postgres

import "testing"

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected embedded migrations")
	}

	var last int64
	for _, m := range migrations {
		if m.Version <= last {
			t.Fatalf("migrations are not sorted by version: %d after %d", m.Version, last)
		}
		last = m.Version
		if m.UpSQL == "" || m.DownSQL == "" {
			t.Fatalf("migration %d_%s is missing a direction", m.Version, m.Name)
		}
	}
}

func TestMigrationFilePattern(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{name: "0001_create_order_tables.up.sql", ok: true},
		{name: "0002_create_outbox.down.sql", ok: true},
		{name: "create_order_tables.up.sql", ok: false},
		{name: "0001_create order tables.up.sql", ok: false},
		{name: "0001_create_order_tables.sideways.sql", ok: false},
	}

	for _, tc := range cases {
		matches := migrationFilePattern.FindStringSubmatch(tc.name)
		if (len(matches) == 4) != tc.ok {
			t.Fatalf("pattern match for %q: expected ok=%v", tc.name, tc.ok)
		}
	}
}
