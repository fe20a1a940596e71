package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/mozoqr/waiterpush/internal/domain"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{"explicit dsn wins", ClientConfig{DSN: "postgres://x", Host: "ignored"}, "postgres://x"},
		{"defaults", ClientConfig{User: "u", Password: "p", Host: "db", Database: "waiterpush"},
			"postgres://u:p@db:5432/waiterpush?sslmode=disable"},
		{"custom port and ssl", ClientConfig{User: "u", Password: "p", Host: "db", Port: 6543, Database: "d", SSLMode: "require"},
			"postgres://u:p@db:6543/d?sslmode=require"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Fatalf("DSN = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMigrationFiles_Embedded(t *testing.T) {
	names, err := migrationFiles(migrationsFS)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"001_channels.sql", "002_deliveries.sql"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("migrations = %v, want %v", names, want)
	}
}

func TestMigrationFiles_SortsAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_b.sql":   {Data: []byte("--")},
		"migrations/002_a.sql":   {Data: []byte("--")},
		"migrations/README.md":   {Data: []byte("x")},
		"migrations/sub/003.sql": {Data: []byte("--")},
	}
	names, err := migrationFiles(fsys)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(names, ",") != "002_a.sql,010_b.sql" {
		t.Fatalf("migrations = %v", names)
	}
}

func TestBuildListQuery(t *testing.T) {
	since := time.Unix(100, 0)
	q, args := buildListQuery(domain.ListOpts{Since: &since, Limit: 20, Offset: 40})

	for _, frag := range []string{"created_at >= $1", "LIMIT $2", "OFFSET $3", "ORDER BY created_at DESC"} {
		if !strings.Contains(q, frag) {
			t.Errorf("query %q missing %q", q, frag)
		}
	}
	if len(args) != 3 {
		t.Fatalf("args = %v", args)
	}

	q, args = buildListQuery(domain.ListOpts{})
	if strings.Contains(q, "LIMIT") || len(args) != 0 {
		t.Fatalf("unfiltered query = %q, args = %v", q, args)
	}
}
