package db

import "testing"

func TestMigrationFiles_SortedAndEmbedded(t *testing.T) {
	names, err := migrationFiles()
	if err != nil {
		t.Fatalf("migrationFiles error: %v", err)
	}

	want := []string{"0001_users.up.sql", "0002_modules.up.sql", "0003_jobs.up.sql"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v, want %v", names, want)
		}
	}
}
