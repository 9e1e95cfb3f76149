package union

import (
	"embed"
	"io/fs"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// PostgresMigrations returns the postgres migrations rooted at the
// migration directory.
func PostgresMigrations() (fs.FS, error) {
	return fs.Sub(migrationsFS, "data/sql/migrations/postgres")
}

// SQLiteMigrations returns the sqlite migrations used for local runs.
func SQLiteMigrations() (fs.FS, error) {
	return fs.Sub(migrationsFS, "data/sql/migrations/sqlite")
}
