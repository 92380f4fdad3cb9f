package database

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migration is one versioned schema change with its rollback script.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// ID formats the migration as it appears in file names.
func (m Migration) ID() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

// MigrationSet is an ordered list of migrations.
type MigrationSet []Migration

// Find returns the migration with the given version.
func (s MigrationSet) Find(version int) (Migration, bool) {
	for _, m := range s {
		if m.Version == version {
			return m, true
		}
	}
	return Migration{}, false
}

// Migrations returns the migrations compiled into the binary.
func Migrations() MigrationSet {
	set, err := LoadMigrations(embeddedMigrations, "migrations")
	if err != nil {
		// The embedded files are fixed at build time; a bad name is a build defect.
		panic(err)
	}
	return set
}

// LoadMigrations reads NNNNNN_name.up.sql / NNNNNN_name.down.sql pairs from dir.
// Every up script needs a matching down script and versions must be unique.
func LoadMigrations(fsys fs.FS, dir string) (MigrationSet, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var set MigrationSet
	seen := make(map[int]string)
	for _, entry := range entries {
		file := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(file, ".up.sql") {
			continue
		}

		base := strings.TrimSuffix(file, ".up.sql")
		num, name, ok := strings.Cut(base, "_")
		if !ok || name == "" {
			return nil, fmt.Errorf("migration %s: expected NNNNNN_name.up.sql", file)
		}
		version, err := strconv.Atoi(num)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %s: invalid version %q", file, num)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration %s: version %d already used by %s", file, version, prev)
		}
		seen[version] = file

		up, err := fs.ReadFile(fsys, dir+"/"+file)
		if err != nil {
			return nil, err
		}
		down, err := fs.ReadFile(fsys, dir+"/"+base+".down.sql")
		if err != nil {
			return nil, fmt.Errorf("migration %s: missing down script: %w", file, err)
		}

		set = append(set, Migration{Version: version, Name: name, Up: string(up), Down: string(down)})
	}

	sort.Slice(set, func(i, j int) bool { return set[i].Version < set[j].Version })
	return set, nil
}
