package migrate

import (
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
)

var (
	versionRe = regexp.MustCompile(`^\d{14}$`)
	fileRe    = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
)

// ValidateFS checks every .sql file in fsys: the name must be
// <version>_<snake_name>.sql, versions must be unique, and both goose
// directions must be present. Files that manage enum types must not open a
// transaction-wrapped ALTER TYPE ... ADD VALUE, which Postgres rejects.
func ValidateFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	seen := make(map[string]string, len(names))
	for _, name := range names {
		m := fileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q, want YYYYMMDDHHMMSS_name.sql", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %q: %w", name, err)
		}
		if err := checkBody(name, string(body)); err != nil {
			return err
		}
	}
	return nil
}

func checkBody(name, sql string) error {
	up := strings.Index(sql, "-- +goose Up")
	down := strings.Index(sql, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
	case down < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
	case down < up:
		return fmt.Errorf("migration %q declares Down before Up", name)
	}
	if strings.Contains(strings.ToUpper(sql), "ADD VALUE") && !strings.Contains(sql, "-- +goose NO TRANSACTION") {
		return fmt.Errorf("migration %q adds an enum value and needs \"-- +goose NO TRANSACTION\"", name)
	}
	return nil
}
