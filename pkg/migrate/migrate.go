package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Migration holds one versioned migration
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Manager applies and rolls back migrations
type Manager struct {
	db            *sql.DB
	migrationsDir string
	migrations    []Migration
	log           *zap.Logger
}

var fileRe = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// NewManager loads migration files from the specified directory
func NewManager(db *sql.DB, migrationsDir string, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{db: db, migrationsDir: migrationsDir, log: log}
	if err := m.loadMigrations(); err != nil {
		return nil, err
	}
	return m, nil
}

// Migrations returns the loaded migrations in version order
func (m *Manager) Migrations() []Migration {
	return m.migrations
}

// loadMigrations reads .up.sql/.down.sql files and organizes them by version
func (m *Manager) loadMigrations() error {
	entries, err := os.ReadDir(m.migrationsDir)
	if err != nil {
		return errors.Wrap(err, "read migrations dir")
	}
	tmp := map[int]*Migration{}
	for _, fi := range entries {
		if fi.IsDir() {
			continue
		}
		matches := fileRe.FindStringSubmatch(fi.Name())
		if len(matches) != 4 {
			continue
		}
		ver, err := strconv.Atoi(matches[1])
		if err != nil {
			return errors.Wrapf(err, "version of %s", fi.Name())
		}
		name, dir := matches[2], matches[3]
		data, err := os.ReadFile(filepath.Join(m.migrationsDir, fi.Name()))
		if err != nil {
			return errors.Wrapf(err, "read %s", fi.Name())
		}
		mig, exists := tmp[ver]
		if !exists {
			mig = &Migration{Version: ver, Name: name}
			tmp[ver] = mig
		} else if mig.Name != name {
			return errors.Errorf("version %d used by both %s and %s", ver, mig.Name, name)
		}
		if dir == "up" {
			mig.UpSQL = string(data)
		} else {
			mig.DownSQL = string(data)
		}
	}
	versions := make([]int, 0, len(tmp))
	for v := range tmp {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	for _, v := range versions {
		m.migrations = append(m.migrations, *tmp[v])
	}
	return nil
}

// EnsureVersionTable creates schema_migrations if missing
func (m *Manager) EnsureVersionTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INT PRIMARY KEY);`)
	return errors.Wrap(err, "ensure schema_migrations")
}

// CurrentVersion returns the highest applied migration version
func (m *Manager) CurrentVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	row := m.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations;`)
	if err := row.Scan(&v); err != nil {
		return 0, errors.Wrap(err, "read current version")
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

// apply runs one migration body and its bookkeeping statement in a transaction
func (m *Manager) apply(ctx context.Context, body, record string, version int) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, body); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, record, version); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Up applies all pending migrations and returns how many ran
func (m *Manager) Up(ctx context.Context) (int, error) {
	if err := m.EnsureVersionTable(ctx); err != nil {
		return 0, err
	}
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}
		m.log.Info("applying migration", zap.Int("version", mig.Version), zap.String("name", mig.Name))
		if err := m.apply(ctx, mig.UpSQL, `INSERT INTO schema_migrations(version) VALUES($1);`, mig.Version); err != nil {
			return applied, errors.Wrapf(err, "apply up %04d_%s", mig.Version, mig.Name)
		}
		applied++
	}
	return applied, nil
}

// Down rolls back the latest migration
func (m *Manager) Down(ctx context.Context) error {
	if err := m.EnsureVersionTable(ctx); err != nil {
		return err
	}
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if current == 0 {
		m.log.Info("no migrations to roll back")
		return nil
	}
	var toRoll *Migration
	for i := len(m.migrations) - 1; i >= 0; i-- {
		if m.migrations[i].Version == current {
			toRoll = &m.migrations[i]
			break
		}
	}
	if toRoll == nil {
		return errors.Errorf("migration not found for version %d", current)
	}
	if strings.TrimSpace(toRoll.DownSQL) == "" {
		return errors.Errorf("migration %04d_%s has no down file", toRoll.Version, toRoll.Name)
	}
	m.log.Info("rolling back migration", zap.Int("version", toRoll.Version), zap.String("name", toRoll.Name))
	if err := m.apply(ctx, toRoll.DownSQL, `DELETE FROM schema_migrations WHERE version = $1;`, toRoll.Version); err != nil {
		return errors.Wrapf(err, "apply down %04d_%s", toRoll.Version, toRoll.Name)
	}
	return nil
}

// Status renders one line per migration, marking it applied or pending
func (m *Manager) Status(ctx context.Context) (string, error) {
	if err := m.EnsureVersionTable(ctx); err != nil {
		return "", err
	}
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return "", err
	}
	lines := []string{fmt.Sprintf("Current version: %d", current)}
	for _, mig := range m.migrations {
		state := "pending"
		if mig.Version <= current {
			state = "applied"
		}
		lines = append(lines, fmt.Sprintf("%04d_%s: %s", mig.Version, mig.Name, state))
	}
	return strings.Join(lines, "\n"), nil
}
