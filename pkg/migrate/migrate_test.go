package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func writeMigration(t *testing.T, dir, name, up, down string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".up.sql"), []byte(up), 0o644))
	if down != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".down.sql"), []byte(down), 0o644))
	}
}

func TestNewManager_SortsByVersion(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0002_view", "CREATE VIEW v AS SELECT 1;", "DROP VIEW v;")
	writeMigration(t, dir, "0001_widgets", "CREATE TABLE widgets();", "DROP TABLE widgets;")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	mgr, err := NewManager(nil, dir, nil)
	require.NoError(t, err)
	migs := mgr.Migrations()
	require.Len(t, migs, 2)
	require.Equal(t, "widgets", migs[0].Name)
	require.Equal(t, "DROP VIEW v;", migs[1].DownSQL)
}

func TestNewManager_VersionClash(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0001_a", "X", "")
	writeMigration(t, dir, "0001_b", "Y", "")

	_, err := NewManager(nil, dir, nil)
	require.Error(t, err)
}

func TestUp_AppliesPendingMigrations(t *testing.T) {
	dir := t.TempDir()
	upSQL := "CREATE TABLE foo();"
	writeMigration(t, dir, "0001_foo", upSQL, "DROP TABLE foo;")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Expect ensure version table
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// currentVersion: no rows -> NULL -> 0
	mock.ExpectQuery(`SELECT MAX\(version\) FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectBegin()
	mock.ExpectExec(fmt.Sprintf("^%s$", regexp.QuoteMeta(upSQL))).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO schema_migrations`).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mgr, err := NewManager(db, dir, nil)
	require.NoError(t, err)

	n, err := mgr.Up(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUp_RollsBackFailedMigration(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0001_foo", "BROKEN", "")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT MAX\(version\) FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectBegin()
	mock.ExpectExec("^BROKEN$").WillReturnError(fmt.Errorf("syntax error"))
	mock.ExpectRollback()

	mgr, err := NewManager(db, dir, nil)
	require.NoError(t, err)

	n, err := mgr.Up(context.Background())
	require.EqualError(t, err, "apply up 0001_foo: syntax error")
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDown_RollsBackLatestMigration(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0001_foo", "X", "Y")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// ensure table
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// currentVersion returns 1
	mock.ExpectQuery(`SELECT MAX\(version\) FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec("^Y$").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`DELETE FROM schema_migrations WHERE version = \$1`).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mgr, err := NewManager(db, dir, nil)
	require.NoError(t, err)

	require.NoError(t, mgr.Down(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatus(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0001_foo", "X", "Y")
	writeMigration(t, dir, "0002_bar", "X", "Y")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT MAX\(version\) FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(1))

	mgr, err := NewManager(db, dir, nil)
	require.NoError(t, err)

	status, err := mgr.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Current version: 1\n0001_foo: applied\n0002_bar: pending", status)
}
