package introspect

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestClassKind(t *testing.T) {
	for relkind, want := range map[string]Kind{
		"r": KindClass,
		"p": KindClass,
		"f": KindClass,
		"v": KindView,
		"m": KindView,
	} {
		got, ok := ClassKind(relkind)
		require.True(t, ok, relkind)
		require.Equal(t, want, got, relkind)
	}

	_, ok := ClassKind("S")
	require.False(t, ok)
}

func TestLoad(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM pg_catalog.pg_class c`).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"oid", "relname", "relkind", "description"}).
			AddRow(16384, "widgets", "r", "Things we sell").
			AddRow(16390, "widget_names", "v", "").
			AddRow(16395, "widgets_id_seq", "S", ""))
	mock.ExpectQuery(`FROM pg_catalog.pg_attribute a`).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"attrelid", "attname", "typname", "attnotnull", "atthasdef"}).
			AddRow(16384, "id", "int4", true, true).
			AddRow(16384, "name", "text", true, false).
			AddRow(16390, "name", "text", false, false).
			AddRow(16395, "last_value", "int8", true, false))
	mock.ExpectQuery(`FROM pg_catalog.pg_constraint con`).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"conrelid", "attname"}).
			AddRow(16384, "id"))
	mock.ExpectQuery(`FROM pg_catalog.pg_proc p`).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"proname", "provolatile", "typname", "proargnames", "argtypes"}).
			AddRow("restock", "v", "int4", "{widget_id,amount}", "{int4,int4}").
			AddRow("widget_count", "s", "int8", "{}", "{}").
			AddRow("anonymous_args", "i", "int4", "{}", "{int4}"))

	cat, err := Load(context.Background(), db, "public")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, cat.Classes, 2)
	widgets := cat.Classes[0]
	require.Equal(t, Object{Kind: KindClass, Name: "widgets", Namespace: "public"}, widgets.Object)
	require.Equal(t, "Things we sell", widgets.Description)
	require.Equal(t, []string{"id"}, widgets.PrimaryKey)
	require.Len(t, widgets.Columns, 2)
	col, ok := widgets.Column("id")
	require.True(t, ok)
	require.True(t, col.HasDefault)

	view := cat.Classes[1]
	require.Equal(t, KindView, view.Kind)
	require.Empty(t, view.PrimaryKey)

	require.Len(t, cat.Procedures, 2)
	require.Equal(t, "restock", cat.Procedures[0].Name)
	require.True(t, cat.Procedures[0].Volatile)
	require.Equal(t, []string{"widget_id", "amount"}, cat.Procedures[0].ArgNames)
	require.Equal(t, []string{"int4", "int4"}, cat.Procedures[0].ArgTypes)
	require.False(t, cat.Procedures[1].Volatile)
	require.Equal(t, KindProcedure, cat.Procedures[1].Kind)
}

func TestLoad_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM pg_catalog.pg_class c`).WillReturnError(context.DeadlineExceeded)

	_, err = Load(context.Background(), db, "public")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
