package core

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestBuild_WithAllClauses(t *testing.T) {
	qb := NewQueryBuilder(nil).
		From(Table("public", "users")).
		Select("id", "name").
		Where(`"active" = ?`, true).
		WhereEq("org_id", 7).
		OrderBy("created_at").
		Limit(10).
		Offset(5)

	sql, args := qb.Build()
	require.Equal(t,
		`SELECT "id", "name" FROM "public"."users" WHERE "active" = $1 AND "org_id" = $2 ORDER BY "created_at" LIMIT 10 OFFSET 5`,
		sql,
	)
	require.Equal(t, []interface{}{true, 7}, args)
}

func TestBuild_Defaults(t *testing.T) {
	qb := NewQueryBuilder(nil).
		From(Table("", "items"))

	sql, args := qb.Build()
	require.Equal(t, `SELECT * FROM "items"`, sql)
	require.Empty(t, args)
}

func TestNumberPlaceholders_SkipsLiterals(t *testing.T) {
	require.Equal(t, `SELECT '?' WHERE a = $1 AND b = $2`,
		numberPlaceholders(`SELECT '?' WHERE a = ? AND b = ?`))
}

func TestInsertBuild(t *testing.T) {
	ib := NewInsertBuilder(nil, Table("public", "widgets")).
		Set("name", "sprocket").
		Set("color", "red")

	sql, args := ib.Build()
	require.Equal(t, `INSERT INTO "public"."widgets" ("color", "name") VALUES ($1, $2) RETURNING *`, sql)
	require.Equal(t, []interface{}{"red", "sprocket"}, args)

	sql, args = NewInsertBuilder(nil, Table("public", "widgets")).Build()
	require.Equal(t, `INSERT INTO "public"."widgets" DEFAULT VALUES RETURNING *`, sql)
	require.Empty(t, args)
}

func TestUpdateBuild(t *testing.T) {
	sql, args := NewUpdateBuilder(nil, Table("public", "widgets")).
		Set("name", "cog").
		WhereEq("id", 3).
		Build()
	require.Equal(t, `UPDATE "public"."widgets" SET "name" = $1 WHERE "id" = $2 RETURNING *`, sql)
	require.Equal(t, []interface{}{"cog", 3}, args)

	sql, args = NewUpdateBuilder(nil, Table("public", "widgets")).WhereEq("id", 3).Build()
	require.Equal(t, `SELECT * FROM "public"."widgets" WHERE "id" = $1`, sql)
	require.Equal(t, []interface{}{3}, args)
}

func TestDeleteBuild(t *testing.T) {
	sql, args := NewDeleteBuilder(nil, Table("public", "widgets")).WhereEq("id", 3).Build()
	require.Equal(t, `DELETE FROM "public"."widgets" WHERE "id" = $1 RETURNING *`, sql)
	require.Equal(t, []interface{}{3}, args)
}

func TestCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "t" WHERE x > \$1`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	qb := NewQueryBuilder(db).
		From(Table("", "t")).
		Where("x > ?", 5)

	count, err := qb.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAll_ScansRowsIntoMaps(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."widgets" ORDER BY "id" LIMIT 2`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, []byte("sprocket")).
			AddRow(2, "cog"))

	rows, err := NewQueryBuilder(db).
		From(Table("public", "widgets")).
		OrderBy("id").
		Limit(2).
		All(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "sprocket", rows[0]["name"])
	require.Equal(t, "cog", rows[1]["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOne_NoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT \* FROM "widgets" WHERE "id" = \$1 LIMIT 1`).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = NewQueryBuilder(db).From(Table("", "widgets")).WhereEq("id", 9).One(context.Background())
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestInsertExec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "public"."widgets" ("name") VALUES ($1) RETURNING *`)).
		WithArgs("sprocket").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "sprocket"))

	row, err := NewInsertBuilder(db, Table("public", "widgets")).
		Set("name", "sprocket").
		Exec(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, row["id"])
	require.NoError(t, mock.ExpectationsWereMet())
}
