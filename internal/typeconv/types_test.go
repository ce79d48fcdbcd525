package typeconv

import (
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/require"
)

func TestCanonicalType(t *testing.T) {
	require.Equal(t, "INTEGER", CanonicalType("int4"))
	require.Equal(t, "BIGINT", CanonicalType("int8"))
	require.Equal(t, "TEXT", CanonicalType("varchar"))
	require.Equal(t, "TIMESTAMP", CanonicalType("timestamptz"))
	require.Equal(t, "INTEGER", CanonicalType("_int4"))
	require.Equal(t, "INET", CanonicalType("inet"))
}

func TestMapSQLTypeToGraphQL(t *testing.T) {
	cases := map[string]*graphql.Scalar{
		"int2":        graphql.Int,
		"int4":        graphql.Int,
		"int8":        graphql.String,
		"numeric":     graphql.String,
		"float8":      graphql.Float,
		"bool":        graphql.Boolean,
		"timestamptz": graphql.DateTime,
		"date":        graphql.DateTime,
		"uuid":        graphql.String,
		"jsonb":       graphql.String,
	}
	for sqlType, want := range cases {
		require.Same(t, want, MapSQLTypeToGraphQL(sqlType), sqlType)
	}
}

func TestIsArray(t *testing.T) {
	require.True(t, IsArray("_text"))
	require.False(t, IsArray("text"))
}
