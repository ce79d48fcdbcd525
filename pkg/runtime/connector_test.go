package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/app":                 "postgres://u:p@localhost/app?sslmode=disable",
		"postgresql://localhost/app?connect_timeout=5": "postgresql://localhost/app?connect_timeout=5&sslmode=disable",
		"postgres://localhost/app?sslmode=require":     "postgres://localhost/app?sslmode=require",
		"host=localhost dbname=app":                    "host=localhost dbname=app",
	}
	for in, want := range cases {
		got, err := NormalizeDSN(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := NormalizeDSN("  ")
	require.EqualError(t, err, "DSN is empty")
}
