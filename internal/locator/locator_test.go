package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ruddy/internal/domain"
)

func TestParse_FullLocator(t *testing.T) {
	l, err := Parse("grpc://localhost:1521?database=/path/to/duckdb.db&schema=my_schema")
	require.NoError(t, err)

	assert.Equal(t, "localhost", l.Host)
	assert.Equal(t, 1521, l.Port)
	assert.Equal(t, "grpc", l.Scheme)
	assert.Equal(t, "grpc://localhost:1521", l.Location())
	assert.Equal(t, "/path/to/duckdb.db", l.Database())
	assert.Equal(t, "my_schema", l.Schema())
	assert.Equal(t, "my_schema", l.Query("schema"))
	assert.Equal(t, domain.ConnectionDefaults{Database: "/path/to/duckdb.db", Schema: "my_schema"}, l.Defaults())
}

func TestParse_DefaultPort(t *testing.T) {
	l, err := Parse("grpc://example.com")
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, l.Port)
	assert.Equal(t, "grpc://example.com:1881", l.Location())
	assert.Equal(t, "example.com:1881", l.HostPort())
	assert.Empty(t, l.Database())
	assert.Empty(t, l.Schema())
	assert.Equal(t, "grpc://example.com:1881", l.String())
}

func TestParse_ExplicitZeroPortIsKept(t *testing.T) {
	l, err := Parse("grpc://127.0.0.1:0")
	require.NoError(t, err)
	assert.Equal(t, 0, l.Port)
	assert.Equal(t, "127.0.0.1:0", l.HostPort())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "missing scheme", raw: "localhost:1881"},
		{name: "missing host", raw: "grpc://:1881"},
		{name: "bad port", raw: "grpc://localhost:99999"},
		{name: "unparseable", raw: "grpc://local host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			require.Error(t, err)
		})
	}
}

func TestString_KeepsQuery(t *testing.T) {
	l := MustParse("grpc+tcp://db.local:9000?schema=s1")
	assert.Equal(t, "grpc+tcp://db.local:9000?schema=s1", l.String())
	assert.Equal(t, "grpc+tcp://db.local:9000?schema=s1", l.Raw())
}
