package envfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse_TrimsAndUnquotes(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		key   string
		value string
	}{
		{"plain", "SERVER_HOSTNAME=host1", "SERVER_HOSTNAME", "host1"},
		{"spaces around", "  SERVER_USER  =  alice  ", "SERVER_USER", "alice"},
		{"double quoted", `SERVER_PATH="/srv/app"`, "SERVER_PATH", "/srv/app"},
		{"single quoted", `SERVER_PATH='/srv/app'`, "SERVER_PATH", "/srv/app"},
		{"quoted with inner spaces", `NAME=" a b "`, "NAME", " a b "},
		{"one layer only", `NAME=""x""`, "NAME", `"x"`},
		{"mismatched quotes kept", `NAME="x'`, "NAME", `"x'`},
		{"split on first equals", "URL=redis://h:1/?a=b", "URL", "redis://h:1/?a=b"},
		{"empty value", "EMPTY=", "EMPTY", ""},
		{"lone quote", `Q="`, "Q", `"`},
		{"inline comment kept", `SERVER_USER='ops'  # deploy user`, "SERVER_USER", `'ops'  # deploy user`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := Parse(strings.NewReader(tt.line + "\n"))
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, tt.key, entries[0].Key)
			assert.Equal(t, tt.value, entries[0].Value)
		})
	}
}

func TestParse_SkipsCommentsBlankAndInvalid(t *testing.T) {
	content := `
# production target
SERVER_HOSTNAME=host1

   # indented comment
not a pair
=novalue
SERVER_USER=alice
`
	entries, err := Parse(strings.NewReader(content))
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Key: "SERVER_HOSTNAME", Value: "host1", Line: 3}, entries[0])
	assert.Equal(t, Entry{Key: "SERVER_USER", Value: "alice", Line: 8}, entries[1])
}

func TestParse_Empty(t *testing.T) {
	entries, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestToMap_LaterWins(t *testing.T) {
	entries, err := Parse(strings.NewReader("A=1\nB=2\nA=3\n"))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"A": "3", "B": "2"}, ToMap(entries))
}
