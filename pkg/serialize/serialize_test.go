package serialize

import (
	"testing"

	"github.com/oneconcern/repobuf/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	l := Default()
	assert.Equal(t, []string{"csv", "json", "ndjson"}, l.Formats())

	_, err := l.Get("json")
	require.NoError(t, err)

	_, err = l.Get("avro")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestJSONLines(t *testing.T) {
	lines, err := JSONLines([]Record{
		{"b": 2, "a": "x"},
		{"id": 1},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, `{"a":"x","b":2}`+"\n", string(lines[0]))
	assert.Equal(t, `{"id":1}`+"\n", string(lines[1]))

	_, err = JSONLines([]Record{{"f": func() {}}})
	require.Error(t, err)
}

func TestCSV(t *testing.T) {
	lines, err := CSV([]Record{
		{"name": "a, b", "id": 1},
		{"id": 2},
	})
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "id,name\n", string(lines[0]))
	assert.Equal(t, "1,\"a, b\"\n", string(lines[1]))
	assert.Equal(t, "2,\n", string(lines[2]))

	lines, err = CSV(nil)
	require.NoError(t, err)
	assert.Empty(t, lines)
}
