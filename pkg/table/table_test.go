package table

import (
	"testing"
	"time"

	"github.com/oneconcern/repobuf/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowCreatedAt(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 123, time.UTC)

	ts, ok := Row{CreatedAt: now}.CreatedAt()
	require.True(t, ok)
	assert.True(t, now.Equal(ts))

	b, err := Encode(Row{CreatedAt: now, "id": 1})
	require.NoError(t, err)
	decoded, err := Decode(b)
	require.NoError(t, err)
	ts, ok = decoded.CreatedAt()
	require.True(t, ok)
	assert.True(t, now.Equal(ts))

	_, ok = Row{"id": 1}.CreatedAt()
	assert.False(t, ok)
	_, ok = Row{CreatedAt: "yesterday"}.CreatedAt()
	assert.False(t, ok)
}

func TestSize(t *testing.T) {
	size, err := Size([]Row{{"a": 1}, {"b": "xy"}})
	require.NoError(t, err)
	assert.EqualValues(t, len(`{"a":1}`)+len(`{"b":"xy"}`), size)
}

func TestValidateName(t *testing.T) {
	require.NoError(t, ValidateName("t"))
	assert.True(t, errors.Is(ValidateName(""), ErrInvalidName))
	assert.True(t, errors.Is(ValidateName("a\x00b"), ErrInvalidName))
	assert.Equal(t, "append", Append.String())
	assert.Equal(t, "replace", Replace.String())
}
