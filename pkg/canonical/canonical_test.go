package canonical

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsTopLevelKeys(t *testing.T) {
	a, err := Marshal([]byte(`{"b":1,"a":2,"c":3}`))
	require.NoError(t, err)

	b, err := Marshal([]byte(`{"c":3,"a":2,"b":1}`))
	require.NoError(t, err)

	assert.Equal(t, string(a), string(b))
	assert.Equal(t, `{"a":2,"b":1,"c":3}`, string(a))
}

func TestMarshalPreservesNestedKeyOrder(t *testing.T) {
	first, err := Marshal([]byte(`{"outer":{"z":1,"a":2}}`))
	require.NoError(t, err)

	second, err := Marshal([]byte(`{"outer":{"a":2,"z":1}}`))
	require.NoError(t, err)

	// Nested objects keep document order, so reordering them changes the
	// canonical bytes. Signatures are over these exact bytes.
	assert.NotEqual(t, string(first), string(second))
	assert.Equal(t, `{"outer":{"z":1,"a":2}}`, string(first))
}

func TestMarshalIsIdempotent(t *testing.T) {
	once, err := Marshal([]byte(`{"b":{"y":1,"x":[1,2,{"k":"v"}]},"a":"text"}`))
	require.NoError(t, err)

	twice, err := Marshal(once)
	require.NoError(t, err)

	assert.Equal(t, string(once), string(twice))
}

func TestMarshalCompactsWhitespace(t *testing.T) {
	got, err := Marshal([]byte("{\n  \"a\": 1,\n  \"b\": [1, 2]\n}"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":[1,2]}`, string(got))
}

func TestMarshalKeepsUnicodeAndSpecialCharacters(t *testing.T) {
	got, err := Marshal([]byte(`{"note":"<ok> & günther"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"note":"<ok> & günther"}`, string(got))
}

func TestMarshalDuplicateTopLevelKeyLastWins(t *testing.T) {
	got, err := Marshal([]byte(`{"a":1,"a":2}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(got))
}

func TestMarshalRejectsNonObjects(t *testing.T) {
	for _, doc := range []string{`[1,2,3]`, `"text"`, `42`, `null`, ``, `{"a":`} {
		_, err := Marshal([]byte(doc))
		if err == nil {
			t.Fatalf("expected error for %q", doc)
		}
	}

	_, err := Marshal([]byte(`[1]`))
	assert.True(t, errors.Is(err, ErrNotObject))
}
