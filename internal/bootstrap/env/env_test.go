package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMissingKey(t *testing.T) {
	m := New(map[string]string{"API_URL": "https://api.example.com"})

	assert.Equal(t, "", m.Get("MISSING_KEY"))
	_, ok := m.Lookup("MISSING_KEY")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len(), "lookup must not add entries")
}

func TestGetPresentKey(t *testing.T) {
	m := New(map[string]string{"API_URL": "https://api.example.com", "EMPTY": ""})

	assert.Equal(t, "https://api.example.com", m.Get("API_URL"))

	v, ok := m.Lookup("EMPTY")
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestNewCopiesInput(t *testing.T) {
	vars := map[string]string{"A": "1"}
	m := New(vars)

	vars["A"] = "2"
	vars["B"] = "3"

	assert.Equal(t, "1", m.Get("A"))
	assert.Equal(t, "", m.Get("B"))
}

func TestSnapshotIsDetached(t *testing.T) {
	m := New(map[string]string{"A": "1"})

	snap := m.Snapshot()
	snap["A"] = "changed"

	assert.Equal(t, "1", m.Get("A"))
}

func TestNilMap(t *testing.T) {
	var m *Map

	assert.Equal(t, "", m.Get("A"))
	assert.Equal(t, 0, m.Len())
	assert.Nil(t, m.Keys())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		literal string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty literal", literal: "", want: map[string]string{}},
		{name: "empty object", literal: "{}", want: map[string]string{}},
		{name: "values", literal: `{"GOAPP_VERSION":"v1","MODE":"prod"}`, want: map[string]string{"GOAPP_VERSION": "v1", "MODE": "prod"}},
		{name: "not an object", literal: `["a"]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse([]byte(tt.literal))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Snapshot())
		})
	}
}

func TestKeysSorted(t *testing.T) {
	m := New(map[string]string{"b": "", "a": "", "c": ""})
	assert.Equal(t, []string{"a", "b", "c"}, m.Keys())
}
