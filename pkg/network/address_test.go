package network

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAddress_JSON tests that local addresses encode as bare strings
func TestAddress_JSON(t *testing.T) {
	buf, err := json.Marshal(Local("alice"))
	require.NoError(t, err)
	assert.JSONEq(t, `"alice"`, string(buf))

	buf, err = json.Marshal(Address{Gate: "east", Node: "bob"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"gate":"east","node":"bob"}`, string(buf))

	var decoded Address
	require.NoError(t, json.Unmarshal(buf, &decoded))
	assert.Equal(t, Address{Gate: "east", Node: "bob"}, decoded)

	require.NoError(t, json.Unmarshal([]byte(`"carol"`), &decoded))
	assert.Equal(t, Local("carol"), decoded)

	assert.Error(t, json.Unmarshal([]byte(`42`), &decoded))
}

// TestAddress_String tests the printable form
func TestAddress_String(t *testing.T) {
	assert.Equal(t, "alice", Local("alice").String())
	assert.Equal(t, "east:bob", Address{Gate: "east", Node: "bob"}.String())
}

// TestSelector_Constructors tests the selector helpers
func TestSelector_Constructors(t *testing.T) {
	assert.Equal(t, Selector{{Node: "a"}, {Node: "b"}}, Node("a", "b"))
	assert.Equal(t, Selector{{Node: Wildcard}}, All())
	assert.Equal(t, Selector{{Gate: "g", Node: "a"}}, Via("g", "a"))
	assert.Equal(t, Selector{
		{Gate: "g1", Node: "a"}, {Gate: "g1", Node: "b"},
		{Gate: "g2", Node: "a"}, {Gate: "g2", Node: "b"},
	}, Cross([]string{"g1", "g2"}, []string{"a", "b"}))

	joined := Join(Node("a"), Via("g", "b"))
	assert.Equal(t, Selector{{Node: "a"}, {Gate: "g", Node: "b"}}, joined)
	assert.True(t, joined.IsGated())
	assert.False(t, Node("a").IsGated())
}

// TestSelector_UnmarshalJSON tests every accepted destination specifier form
func TestSelector_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Selector
	}{
		{"bare name", `"alice"`, Node("alice")},
		{"wildcard", `"*"`, All()},
		{"gated object", `{"gate":"g","node":"a"}`, Via("g", "a")},
		{"object without gate", `{"node":"a"}`, Node("a")},
		{"object with lists", `{"gate":["g1","g2"],"node":["a","b"]}`, Cross([]string{"g1", "g2"}, []string{"a", "b"})},
		{"array of mixed", `["a",{"gate":"*","node":"b"}]`, Join(Node("a"), Via("*", "b"))},
		{"null", `null`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sel Selector
			require.NoError(t, json.Unmarshal([]byte(tt.input), &sel))
			assert.Equal(t, tt.expected, sel)
		})
	}
}

// TestSelector_UnmarshalJSON_Invalid tests rejected specifiers
func TestSelector_UnmarshalJSON_Invalid(t *testing.T) {
	for _, input := range []string{`42`, `true`, `{"gate":"g"}`, `[1]`} {
		var sel Selector
		assert.Error(t, json.Unmarshal([]byte(input), &sel), input)
	}
}
