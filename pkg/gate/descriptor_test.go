package gate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

// TestDescriptor_WireFieldNames tests the stable JSON shape
func TestDescriptor_WireFieldNames(t *testing.T) {
	d := Descriptor{
		ID:                7,
		Node:              "calc",
		Data:              []any{float64(1), float64(2)},
		Sender:            network.Local("client"),
		Topic:             "sum",
		HasSuccessHandler: true,
		IsRequest:         true,
	}

	buf, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": 7,
		"node": "calc",
		"data": [1, 2],
		"sender": "client",
		"topic": "sum",
		"hasSuccessHandler": true,
		"hasErrorHandler": false,
		"isRequest": true,
		"isReply": false,
		"isRefuse": false
	}`, string(buf))

	var decoded Descriptor
	require.NoError(t, json.Unmarshal(buf, &decoded))
	assert.Equal(t, d, decoded)
}

// TestDescriptor_Intent tests flag decoding
func TestDescriptor_Intent(t *testing.T) {
	assert.Equal(t, IntentRequest, Descriptor{IsRequest: true}.Intent())
	assert.Equal(t, IntentReply, Descriptor{IsReply: true}.Intent())
	assert.Equal(t, IntentRefuse, Descriptor{IsRefuse: true}.Intent())
	assert.Equal(t, "refuse", IntentRefuse.String())
}
