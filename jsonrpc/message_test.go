package jsonrpc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLineWireShapes(t *testing.T) {
	tests := []struct {
		name string
		msg  *Request
		want string
	}{
		{
			name: "initialize",
			msg: NewRequest(0, MethodInitialize, InitializeParams{
				ProtocolVersion: ProtocolVersion,
				ClientInfo:      Implementation{Name: "test-client", Version: "1.0.0"},
			}),
			want: `{"jsonrpc":"2.0","method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test-client","version":"1.0.0"}},"id":0}` + "\n",
		},
		{
			name: "initialized notification",
			msg:  NewNotification(MethodInitialized, nil),
			want: `{"jsonrpc":"2.0","method":"notifications/initialized","params":{}}` + "\n",
		},
		{
			name: "tools call",
			msg:  NewRequest(2, MethodToolsCall, NewCallToolParams("notebook_list", nil)),
			want: `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"notebook_list","arguments":{}},"id":2}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeLine(tt.msg)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, string(got)); diff != "" {
				t.Errorf("EncodeLine mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeLine(t *testing.T) {
	res, err := DecodeLine([]byte(`{"jsonrpc":"2.0","id":2,"result":{"content":[]}}` + "\n"))
	require.NoError(t, err)

	id, ok := res.IDNum()
	assert.True(t, ok)
	assert.Equal(t, uint64(2), id)
	assert.True(t, res.HasOutcome())
	assert.False(t, res.IsNotification())
	assert.Equal(t, `{"jsonrpc":"2.0","id":2,"result":{"content":[]}}`, string(res.Raw))
}

func TestDecodeLineNotification(t *testing.T) {
	res, err := DecodeLine([]byte(`{"jsonrpc":"2.0","method":"notifications/message","params":{"level":"info"}}`))
	require.NoError(t, err)
	assert.True(t, res.IsNotification())
	assert.False(t, res.HasOutcome())
}

func TestDecodeLineNullID(t *testing.T) {
	res, err := DecodeLine([]byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`))
	require.NoError(t, err)

	_, ok := res.IDNum()
	assert.False(t, ok)
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeParseError, res.Error.Code)
	assert.EqualError(t, res.Error, "jsonrpc error -32700: Parse error")
}

func TestDecodeLineInvalid(t *testing.T) {
	for _, line := range []string{"", "\n", "not json\n", `["array"]`, `{"id":`} {
		_, err := DecodeLine([]byte(line))
		assert.Error(t, err, "line %q", line)
	}
}

func TestPrettyPreservesFields(t *testing.T) {
	raw := `{"jsonrpc":"2.0","id":2,"result":{"z":1,"a":"Тренды AI 2026","nested":{"b":[1,2]}}}`
	res, err := DecodeLine([]byte(raw))
	require.NoError(t, err)

	pretty, err := res.Pretty()
	require.NoError(t, err)

	want := `{
  "jsonrpc": "2.0",
  "id": 2,
  "result": {
    "z": 1,
    "a": "Тренды AI 2026",
    "nested": {
      "b": [
        1,
        2
      ]
    }
  }
}`
	assert.Equal(t, want, string(pretty))
}

func TestToolResultDecode(t *testing.T) {
	var out struct {
		Notebooks []struct {
			ID string `json:"id"`
		} `json:"notebooks"`
	}

	text := ToolResult{Content: []Content{{Type: "text", Text: `{"notebooks":[{"id":"nb-1"}]}`}}}
	require.NoError(t, text.Decode(&out))
	assert.Equal(t, "nb-1", out.Notebooks[0].ID)

	structured := ToolResult{
		Content:           []Content{{Type: "text", Text: "ignored"}},
		StructuredContent: []byte(`{"notebooks":[{"id":"nb-2"}]}`),
	}
	require.NoError(t, structured.Decode(&out))
	assert.Equal(t, "nb-2", out.Notebooks[0].ID)

	empty := ToolResult{}
	assert.Error(t, empty.Decode(&out))
}
