package overview

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xizhibei/go-stdio-rpc/jsonrpc"
)

type call struct {
	Name string
	Args map[string]any
}

// fakeCaller answers each tool with the next queued text payload.
type fakeCaller struct {
	replies map[string][]string
	calls   []call
}

func (f *fakeCaller) CallTool(_ context.Context, name string, args map[string]any) (*jsonrpc.Response, error) {
	f.calls = append(f.calls, call{Name: name, Args: args})

	queue := f.replies[name]
	if len(queue) == 0 {
		return nil, fmt.Errorf("unexpected call %s", name)
	}
	text := queue[0]
	f.replies[name] = queue[1:]

	result, _ := json.Marshal(jsonrpc.ToolResult{Content: []jsonrpc.Content{{Type: "text", Text: text}}})
	return &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: json.RawMessage("1"), Result: result}, nil
}

func (f *fakeCaller) names() []string {
	names := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		names = append(names, c.Name)
	}
	return names
}

func TestRunExistingNotebookWithSources(t *testing.T) {
	c := &fakeCaller{replies: map[string][]string{
		"notebook_list":         {`{"notebooks":[{"id":"nb-0","title":"Other"},{"id":"nb-1","title":"Тренды AI 2026"}]}`},
		"notebook_get":          {`{"sources":[{"id":"s-1"},{"id":""},{"id":"s-2"}]}`},
		"audio_overview_create": {`{"status":"started"}`},
	}}

	res, err := Run(context.Background(), c, DefaultPlan())
	require.NoError(t, err)

	assert.Equal(t, []string{"notebook_list", "notebook_get", "audio_overview_create"}, c.names())
	assert.Equal(t, "nb-1", res.Notebook.ID)
	assert.False(t, res.Created)
	assert.False(t, res.SourceAdded)
	assert.Equal(t, []string{"s-1", "s-2"}, res.SourceIDs)
	assert.Equal(t, map[string]any{"notebook_id": "nb-1", "source_ids": []string{"s-1", "s-2"}}, c.calls[2].Args)
	require.NotNil(t, res.Audio)
}

func TestRunCreatesNotebookAndSource(t *testing.T) {
	c := &fakeCaller{replies: map[string][]string{
		"notebook_list":         {`[]`},
		"notebook_create":       {`{"notebook":{"id":"nb-new"}}`},
		"notebook_get":          {`{"sources":[]}`, `{"notebook":{"sources":[{"id":"s-9","title":"AI Trends Summary"}]}}`},
		"notebook_add_text":     {`{"ok":true}`},
		"audio_overview_create": {`{"status":"started"}`},
	}}

	plan := DefaultPlan()
	res, err := Run(context.Background(), c, plan)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"notebook_list",
		"notebook_create",
		"notebook_get",
		"notebook_add_text",
		"notebook_get",
		"audio_overview_create",
	}, c.names())

	assert.True(t, res.Created)
	assert.True(t, res.SourceAdded)
	assert.Equal(t, Notebook{ID: "nb-new", Title: plan.Title}, res.Notebook)
	assert.Equal(t, []string{"s-9"}, res.SourceIDs)
	assert.Equal(t, map[string]any{"title": plan.Title}, c.calls[1].Args)
	assert.Equal(t, plan.SourceText, c.calls[3].Args["text"])
}

func TestRunToolError(t *testing.T) {
	c := &fakeCaller{replies: map[string][]string{}}
	c.replies["notebook_list"] = []string{"ignored"}

	failing := &erroringCaller{fakeCaller: c}
	_, err := Run(context.Background(), failing, DefaultPlan())
	assert.True(t, errors.Is(err, ErrToolFailed), "%v", err)
}

type erroringCaller struct {
	*fakeCaller
}

func (e *erroringCaller) CallTool(ctx context.Context, name string, args map[string]any) (*jsonrpc.Response, error) {
	res, err := e.fakeCaller.CallTool(ctx, name, args)
	if err != nil {
		return nil, err
	}
	result, _ := json.Marshal(jsonrpc.ToolResult{
		Content: []jsonrpc.Content{{Type: "text", Text: "authentication expired"}},
		IsError: true,
	})
	res.Result = result
	return res, nil
}

func TestRunPeerError(t *testing.T) {
	c := &fakeCaller{replies: map[string][]string{}}
	_, err := Run(context.Background(), c, DefaultPlan())
	assert.ErrorContains(t, err, "unexpected call notebook_list")
}

func TestPlanValidate(t *testing.T) {
	plan := DefaultPlan()
	require.NoError(t, plan.Validate())

	plan.Tools.CreateAudio = ""
	assert.Error(t, plan.Validate())

	plan = DefaultPlan()
	plan.Title = ""
	_, err := Run(context.Background(), &fakeCaller{}, plan)
	assert.Error(t, err)
}

func TestParseNotebook(t *testing.T) {
	for _, payload := range []string{
		`{"id":"nb-1","title":"T"}`,
		`{"notebook_id":"nb-1","title":"T"}`,
		`{"notebook":{"id":"nb-1","title":"T"}}`,
	} {
		nb, err := parseNotebook(json.RawMessage(payload))
		require.NoError(t, err, payload)
		assert.Equal(t, "nb-1", nb.ID, payload)
	}

	_, err := parseNotebook(json.RawMessage(`{"title":"T"}`))
	assert.True(t, errors.Is(err, ErrUnexpectedPayload))
}

func TestParseSources(t *testing.T) {
	sources, err := parseSources(json.RawMessage(`[{"id":"a"}]`))
	require.NoError(t, err)
	assert.Equal(t, []Source{{ID: "a"}}, sources)

	sources, err = parseSources(json.RawMessage(`{"title":"no sources yet"}`))
	require.NoError(t, err)
	assert.Empty(t, sources)

	_, err = parseSources(json.RawMessage(`{"sources":"oops"}`))
	assert.True(t, errors.Is(err, ErrUnexpectedPayload))
}
