// Package overview scripts the audio overview tool sequence over a handshaken session.
package overview

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xizhibei/go-stdio-rpc/jsonrpc"
)

var (
	// ErrToolFailed is returned when a tool answers with isError set.
	ErrToolFailed = errors.New("[STDIORPC] tool reported an error")

	// ErrUnexpectedPayload is returned when a tool payload lacks the expected fields.
	ErrUnexpectedPayload = errors.New("[STDIORPC] unexpected tool payload")
)

var validate = validator.New()

// Caller invokes one tool. *stdiorpc.Session implements it.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*jsonrpc.Response, error)
}

// Tools names the tools used by the flow.
type Tools struct {
	ListNotebooks  string `mapstructure:"list_notebooks" validate:"required"`
	CreateNotebook string `mapstructure:"create_notebook" validate:"required"`
	GetNotebook    string `mapstructure:"get_notebook" validate:"required"`
	AddText        string `mapstructure:"add_text" validate:"required"`
	CreateAudio    string `mapstructure:"create_audio" validate:"required"`
}

func DefaultTools() Tools {
	return Tools{
		ListNotebooks:  "notebook_list",
		CreateNotebook: "notebook_create",
		GetNotebook:    "notebook_get",
		AddText:        "notebook_add_text",
		CreateAudio:    "audio_overview_create",
	}
}

// Plan describes the notebook to use and the text source to seed it with.
type Plan struct {
	Title       string `mapstructure:"title" validate:"required"`
	SourceTitle string `mapstructure:"source_title" validate:"required"`
	SourceText  string `mapstructure:"source_text" validate:"required"`
	Tools       Tools  `mapstructure:"tools"`
}

const defaultSourceText = `Top AI Trends 2025-2026 Summary:
1. Agentic AI: Autonomous agents that can plan and execute multi-step tasks.
2. AI as Infrastructure: Deep integration into all software.
3. ROI Focus: Tangible business value over hype.
4. Energy Efficiency: Green AI and specialized hardware.
5. Personalization: Smaller, more specialized models for local use.
`

func DefaultPlan() Plan {
	return Plan{
		Title:       "Тренды AI 2026",
		SourceTitle: "AI Trends Summary",
		SourceText:  defaultSourceText,
		Tools:       DefaultTools(),
	}
}

func (p *Plan) Validate() error {
	if err := validate.Struct(p); err != nil {
		return errors.Wrap(err, "invalid overview plan")
	}
	return nil
}

type Notebook struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Source struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Type  string `json:"type,omitempty"`
}

// Result reports what the flow did. Audio is the raw response of the final call.
type Result struct {
	Notebook    Notebook
	Created     bool
	SourceAdded bool
	SourceIDs   []string
	Audio       *jsonrpc.Response
}

// Run finds or creates the notebook named plan.Title, seeds it with the plan's
// text source when it has none and triggers an audio overview over its sources.
func Run(ctx context.Context, c Caller, plan Plan) (*Result, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	log := zap.S().With("module", "stdiorpc.overview")
	tools := plan.Tools
	result := &Result{}

	payload, err := callTool(ctx, c, tools.ListNotebooks, nil)
	if err != nil {
		return nil, err
	}
	notebooks, err := parseNotebooks(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", tools.ListNotebooks)
	}

	nb, ok := findNotebook(notebooks, plan.Title)
	if !ok {
		log.Infof("Creating notebook %q", plan.Title)
		payload, err = callTool(ctx, c, tools.CreateNotebook, map[string]any{"title": plan.Title})
		if err != nil {
			return nil, err
		}
		if nb, err = parseNotebook(payload); err != nil {
			return nil, errors.Wrapf(err, "%s", tools.CreateNotebook)
		}
		if nb.Title == "" {
			nb.Title = plan.Title
		}
		result.Created = true
	}
	result.Notebook = nb
	log.Infof("Notebook ID: %s", nb.ID)

	sources, err := getSources(ctx, c, tools.GetNotebook, nb.ID)
	if err != nil {
		return nil, err
	}

	if len(sources) == 0 {
		log.Infof("Adding source %q", plan.SourceTitle)
		_, err = callTool(ctx, c, tools.AddText, map[string]any{
			"notebook_id": nb.ID,
			"title":       plan.SourceTitle,
			"text":        plan.SourceText,
		})
		if err != nil {
			return nil, err
		}
		result.SourceAdded = true

		if sources, err = getSources(ctx, c, tools.GetNotebook, nb.ID); err != nil {
			return nil, err
		}
	}

	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.ID != "" {
			ids = append(ids, s.ID)
		}
	}
	result.SourceIDs = ids

	log.Infof("Triggering audio overview over %d sources", len(ids))
	res, err := c.CallTool(ctx, tools.CreateAudio, map[string]any{
		"notebook_id": nb.ID,
		"source_ids":  ids,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", tools.CreateAudio)
	}
	if _, err := toolResult(tools.CreateAudio, res); err != nil {
		return nil, err
	}
	result.Audio = res

	return result, nil
}

func findNotebook(notebooks []Notebook, title string) (Notebook, bool) {
	for _, nb := range notebooks {
		if nb.Title == title {
			return nb, true
		}
	}
	return Notebook{}, false
}

func getSources(ctx context.Context, c Caller, tool, notebookID string) ([]Source, error) {
	payload, err := callTool(ctx, c, tool, map[string]any{"notebook_id": notebookID})
	if err != nil {
		return nil, err
	}
	sources, err := parseSources(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", tool)
	}
	return sources, nil
}

func callTool(ctx context.Context, c Caller, name string, args map[string]any) (json.RawMessage, error) {
	res, err := c.CallTool(ctx, name, args)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", name)
	}

	tr, err := toolResult(name, res)
	if err != nil {
		return nil, err
	}

	var payload json.RawMessage
	if err := tr.Decode(&payload); err != nil {
		return nil, errors.Wrapf(err, "decode %s payload", name)
	}
	return payload, nil
}

func toolResult(name string, res *jsonrpc.Response) (*jsonrpc.ToolResult, error) {
	var tr jsonrpc.ToolResult
	if err := res.DecodeResult(&tr); err != nil {
		return nil, errors.Wrapf(err, "decode %s result", name)
	}
	if tr.IsError {
		return nil, errors.Wrapf(ErrToolFailed, "%s: %s", name, tr.Text())
	}
	return &tr, nil
}

// parseNotebooks accepts a bare array or an object with a notebooks array.
func parseNotebooks(payload json.RawMessage) ([]Notebook, error) {
	var notebooks []Notebook
	if err := unwrap(payload, "notebooks", &notebooks); err != nil {
		return nil, err
	}
	return notebooks, nil
}

// parseNotebook accepts {"id":...}, {"notebook_id":...} or {"notebook":{...}}.
func parseNotebook(payload json.RawMessage) (Notebook, error) {
	var obj struct {
		Notebook
		NotebookID string    `json:"notebook_id"`
		Nested     *Notebook `json:"notebook"`
	}
	if err := json.Unmarshal(payload, &obj); err != nil {
		return Notebook{}, errors.Mark(errors.Wrap(err, "notebook"), ErrUnexpectedPayload)
	}

	nb := obj.Notebook
	if obj.Nested != nil {
		nb = *obj.Nested
	}
	if nb.ID == "" {
		nb.ID = obj.NotebookID
	}
	if nb.ID == "" {
		return Notebook{}, errors.Wrap(ErrUnexpectedPayload, "notebook without id")
	}
	return nb, nil
}

// parseSources accepts a bare array, {"sources":[...]} or {"notebook":{"sources":[...]}}.
func parseSources(payload json.RawMessage) ([]Source, error) {
	var nested struct {
		Notebook *struct {
			Sources []Source `json:"sources"`
		} `json:"notebook"`
	}
	if isObject(payload) {
		if err := json.Unmarshal(payload, &nested); err == nil && nested.Notebook != nil {
			return nested.Notebook.Sources, nil
		}
	}

	var sources []Source
	if err := unwrap(payload, "sources", &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// unwrap decodes payload into v when it is an array, or payload[key] when it is an object.
// A missing key leaves v empty.
func unwrap(payload json.RawMessage, key string, v any) error {
	if !isObject(payload) {
		if err := json.Unmarshal(payload, v); err != nil {
			return errors.Mark(errors.Wrap(err, key), ErrUnexpectedPayload)
		}
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return errors.Mark(errors.Wrap(err, key), ErrUnexpectedPayload)
	}
	raw, ok := obj[key]
	if !ok || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Mark(errors.Wrap(err, key), ErrUnexpectedPayload)
	}
	return nil
}

func isObject(payload json.RawMessage) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
