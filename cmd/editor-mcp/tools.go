package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fpang/ai-image-editor/internal/chat"
	"github.com/fpang/ai-image-editor/internal/cli"
	"github.com/fpang/ai-image-editor/internal/export"
	"github.com/fpang/ai-image-editor/internal/presets"
	"github.com/fpang/ai-image-editor/internal/workflow"
)

// tools binds MCP tool handlers to one workflow.
type tools struct {
	wf        *workflow.Workflow
	outputDir string
	presets   *presets.Catalogue
}

func newTools(wf *workflow.Workflow, outputDir string) *tools {
	return &tools{wf: wf, outputDir: outputDir, presets: presets.Builtin()}
}

type openInput struct {
	Path string `json:"path" jsonschema:"absolute path of a JPEG, PNG or WebP image"`
}

type toggleInput struct {
	SuggestionID string `json:"suggestionId" jsonschema:"id of a suggestion returned by analyze_image"`
}

type instructionInput struct {
	Text string `json:"text" jsonschema:"free-text edit instruction; empty clears it"`
}

type saveInput struct {
	Dir string `json:"dir,omitempty" jsonschema:"output directory; defaults to the configured one"`
}

type modeInput struct {
	Mode string `json:"mode" jsonschema:"preset mode: Stable, Creative or High Fidelity"`
}

type emptyInput struct{}

func (t *tools) register(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{Name: "open_image", Description: "Load an image file into the editing session"}, t.open)
	mcp.AddTool(s, &mcp.Tool{Name: "analyze_image", Description: "Describe the image and suggest edits"}, t.analyze)
	mcp.AddTool(s, &mcp.Tool{Name: "toggle_suggestion", Description: "Select or deselect a suggested edit"}, t.toggle)
	mcp.AddTool(s, &mcp.Tool{Name: "set_instruction", Description: "Set the custom edit instruction"}, t.setInstruction)
	mcp.AddTool(s, &mcp.Tool{Name: "generate_edit", Description: "Apply the composed prompt and return the edited image"}, t.generate)
	mcp.AddTool(s, &mcp.Tool{Name: "edit_instructions", Description: "Step-by-step manual instructions for the composed prompt"}, t.plan)
	mcp.AddTool(s, &mcp.Tool{Name: "refine_result", Description: "Make the current result the source of the next edit"}, t.refine)
	mcp.AddTool(s, &mcp.Tool{Name: "undo", Description: "Step back through the edit history"}, t.undo)
	mcp.AddTool(s, &mcp.Tool{Name: "redo", Description: "Step forward through the edit history"}, t.redo)
	mcp.AddTool(s, &mcp.Tool{Name: "save_result", Description: "Write the current result as edited-image.png"}, t.save)
	mcp.AddTool(s, &mcp.Tool{Name: "apply_mode", Description: "Apply a preset mode to the session's model settings"}, t.applyMode)
	mcp.AddTool(s, &mcp.Tool{Name: "get_state", Description: "Return the session state"}, t.state)
}

func textResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}, nil, nil
}

// errorResult reports a tool failure to the model rather than as a
// protocol error.
func errorResult(err error) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: chat.UserMessage(err)}},
	}, nil, nil
}

func (t *tools) open(_ context.Context, _ *mcp.CallToolRequest, in openInput) (*mcp.CallToolResult, any, error) {
	path, err := cli.ResolveImagePath(in.Path)
	if err != nil {
		return errorResult(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errorResult(err)
	}
	img, err := t.wf.Upload(filepath.Base(path), "", data)
	if err != nil {
		return errorResult(err)
	}
	return textResult(map[string]any{
		"filename": img.Filename,
		"width":    img.Width,
		"height":   img.Height,
		"mimeType": img.MIMEType,
		"metadata": img.Metadata,
	})
}

func (t *tools) analyze(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	analysis, err := t.wf.Analyze(ctx)
	if err != nil {
		return errorResult(err)
	}
	return textResult(analysis)
}

func (t *tools) toggle(_ context.Context, _ *mcp.CallToolRequest, in toggleInput) (*mcp.CallToolResult, any, error) {
	if _, ok := t.wf.State().Analysis.Suggestion(in.SuggestionID); !ok {
		return errorResult(fmt.Errorf("unknown suggestion %q", in.SuggestionID))
	}
	selected, err := t.wf.Toggle(in.SuggestionID)
	if err != nil {
		return errorResult(err)
	}
	return textResult(map[string]any{"selected": selected, "prompt": t.wf.Prompt()})
}

func (t *tools) setInstruction(_ context.Context, _ *mcp.CallToolRequest, in instructionInput) (*mcp.CallToolResult, any, error) {
	if err := t.wf.SetFreeText(in.Text); err != nil {
		return errorResult(err)
	}
	return textResult(map[string]any{"prompt": t.wf.Prompt()})
}

func (t *tools) generate(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	result, err := t.wf.Generate(ctx)
	if err != nil {
		return errorResult(err)
	}
	decoded, err := export.DecodeDataURL(result)
	if err != nil {
		return errorResult(err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{
		&mcp.ImageContent{Data: decoded.Data, MIMEType: decoded.MIMEType},
		&mcp.TextContent{Text: "Edit applied. Use save_result to write it to disk or refine_result to keep editing."},
	}}, nil, nil
}

func (t *tools) plan(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	plan, err := t.wf.EditPlan(ctx)
	if err != nil {
		return errorResult(err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: plan}}}, nil, nil
}

func (t *tools) refine(_ context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	if err := t.wf.Refine(); err != nil {
		return errorResult(err)
	}
	return t.stateResult()
}

func (t *tools) undo(_ context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	if _, err := t.wf.Undo(); err != nil {
		return errorResult(err)
	}
	return t.stateResult()
}

func (t *tools) redo(_ context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	if _, err := t.wf.Redo(); err != nil {
		return errorResult(err)
	}
	return t.stateResult()
}

func (t *tools) save(_ context.Context, _ *mcp.CallToolRequest, in saveInput) (*mcp.CallToolResult, any, error) {
	result := t.wf.Result()
	if result == "" {
		return errorResult(workflow.ErrNoResult)
	}
	dir := in.Dir
	if dir == "" {
		dir = t.outputDir
	}
	path, err := export.Download(result, dir)
	if err != nil {
		return errorResult(err)
	}
	return textResult(map[string]string{"path": path})
}

func (t *tools) applyMode(_ context.Context, _ *mcp.CallToolRequest, in modeInput) (*mcp.CallToolResult, any, error) {
	cfg, err := t.presets.ApplyMode(t.wf.Config(), in.Mode)
	if err != nil {
		return errorResult(err)
	}
	if err := t.wf.SetConfig(cfg); err != nil {
		return errorResult(err)
	}
	return textResult(cfg)
}

func (t *tools) state(_ context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	return t.stateResult()
}

// stateResult omits the result data URL, which is returned by generate_edit.
func (t *tools) stateResult() (*mcp.CallToolResult, any, error) {
	st := t.wf.State()
	hasResult := st.Result != ""
	st.Result = ""
	return textResult(map[string]any{"state": st, "hasResult": hasResult})
}
