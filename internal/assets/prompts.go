// Package assets holds the prompt templates and preset catalogue embedded
// into every editor binary.
//
// Prompts live as text files under prompts/ so they can be reviewed and
// tuned without touching Go code.
package assets

import (
	"bytes"
	_ "embed"
	"text/template"
)

//go:embed prompts/analysis.txt
var analysisTemplate string

//go:embed prompts/edit-plan.txt
var editPlanTemplate string

// PresetsYAML is the catalogue of model presets, quick actions, prompt
// suggestions and style presets.
//
//go:embed presets.yaml
var PresetsYAML []byte

var (
	analysisTmpl = template.Must(template.New("analysis").Parse(analysisTemplate))
	editPlanTmpl = template.Must(template.New("editPlan").Parse(editPlanTemplate))
)

// PromptData holds the dynamic values injected into prompt templates.
type PromptData struct {
	// MetadataContext is a one-line EXIF summary, or "" when the image has none.
	MetadataContext string
	// Instruction is the user's edit request.
	Instruction string
}

// RenderAnalysisPrompt renders the JSON analysis prompt, adding camera
// metadata when available.
func RenderAnalysisPrompt(metadataContext string) string {
	return renderTemplate(analysisTmpl, PromptData{MetadataContext: metadataContext})
}

// RenderEditPlanPrompt renders the prompt asking for step-by-step editing
// instructions that achieve instruction.
func RenderEditPlanPrompt(instruction string) string {
	return renderTemplate(editPlanTmpl, PromptData{Instruction: instruction})
}

func renderTemplate(tmpl *template.Template, data PromptData) string {
	var buf bytes.Buffer
	// Execution cannot fail for these templates; a partial render is returned if it does.
	_ = tmpl.Execute(&buf, data)
	return buf.String()
}
