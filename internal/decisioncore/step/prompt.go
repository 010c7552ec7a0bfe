// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package step

import (
	"bytes"
	"sort"
	"strings"
	"text/template"

	"github.com/agentcore/decisioncore/internal/decisioncore/tooling"
)

// systemPromptTemplate renders the registry's current tool catalog and
// the session's project context into the system prompt handed to the
// model collaborator each iteration (§4.6 step 2).
const systemPromptTemplate = `You are an autonomous coding agent. Each reply must invoke exactly one tool, or none if you are done.

## Available tools
{{range .Tools}}
### {{.Name}}
{{.Description}}
{{- range .Args}}
- {{.Name}} ({{.Type}}{{if .Required}}, required{{end}}): {{.Description}}
{{- end}}
{{end}}
## Workspace
{{- if .WorkspaceRoot}}
Root: {{.WorkspaceRoot}}
{{- end}}
{{- if .ProjectLabels}}
Labels: {{join .ProjectLabels ", "}}
{{- end}}
{{- if .OpenFiles}}
Open files: {{join .OpenFiles ", "}}
{{- end}}

## Output format
Reply with a single block whose tag is the tool's name and whose children are its arguments, e.g. <tool_name><arg>value</arg></tool_name>. Invoke at most one tool per reply. If the task needs no further tool, reply with plain text and no block.`

type promptArg struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

type promptTool struct {
	Name        string
	Description string
	Args        []promptArg
}

type promptData struct {
	Tools         []promptTool
	WorkspaceRoot string
	ProjectLabels []string
	OpenFiles     []string
}

// PromptBuilder renders the system prompt from a tool catalog and a
// session's read-only view, following the teacher's text/template-based
// PromptBuilder (services/code_buddy/agent/routing/prompt.go).
type PromptBuilder struct {
	tmpl *template.Template
}

// NewPromptBuilder parses the system prompt template.
func NewPromptBuilder() (*PromptBuilder, error) {
	tmpl, err := template.New("system").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Parse(systemPromptTemplate)
	if err != nil {
		return nil, err
	}
	return &PromptBuilder{tmpl: tmpl}, nil
}

// BuildSystemPrompt renders the prompt for the given tool catalog and
// session view.
func (b *PromptBuilder) BuildSystemPrompt(tools []tooling.Descriptor, view tooling.SessionView) (string, error) {
	data := promptData{Tools: make([]promptTool, 0, len(tools))}
	if view != nil {
		data.WorkspaceRoot = view.WorkspaceRoot()
		data.ProjectLabels = view.ProjectLabels()
		data.OpenFiles = view.OpenFiles()
	}

	for _, d := range tools {
		argNames := make([]string, 0, len(d.ArgumentSchema))
		for name := range d.ArgumentSchema {
			argNames = append(argNames, name)
		}
		sort.Strings(argNames)

		args := make([]promptArg, 0, len(argNames))
		for _, name := range argNames {
			spec := d.ArgumentSchema[name]
			args = append(args, promptArg{
				Name:        name,
				Type:        spec.Type.String(),
				Description: spec.Description,
				Required:    spec.Required,
			})
		}

		data.Tools = append(data.Tools, promptTool{
			Name:        d.Name,
			Description: d.Description,
			Args:        args,
		})
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
