// Package prompt renders the text templates fed to language models.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/template"
)

// Template names.
const (
	RAGAnswer           = "rag/answer"
	TavilyExpansion     = "tavily/expansion"
	TavilySummarization = "tavily/summarization"
	AgentInstructions   = "agent/instructions"
)

//go:embed templates
var embedded embed.FS

var funcs = template.FuncMap{
	"inc":  func(i int) int { return i + 1 },
	"join": strings.Join,
}

// Renderer holds parsed templates keyed by name.
type Renderer struct {
	templates map[string]*template.Template
}

// New parses the embedded templates. When dir is set, files found there
// (same relative layout, .tmpl suffix) override the embedded ones.
func New(dir string) (*Renderer, error) {
	base, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, err
	}
	var override fs.FS
	if strings.TrimSpace(dir) != "" {
		override = os.DirFS(dir)
	}
	r := &Renderer{templates: make(map[string]*template.Template)}
	for _, name := range []string{RAGAnswer, TavilyExpansion, TavilySummarization, AgentInstructions} {
		src, err := readTemplate(name, override, base)
		if err != nil {
			return nil, err
		}
		tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

func readTemplate(name string, override, base fs.FS) (string, error) {
	file := name + ".tmpl"
	if override != nil {
		if data, err := fs.ReadFile(override, file); err == nil {
			return string(data), nil
		}
	}
	data, err := fs.ReadFile(base, file)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", name, err)
	}
	return string(data), nil
}

// Render executes the named template with data.
func (r *Renderer) Render(name string, data any) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
