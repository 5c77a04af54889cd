package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Metadata is shown in the header of the rendered HTML report.
type Metadata struct {
	SprintID   int
	SprintName string
	StartDate  string
	EndDate    string
	TeamName   string
	Generated  time.Time
}

var mdConverter = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Meta.SprintName}} - Sprint Report</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; max-width: 860px; margin: 2em auto; color: #222; line-height: 1.5; }
header { border-bottom: 2px solid #0b5cad; margin-bottom: 1.5em; }
header h1 { margin-bottom: 0.2em; }
header p { color: #555; margin: 0.2em 0; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
footer { margin-top: 3em; font-size: 0.8em; color: #777; }
</style>
</head>
<body>
<header>
<h1>{{.Meta.SprintName}}</h1>
{{- if .Meta.TeamName}}
<p>{{.Meta.TeamName}}</p>
{{- end}}
<p>Sprint {{.Meta.SprintID}}{{if .Meta.StartDate}} &middot; {{.Meta.StartDate}} &rarr; {{.Meta.EndDate}}{{end}}</p>
</header>
<main>
{{.Body}}
</main>
<footer>Generated {{.Meta.Generated.Format "2006-01-02 15:04:05"}}</footer>
</body>
</html>
`))

// MarkdownToHTML converts a markdown fragment to HTML.
func MarkdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := mdConverter.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return buf.String(), nil
}

// RenderHTML produces a standalone HTML page for the report. Metadata is
// escaped; the converted report body is trusted.
func RenderHTML(md string, meta Metadata) (string, error) {
	body, err := MarkdownToHTML(md)
	if err != nil {
		return "", err
	}
	if meta.Generated.IsZero() {
		meta.Generated = time.Now()
	}
	meta.StartDate = shortDate(meta.StartDate)
	meta.EndDate = shortDate(meta.EndDate)

	var out bytes.Buffer
	err = pageTemplate.Execute(&out, struct {
		Meta Metadata
		Body template.HTML
	}{Meta: meta, Body: template.HTML(body)})
	if err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return out.String(), nil
}
