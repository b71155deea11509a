package server

import (
	"html/template"
	"net/http"
	"strings"

	"baagent/internal/approval"
	"baagent/internal/logging"
)

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Heading}}</h1>
{{- range .Lines}}
<p>{{.}}</p>
{{- end}}
{{- if .Warning}}
<p style="color:red;">{{.Warning}}</p>
{{- end}}
</body></html>
`))

type page struct {
	Title   string
	Heading string
	Lines   []string
	Warning string
}

func writePage(w http.ResponseWriter, status int, p page) {
	if p.Title == "" {
		p.Title = p.Heading
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTmpl.Execute(w, p); err != nil {
		logging.HTTPError("render page %q: %v", p.Heading, err)
	}
}

var (
	indexPage = page{
		Title:   "AI Business Analyst",
		Heading: "AI Business Analyst Backend is running!",
	}
	invalidApprovalPage = page{
		Heading: "Error: Invalid or expired approval request.",
	}
	invalidDecisionPage = page{
		Heading: "Error: Decision must be approved or rejected.",
	}
	processedPage = page{
		Heading: "This request has already been processed.",
	}
)

// decisionPage is the confirmation shown after a decision link is followed.
func decisionPage(decision, final approval.Status) page {
	p := page{
		Title:   "Thank you",
		Heading: "Thank you!",
		Lines:   []string{"The request has been recorded as: " + capitalize(string(decision)) + "."},
	}
	switch final {
	case approval.StatusApprovedAndCreated:
		p.Lines = append(p.Lines, "Work items have been successfully created in Azure DevOps.")
	case approval.StatusADOFailed:
		p.Warning = "However, there was an error creating the work items in Azure DevOps. Please check the server logs."
	}
	p.Lines = append(p.Lines, "You can now close this window.")
	return p
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
