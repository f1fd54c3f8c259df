package middleware

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
)

// Renderer writes the body for non-redirect outcomes (Loading and Deny).
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request, status int, d Decision)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(w http.ResponseWriter, r *http.Request, status int, d Decision)

// Render calls f.
func (f RendererFunc) Render(w http.ResponseWriter, r *http.Request, status int, d Decision) {
	f(w, r, status, d)
}

// DefaultRenderer writes a minimal HTML panel, or JSON when the request
// prefers application/json.
type DefaultRenderer struct{}

var panelTemplate = template.Must(template.New("panel").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body><div class="panel panel-{{.Outcome}}"><h1>{{.Title}}</h1>{{if .Message}}<p>{{.Message}}</p>{{end}}</div></body></html>
`))

type panelData struct {
	Title   string
	Message string
	Outcome string
}

// Render implements Renderer.
func (DefaultRenderer) Render(w http.ResponseWriter, r *http.Request, status int, d Decision) {
	title := "Loading"
	if d.Outcome == Deny {
		title = "Access Denied"
	}

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"outcome": d.Outcome.String(),
			"error":   title,
			"message": d.Message,
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = panelTemplate.Execute(w, panelData{Title: title, Message: d.Message, Outcome: d.Outcome.String()})
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
