package handlers

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"html/template"
	"net/http"
	"sort"
	"strings"
)

// Paths the API document and its rendered page are served under.
const (
	OpenAPIPath = "/v1/openapi.json"
	DocsPath    = "/v1/docs"
)

//go:embed openapi.json
var openAPISpec []byte

// docsPage is rendered once from the embedded document. The route index
// lets the page work without the redoc bundle.
var docsPage = mustRenderDocs(openAPISpec)

type docsRoute struct {
	Method  string
	Path    string
	Summary string
}

type docsData struct {
	Title   string
	Version string
	SpecURL string
	Routes  []docsRoute
}

var docsTemplate = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>{{.Title}} {{.Version}}</title>
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <style>
      body { margin: 0; font-family: sans-serif; }
      nav { padding: 1rem 2rem; border-bottom: 1px solid #ddd; }
      nav code { margin-right: .5rem; }
      redoc { display: block; height: 100vh; }
    </style>
  </head>
  <body>
    <nav>
      <h1>{{.Title}} <small>{{.Version}}</small></h1>
      <p>Machine-readable document: <a href="{{.SpecURL}}">{{.SpecURL}}</a></p>
      <ul>
      {{- range .Routes}}
        <li><code>{{.Method}}</code><code>{{.Path}}</code>{{.Summary}}</li>
      {{- end}}
      </ul>
    </nav>
    <redoc spec-url="{{.SpecURL}}"></redoc>
    <script src="https://cdn.jsdelivr.net/npm/redoc@2.2.0/bundles/redoc.standalone.js"></script>
  </body>
</html>`))

func mustRenderDocs(spec []byte) []byte {
	var doc struct {
		Info struct {
			Title   string `json:"title"`
			Version string `json:"version"`
		} `json:"info"`
		Paths map[string]map[string]struct {
			Summary string `json:"summary"`
		} `json:"paths"`
	}
	if err := json.Unmarshal(spec, &doc); err != nil {
		panic("handlers: embedded openapi.json: " + err.Error())
	}

	data := docsData{Title: doc.Info.Title, Version: doc.Info.Version, SpecURL: OpenAPIPath}
	for path, ops := range doc.Paths {
		for method, op := range ops {
			data.Routes = append(data.Routes, docsRoute{Method: strings.ToUpper(method), Path: path, Summary: op.Summary})
		}
	}
	sort.Slice(data.Routes, func(i, j int) bool {
		if data.Routes[i].Path != data.Routes[j].Path {
			return data.Routes[i].Path < data.Routes[j].Path
		}
		return data.Routes[i].Method < data.Routes[j].Method
	})

	var buf bytes.Buffer
	if err := docsTemplate.Execute(&buf, data); err != nil {
		panic("handlers: render docs: " + err.Error())
	}
	return buf.Bytes()
}

func (a *App) OpenAPIJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPISpec)
}

func (a *App) OpenAPIDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(docsPage)
}
