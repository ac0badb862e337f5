package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/morezero/servicebus/pkg/bus"
	"github.com/morezero/servicebus/pkg/codec"
	"github.com/morezero/servicebus/pkg/message"
	"github.com/morezero/servicebus/pkg/service"
	"github.com/morezero/servicebus/pkg/transport"
)

const handlersLogPrefix = "server:handlers"

// InvokePath prefixes the HTTP invoke API: InvokePath{name}/{method}[/{arg}...].
const InvokePath = "/api/v1/services/"

const maxInvokeBody = 1 << 20

// routes builds the HTTP mux of a runtime.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/service/", s.handleServiceDetail())
	mux.Handle(transport.MessagesPath, transport.Handler(s.rt))
	mux.Handle(transport.IDPath, transport.IDHandler(s.rt))
	mux.HandleFunc(InvokePath, s.handleInvoke())
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - response encode: %v", handlersLogPrefix, err))
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		h := s.rt.Health(ctx)
		status := http.StatusOK
		if h.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
	}
}

// handleInvoke calls a method over HTTP. GET takes arguments from the path
// segments after the method, each parsed as JSON and falling back to the
// raw string. POST appends the arguments of a JSON array body.
func (s *Server) handleInvoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			w.Header().Set("Allow", "GET, POST")
			writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
			return
		}

		parts := strings.Split(strings.TrimPrefix(r.URL.EscapedPath(), InvokePath), "/")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "expected " + InvokePath + "{name}/{method}"})
			return
		}

		segments := make([]string, 0, len(parts))
		for _, p := range parts {
			v, err := url.PathUnescape(p)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
				return
			}
			segments = append(segments, v)
		}
		name, method := segments[0], segments[1]
		args := pathArgs(segments[2:])

		if r.Method == http.MethodPost {
			body, err := readArgs(r.Body)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
				return
			}
			args = append(args, body...)
		}

		fullname := codec.GetFullName(name, s.rt.ID())
		if id, _ := codec.GetID(fullname); id == s.rt.ID() {
			svc, ok := s.rt.GetService(fullname)
			if !ok {
				writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("service %s not found", fullname)})
				return
			}
			if m, ok := svc.(interface{ HasMethod(string) bool }); ok && !m.HasMethod(method) {
				writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("%s has no method %s", fullname, method)})
				return
			}
		}

		result := s.rt.HandleMessage(message.New(fullname, method, args...), "")
		writeJSON(w, http.StatusOK, result)
	}
}

func pathArgs(segments []string) []any {
	args := make([]any, 0, len(segments))
	for _, seg := range segments {
		var v any
		if err := json.Unmarshal([]byte(seg), &v); err != nil {
			v = seg
		}
		args = append(args, v)
	}
	return args
}

func readArgs(body io.Reader) ([]any, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxInvokeBody))
	if err != nil {
		return nil, fmt.Errorf("%s - read body: %w", handlersLogPrefix, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var args []any
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("%s - body must be a JSON array of arguments: %w", handlersLogPrefix, err)
	}
	return args, nil
}

// homePageTemplate is the HTML for the runtime home page.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.FullName}}</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>{{.FullName}}</h1>
  <p class="meta">Runtime health, services, routes and connections.</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>Config store: {{if .Health.Checks.Store}}<span class="stat">OK</span>{{else}}<span class="status-unhealthy">Failed</span>{{end}}</p>
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Services</h2>
    <p>Total services: <span class="stat">{{len .Services}}</span></p>
    {{if .Services}}
    <table>
      <thead>
        <tr><th>Service</th><th>Type</th><th>Version</th><th>Ready</th></tr>
      </thead>
      <tbody>
        {{range .Services}}
        <tr>
          <td><a href="/service/{{.FullName}}">{{.FullName}}</a></td>
          <td>{{.TypeKey}}</td>
          <td>{{.Version}}</td>
          <td>{{.Ready}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
    <p>Startable types: {{if .Types}}{{range $i, $t := .Types}}{{if $i}}, {{end}}<code>{{$t}}</code>{{end}}{{else}}none{{end}}</p>
  </section>

  <section>
    <h2>Routes</h2>
    {{if not .Routes}}
    <p>No routes learned.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Remote id</th><th>Connection</th><th>Gateway</th></tr>
      </thead>
      <tbody>
        {{range $id, $route := .Routes}}
        <tr><td>{{$id}}</td><td>{{$route.GatewayID}}</td><td>{{$route.Gateway}}</td></tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>

  <section>
    <h2>Connections</h2>
    {{if not .Connections}}
    <p>No open connections.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Client id</th><th>Type</th><th>Direction</th></tr>
      </thead>
      <tbody>
        {{range .Connections}}
        <tr><td>{{.ClientID}}</td><td>{{.Type}}</td><td>{{.Direction}}</td></tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

// serviceDetailPageTemplate is the HTML for a single service.
const serviceDetailPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Data.FullName}}</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; vertical-align: top; }
    th { background: #f0f4f8; color: #0066cc; width: 140px; }
    section { margin-bottom: 2rem; }
    pre { background: #f5f5f5; padding: 0.75rem; overflow-x: auto; font-size: 0.85rem; margin: 0.25rem 0; border: 1px solid #eee; }
    .back { margin-bottom: 1rem; }
    .actions { margin: 1rem 0; }
    .btn { display: inline-block; padding: 0.5rem 1rem; background: #0066cc; color: #fff; text-decoration: none; border-radius: 4px; }
  </style>
</head>
<body>
  <p class="back"><a href="/">← Back to runtime</a></p>
  <h1>{{.Data.FullName}}</h1>
  <p class="actions"><a href="/service/{{.Data.FullName}}/docs" class="btn">View API (Swagger)</a></p>

  <section>
    <h2>Details</h2>
    <table>
      <tr><th>Name</th><td>{{.Data.Name}}</td></tr>
      <tr><th>Runtime id</th><td>{{.Data.ID}}</td></tr>
      <tr><th>Type</th><td>{{.Data.TypeKey}}</td></tr>
      <tr><th>Version</th><td>{{.Data.Version}}</td></tr>
      <tr><th>Hostname</th><td>{{.Data.Hostname}}</td></tr>
      <tr><th>Ready</th><td>{{.Data.Ready}}</td></tr>
      <tr><th>Installed</th><td>{{.Data.Installed}}</td></tr>
    </table>
  </section>

  {{if .Data.Config}}
  <section>
    <h2>Config</h2>
    <pre>{{json .Data.Config}}</pre>
  </section>
  {{end}}

  <section>
    <h2>Methods</h2>
    {{if not .Methods}}
    <p>No methods defined.</p>
    {{else}}
    <ul>{{range .Methods}}<li>{{.}}</li>{{end}}</ul>
    {{end}}
  </section>

  <section>
    <h2>Listeners</h2>
    {{if not .Data.NotifyList}}
    <p>No listeners.</p>
    {{else}}
    <pre>{{json .Data.NotifyList}}</pre>
    {{end}}
  </section>
</body>
</html>
`

// swaggerUIPage embeds Swagger UI from CDN and loads the OpenAPI spec.
const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>API – {{.Name}}</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      SwaggerUIBundle({
        url: "{{.SpecURL}}",
        dom_id: "#swagger-ui",
        presets: [
          SwaggerUIBundle.presets.apis,
          SwaggerUIBundle.SwaggerUIStandalonePreset
        ]
      });
    };
  </script>
</body>
</html>
`

type homeData struct {
	FullName    string
	Health      *bus.HealthOutput
	Services    []*service.Data
	Routes      map[string]bus.RouteEntry
	Connections []bus.ConnectionInfo
	Types       []string
}

// handleHome renders the runtime home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		registry := s.rt.GetRegistry()
		services := make([]*service.Data, 0, len(registry))
		for _, d := range registry {
			services = append(services, d)
		}
		sort.Slice(services, func(i, j int) bool { return services[i].FullName < services[j].FullName })

		data := homeData{
			FullName:    s.rt.FullName(),
			Health:      s.rt.Health(ctx),
			Services:    services,
			Routes:      s.rt.RouteTable(),
			Connections: s.rt.Connections(),
			Types:       s.rt.FactoryTypes(),
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", handlersLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

type serviceDetailData struct {
	Data    *service.Data
	Methods []string
}

// openAPI3 types for generating specs from a service's dispatch table.
type openAPI3Spec struct {
	OpenAPI string                      `json:"openapi"`
	Info    openAPI3Info                `json:"info"`
	Paths   map[string]openAPI3PathItem `json:"paths"`
}

type openAPI3Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type openAPI3PathItem struct {
	Post *openAPI3Operation `json:"post,omitempty"`
}

type openAPI3Operation struct {
	Summary     string                      `json:"summary"`
	OperationID string                      `json:"operationId"`
	RequestBody *openAPI3RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]openAPI3Response `json:"responses"`
}

type openAPI3RequestBody struct {
	Content map[string]openAPI3MediaType `json:"content"`
}

type openAPI3Response struct {
	Description string                       `json:"description"`
	Content     map[string]openAPI3MediaType `json:"content,omitempty"`
}

type openAPI3MediaType struct {
	Schema map[string]any `json:"schema,omitempty"`
}

// buildOpenAPISpec describes each method as a POST on the invoke API.
func buildOpenAPISpec(d *service.Data, methods []string) *openAPI3Spec {
	paths := make(map[string]openAPI3PathItem, len(methods))
	for _, m := range methods {
		path := InvokePath + d.FullName + "/" + m
		paths[path] = openAPI3PathItem{
			Post: &openAPI3Operation{
				Summary:     m,
				OperationID: m,
				RequestBody: &openAPI3RequestBody{
					Content: map[string]openAPI3MediaType{
						"application/json": {Schema: map[string]any{"type": "array", "description": "positional arguments"}},
					},
				},
				Responses: map[string]openAPI3Response{
					"200": {
						Description: "Method result",
						Content: map[string]openAPI3MediaType{
							"application/json": {Schema: map[string]any{}},
						},
					},
				},
			},
		}
	}
	version := d.Version
	if version == "" {
		version = "0.0.0"
	}
	return &openAPI3Spec{
		OpenAPI: "3.0.0",
		Info: openAPI3Info{
			Title:       d.FullName,
			Description: "Service " + d.FullName + " of type " + d.TypeKey,
			Version:     version,
		},
		Paths: paths,
	}
}

func methodsOf(svc service.Interface) []string {
	if m, ok := svc.(interface{ Methods() []string }); ok {
		return m.Methods()
	}
	return nil
}

// handleServiceDetail serves /service/{name}, its openapi.json and docs.
func (s *Server) handleServiceDetail() http.HandlerFunc {
	tmpl := template.Must(template.New("serviceDetail").Funcs(template.FuncMap{
		"json": func(v any) string {
			b, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return fmt.Sprintf("%v", v)
			}
			return string(b)
		},
	}).Parse(serviceDetailPageTemplate))
	swaggerTmpl := template.Must(template.New("swagger").Parse(swaggerUIPage))
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/service/")
		if rest == "" {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		name, suffix, _ := strings.Cut(rest, "/")

		svc, ok := s.rt.GetService(name)
		if !ok {
			http.NotFound(w, r)
			return
		}
		d := svc.Data()
		methods := methodsOf(svc)

		switch suffix {
		case "openapi.json":
			w.Header().Set("Cache-Control", "public, max-age=60")
			writeJSON(w, http.StatusOK, buildOpenAPISpec(d, methods))
			return
		case "docs":
			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}
			specURL := scheme + "://" + r.Host + "/service/" + url.PathEscape(d.FullName) + "/openapi.json"
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			if err := swaggerTmpl.Execute(w, map[string]string{"Name": d.FullName, "SpecURL": specURL}); err != nil {
				slog.Error(fmt.Sprintf("%s - swagger template execute: %v", handlersLogPrefix, err))
			}
			return
		case "":
		default:
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, serviceDetailData{Data: d, Methods: methods}); err != nil {
			slog.Error(fmt.Sprintf("%s - service detail template execute: %v", handlersLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
