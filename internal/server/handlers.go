package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/retailsql/internal/server/notifier"
	"github.com/leapstack-labs/retailsql/pkg/analytics"
	"github.com/leapstack-labs/retailsql/pkg/gateway"
	"github.com/leapstack-labs/retailsql/pkg/templates"
)

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	SQL       string         `json:"sql"`
	Params    map[string]any `json:"params"`
	TimeoutMS int64          `json:"timeout_ms,omitempty"`
	MaxRows   *int           `json:"max_rows,omitempty"`
}

// RunRequest is the body of POST /templates/{name}/run.
type RunRequest struct {
	Params    map[string]any `json:"params"`
	TimeoutMS int64          `json:"timeout_ms,omitempty"`
	MaxRows   *int           `json:"max_rows,omitempty"`
}

// AnalyzeRequest is the body of POST /analyze/{kind}. Quality reads Start,
// End and Reference; the other analyses read the four window bounds.
type AnalyzeRequest struct {
	CurrentStart string `json:"current_start"`
	CurrentEnd   string `json:"current_end"`
	PriorStart   string `json:"prior_start"`
	PriorEnd     string `json:"prior_end"`
	Dimension    string `json:"dimension,omitempty"`
	TopN         int    `json:"top_n,omitempty"`
	Start        string `json:"start,omitempty"`
	End          string `json:"end,omitempty"`
	Reference    string `json:"reference,omitempty"`
}

// TemplateSummary is one entry of GET /templates.
type TemplateSummary struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Dialects    []string          `json:"dialects,omitempty"`
	Params      []templates.Param `json:"params"`
	Supported   bool              `json:"supported"`
	Error       string            `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.gw.Ping(r.Context())
	status := http.StatusOK
	if !h.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.SQL == "" {
		s.writeError(w, r, badRequest("sql is required"))
		return
	}

	res, err := s.gw.Query(r.Context(), req.SQL, normalizeParams(req.Params), callOptions(req.TimeoutMS, req.MaxRows)...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	reg := s.source.Registry()
	dialect := s.gw.Dialect()
	out := make([]TemplateSummary, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		tpl, err := reg.Resolve(name)
		if err != nil {
			out = append(out, TemplateSummary{Name: name, Error: err.Error()})
			continue
		}
		out = append(out, TemplateSummary{
			Name:        tpl.Name,
			Description: tpl.Description,
			Dialects:    tpl.Dialects,
			Params:      tpl.Params,
			Supported:   tpl.Supports(dialect),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.source.Resolve(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (s *Server) handleRunTemplate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req RunRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tpl, err := s.source.Resolve(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	params, err := coerceParams(tpl, normalizeParams(req.Params))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.gw.RunTemplate(r.Context(), name, params, callOptions(req.TimeoutMS, req.MaxRows)...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	var (
		report any
		err    error
	)
	ctx := r.Context()
	switch kind := chi.URLParam(r, "kind"); kind {
	case "compare", "contributors", "decompose":
		var win analytics.Windows
		if win, err = req.windows(); err != nil {
			break
		}
		switch kind {
		case "compare":
			report, err = s.analytics.Compare(ctx, win)
		case "contributors":
			dim := analytics.DimensionCountry
			if req.Dimension != "" {
				if dim, err = analytics.ParseDimension(req.Dimension); err != nil {
					break
				}
			}
			report, err = s.analytics.Contributors(ctx, win, dim, req.TopN)
		default:
			report, err = s.analytics.Decompose(ctx, win)
		}
	case "quality":
		var (
			win analytics.Window
			ref time.Time
		)
		if win.Start, err = parseBound("start", req.Start); err != nil {
			break
		}
		if win.End, err = parseBound("end", req.End); err != nil {
			break
		}
		if req.Reference != "" {
			if ref, err = parseBound("reference", req.Reference); err != nil {
				break
			}
		}
		report, err = s.analytics.Quality(ctx, win, ref)
	default:
		err = &notFoundKind{kind: kind}
	}

	if err != nil {
		var nk *notFoundKind
		if errors.As(err, &nk) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Kind: "not_found", RequestID: RequestID(ctx)})
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type notFoundKind struct{ kind string }

func (e *notFoundKind) Error() string {
	return fmt.Sprintf("unknown analysis %q (want compare, contributors, decompose or quality)", e.kind)
}

// handleTemplateEvents streams template reloads as server-sent events.
func (s *Server) handleTemplateEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := s.notify.Subscribe()
	defer s.notify.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	reg := s.source.Registry()
	writeEvent(w, "ready", notifier.Event{Generation: s.source.Generation(), Templates: len(reg.Names())})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeEvent(w, "reload", ev)
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, name string, ev notifier.Event) {
	data, _ := json.Marshal(ev)
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

// decode reads a JSON body. Numbers stay json.Number so integers survive.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}

func callOptions(timeoutMS int64, maxRows *int) []gateway.CallOption {
	var opts []gateway.CallOption
	if timeoutMS > 0 {
		opts = append(opts, gateway.WithTimeout(time.Duration(timeoutMS)*time.Millisecond))
	}
	if maxRows != nil && *maxRows >= 0 {
		opts = append(opts, gateway.WithRowLimit(*maxRows))
	}
	return opts
}

// normalizeParams turns json.Number values into int64 when integral and
// float64 otherwise. Objects and arrays are left for the binder to reject.
func normalizeParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				v = i
			} else if f, err := n.Float64(); err == nil {
				v = f
			}
		}
		out[k] = v
	}
	return out
}

// coerceParams applies a template's documented types to JSON values:
// strings are parsed, and integral floats become ints where an int is
// expected.
func coerceParams(tpl *templates.Template, params map[string]any) (map[string]any, error) {
	types := make(map[string]string, len(tpl.Params))
	for _, p := range tpl.Params {
		types[p.Name] = p.Type
	}
	for name, v := range params {
		typ := types[name]
		switch x := v.(type) {
		case string:
			if typ == "" || typ == templates.TypeString || typ == templates.TypeAny {
				continue
			}
			c, err := templates.CoerceValue(typ, x)
			if err != nil {
				return nil, badRequest(fmt.Sprintf("parameter %q: %v", name, err))
			}
			params[name] = c
		case float64:
			if typ == templates.TypeInt && x == math.Trunc(x) {
				params[name] = int64(x)
			}
		}
	}
	return params, nil
}

func (req AnalyzeRequest) windows() (analytics.Windows, error) {
	var (
		w   analytics.Windows
		err error
	)
	if w.Current.Start, err = parseBound("current_start", req.CurrentStart); err != nil {
		return w, err
	}
	if w.Current.End, err = parseBound("current_end", req.CurrentEnd); err != nil {
		return w, err
	}
	if w.Prior.Start, err = parseBound("prior_start", req.PriorStart); err != nil {
		return w, err
	}
	if w.Prior.End, err = parseBound("prior_end", req.PriorEnd); err != nil {
		return w, err
	}
	return w, nil
}

func parseBound(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, badRequest(field + " is required")
	}
	ts, err := templates.ParseTime(raw)
	if err != nil {
		return time.Time{}, badRequest(field + ": " + err.Error())
	}
	return ts, nil
}
