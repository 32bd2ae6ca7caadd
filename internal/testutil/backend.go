// Package testutil provides an in-memory docs backend for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/docsweb/docs-client/pkg/protocol"
)

// Request is a request recorded by the backend.
type Request struct {
	Method string
	Route  string // chi route pattern, e.g. /api/file/{fileID}/versions
	Path   string
	Query  url.Values
	Form   url.Values
	Token  string
}

type failure struct {
	status int
	body   protocol.ErrorResponse
}

// Backend is a fake docs backend. Exported fields may be set before the
// first request; use the methods once requests are in flight.
type Backend struct {
	*httptest.Server

	mu sync.Mutex

	Files         map[string][]protocol.File // document id -> files
	Versions      map[string][]protocol.File // file id -> version history
	Config        map[string]string
	Languages     []protocol.Language
	Registrations []protocol.Registration
	FlowNumber    string
	Token         string

	statuses map[string][]protocol.TranslateStatusResponse
	failures map[string]failure
	requests []Request
}

// NewBackend starts a fake backend that is closed with the test.
func NewBackend(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		Files:      map[string][]protocol.File{},
		Versions:   map[string][]protocol.File{},
		Config:     map[string]string{},
		FlowNumber: "flow-1",
		Token:      "session-token",
		statuses:   map[string][]protocol.TranslateStatusResponse{},
		failures:   map[string]failure{},
	}
	b.Server = httptest.NewServer(b.routes())
	t.Cleanup(b.Close)
	return b
}

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/user/login", b.login)
		r.Post("/user/logout", b.ok)
		r.Put("/user/registration", b.ok)
		r.Get("/user/registration", b.listRegistrations)
		r.Post("/user/registration/{id}/{action}", b.decide)
		r.Get("/app/config", b.config)
		r.Get("/file/list", b.fileList)
		r.Get("/file/{fileID}/versions", b.versions)
		r.Get("/file/{fileID}/data", b.data)
		r.Get("/file/translate/languages", b.languages)
		r.Post("/file/translate/start", b.start)
		r.Get("/file/translate/status", b.status)
		r.Get("/file/translate/download", b.download)
	})
	return r
}

// Fail makes route (e.g. "PUT /api/user/registration") answer with status
// and an error body until cleared with Succeed.
func (b *Backend) Fail(route string, status int, errType, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = failure{status: status, body: protocol.ErrorResponse{Type: errType, Message: message}}
}

// Succeed clears a failure set with Fail.
func (b *Backend) Succeed(route string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, route)
}

// QueueStatus appends status responses for a flow. Each poll consumes one;
// the last one repeats.
func (b *Backend) QueueStatus(flow string, statuses ...protocol.TranslateStatusResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses[flow] = append(b.statuses[flow], statuses...)
}

// SetFlowNumber changes the flow number returned by later starts.
func (b *Backend) SetFlowNumber(flow string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.FlowNumber = flow
}

// Requests returns recorded requests matching route ("" matches all).
func (b *Backend) Requests(route string) []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Request
	for _, r := range b.requests {
		if route == "" || r.Method+" "+r.Route == route {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many requests hit route.
func (b *Backend) Count(route string) int {
	return len(b.Requests(route))
}

// Last returns the most recent request for route.
func (b *Backend) Last(route string) (Request, bool) {
	reqs := b.Requests(route)
	if len(reqs) == 0 {
		return Request{}, false
	}
	return reqs[len(reqs)-1], true
}

// failed records the request and writes the configured failure for its
// route, if any. Every handler calls it before writing a response.
func (b *Backend) failed(w http.ResponseWriter, r *http.Request) bool {
	r.ParseForm()
	pattern := chi.RouteContext(r.Context()).RoutePattern()
	token := ""
	if ck, err := r.Cookie("auth_token"); err == nil {
		token = ck.Value
	}

	b.mu.Lock()
	b.requests = append(b.requests, Request{
		Method: r.Method,
		Route:  pattern,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Form:   r.PostForm,
		Token:  token,
	})
	f, ok := b.failures[r.Method+" "+pattern]
	b.mu.Unlock()

	if !ok {
		return false
	}
	writeJSON(w, f.status, f.body)
	return true
}

func (b *Backend) ok(w http.ResponseWriter, r *http.Request) {
	if b.failed(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, protocol.StatusResponse{Status: "ok"})
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	if b.failed(w, r) {
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "auth_token", Value: b.Token, Path: "/"})
	writeJSON(w, http.StatusOK, protocol.StatusResponse{Status: "ok"})
}

func (b *Backend) listRegistrations(w http.ResponseWriter, r *http.Request) {
	if b.failed(w, r) {
		return
	}
	q := r.URL.Query()
	status := q.Get("status")
	search := q.Get("search")
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	b.mu.Lock()
	var matched []protocol.Registration
	for _, reg := range b.Registrations {
		if status != "" && reg.Status != status {
			continue
		}
		if search != "" && !strings.Contains(reg.Username, search) && !strings.Contains(reg.Email, search) {
			continue
		}
		matched = append(matched, reg)
	}
	b.mu.Unlock()

	page := []protocol.Registration{}
	if offset < len(matched) {
		end := len(matched)
		if limit > 0 && offset+limit < end {
			end = offset + limit
		}
		page = matched[offset:end]
	}
	writeJSON(w, http.StatusOK, protocol.RegistrationListResponse{Registrations: page, Total: len(matched)})
}

func (b *Backend) decide(w http.ResponseWriter, r *http.Request) {
	if b.failed(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	action := chi.URLParam(r, "action")

	b.mu.Lock()
	found := false
	for i := range b.Registrations {
		if b.Registrations[i].ID == id {
			found = true
			switch action {
			case "approve":
				b.Registrations[i].Status = protocol.RegistrationApproved
			case "reject":
				b.Registrations[i].Status = protocol.RegistrationRejected
			}
		}
	}
	b.mu.Unlock()

	if !found {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{
			Type: protocol.ErrRegistrationNotFound, Message: "Registration request not found",
		})
		return
	}
	writeJSON(w, http.StatusOK, protocol.StatusResponse{Status: "ok"})
}

func (b *Backend) config(w http.ResponseWriter, r *http.Request) {
	if b.failed(w, r) {
		return
	}
	b.mu.Lock()
	v := b.Config[r.URL.Query().Get("key")]
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, protocol.ConfigResponse{Value: v})
}

func (b *Backend) fileList(w http.ResponseWriter, r *http.Request) {
	if b.failed(w, r) {
		return
	}
	b.mu.Lock()
	files := b.Files[r.URL.Query().Get("id")]
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, protocol.FileListResponse{Files: files})
}

func (b *Backend) versions(w http.ResponseWriter, r *http.Request) {
	if b.failed(w, r) {
		return
	}
	b.mu.Lock()
	files := b.Versions[chi.URLParam(r, "fileID")]
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, protocol.FileListResponse{Files: files})
}

func (b *Backend) data(w http.ResponseWriter, r *http.Request) {
	if b.failed(w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write([]byte("data:" + chi.URLParam(r, "fileID")))
}

func (b *Backend) languages(w http.ResponseWriter, r *http.Request) {
	if b.failed(w, r) {
		return
	}
	b.mu.Lock()
	langs := b.Languages
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, protocol.LanguagesResponse{Languages: langs})
}

func (b *Backend) start(w http.ResponseWriter, r *http.Request) {
	if b.failed(w, r) {
		return
	}
	b.mu.Lock()
	flow := b.FlowNumber
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, protocol.TranslateStartResponse{Status: "ok", FlowNumber: flow})
}

func (b *Backend) status(w http.ResponseWriter, r *http.Request) {
	if b.failed(w, r) {
		return
	}
	flow := r.URL.Query().Get("flow_number")

	b.mu.Lock()
	queue := b.statuses[flow]
	var resp protocol.TranslateStatusResponse
	switch len(queue) {
	case 0:
		resp = protocol.TranslateStatusResponse{Status: "error", ErrorCode: "404"}
	case 1:
		resp = queue[0]
	default:
		resp = queue[0]
		b.statuses[flow] = queue[1:]
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) download(w http.ResponseWriter, r *http.Request) {
	if b.failed(w, r) {
		return
	}
	q := r.URL.Query()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="translated_`+q.Get("target_language")+"."+q.Get("file_type")+`"`)
	w.Write([]byte("translated:" + q.Get("flow_number")))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// StatusOK builds an "ok" status response.
func StatusOK(code int, text string) protocol.TranslateStatusResponse {
	return protocol.TranslateStatusResponse{Status: "ok", StatusCode: code, StatusText: text}
}
