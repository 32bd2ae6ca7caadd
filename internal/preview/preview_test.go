package preview

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/docsweb/docs-client/internal/testutil"
	"github.com/docsweb/docs-client/pkg/client"
	"github.com/docsweb/docs-client/pkg/protocol"
)

func files() []protocol.File {
	return []protocol.File{
		{ID: "f1", MimeType: "application/pdf"},
		{ID: "f2", MimeType: "image/png"},
		{ID: "f3", MimeType: "text/plain"},
	}
}

func setup(t *testing.T) (*client.Client, *testutil.Backend) {
	t.Helper()
	b := testutil.NewBackend(t)
	b.Files["doc"] = files()
	b.Config[ConfigAppKey] = "key"
	b.Config[ConfigAppSecret] = "secret"
	return client.New(client.Config{BaseURL: b.URL}), b
}

func TestOpen_ResolvesFromList(t *testing.T) {
	c, b := setup(t)

	p, err := Open(context.Background(), c, "doc", "f2")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f, ok := p.File()
	if !ok || f.ID != "f2" {
		t.Fatalf("expected f2, got %+v (ok=%v)", f, ok)
	}
	if b.Count("GET /api/file/{fileID}/versions") != 0 {
		t.Error("versions must not be fetched when the list contains the file")
	}
	if got := p.FileURL(); got != b.URL+"/api/file/f2/data" {
		t.Errorf("unexpected file URL %s", got)
	}
	if got := p.ContentURL(); got != b.URL+"/api/file/f2/data?size=content" {
		t.Errorf("unexpected content URL %s", got)
	}
}

func TestOpen_ResolvesFromVersions(t *testing.T) {
	c, b := setup(t)
	b.Versions["old"] = []protocol.File{{ID: "new"}, {ID: "old", MimeType: "image/jpeg", Version: 1}}

	p, err := Open(context.Background(), c, "doc", "old")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f, ok := p.File()
	if !ok || f.ID != "old" || f.Version != 1 {
		t.Fatalf("expected version file, got %+v (ok=%v)", f, ok)
	}
	if len(p.Files()) != 3 {
		t.Errorf("navigation list must stay the document list, got %d files", len(p.Files()))
	}
}

func TestOpen_Unresolved(t *testing.T) {
	c, b := setup(t)

	p, err := Open(context.Background(), c, "doc", "missing")
	if err != nil {
		t.Fatalf("an unresolved file is not an error: %v", err)
	}
	if _, ok := p.File(); ok {
		t.Error("expected no current file")
	}
	if p.CanTranslate() || p.CanDisplayPreview() {
		t.Error("no capability without a file")
	}
	if b.Count("GET /api/app/config") != 0 {
		t.Error("config must not be checked without a file")
	}
	if _, err := p.TranslateInput(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOpen_ListFailure(t *testing.T) {
	c, b := setup(t)
	b.Fail("GET /api/file/list", http.StatusForbidden, protocol.ErrForbidden, "denied")

	if _, err := Open(context.Background(), c, "doc", "f1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNavigation(t *testing.T) {
	c, b := setup(t)
	ctx := context.Background()

	p, _ := Open(ctx, c, "doc", "f1")
	if _, ok := p.Previous(); ok {
		t.Error("first file has no previous")
	}
	next, ok := p.Next()
	if !ok || next.ID != "f2" {
		t.Fatalf("expected next f2, got %+v", next)
	}
	lists := b.Count("GET /api/file/list")

	p.Next()
	p.Previous()
	if b.Count("GET /api/file/list") != lists {
		t.Error("Next/Previous must not refetch")
	}

	p2, err := p.GoNext(ctx)
	if err != nil {
		t.Fatalf("go next: %v", err)
	}
	if f, _ := p2.File(); f.ID != "f2" {
		t.Errorf("expected f2 after GoNext, got %s", f.ID)
	}
	if _, err := p.GoNext(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("previous preview must be closed, got %v", err)
	}

	p3, _ := p2.GoNext(ctx)
	if same, _ := p3.GoNext(ctx); same != p3 {
		t.Error("GoNext at the last file must keep the preview")
	}
	back, _ := p3.GoPrevious(ctx)
	if f, _ := back.File(); f.ID != "f2" {
		t.Errorf("expected f2 after GoPrevious, got %s", f.ID)
	}
}

func TestCanTranslate(t *testing.T) {
	cases := []struct {
		name   string
		key    string
		fileID string
		want   bool
	}{
		{"pdf with key", "key", "f1", true},
		{"png with key", "key", "f2", true},
		{"unsupported type", "key", "f3", false},
		{"blank key", "   ", "f1", false},
		{"no key", "", "f1", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, b := setup(t)
			b.Config[ConfigAppKey] = tc.key

			p, _ := Open(context.Background(), c, "doc", tc.fileID)
			if p.CanTranslate() != tc.want {
				t.Errorf("expected %v", tc.want)
			}
		})
	}
}

func TestCanTranslate_ConfigFailure(t *testing.T) {
	c, b := setup(t)
	b.Fail("GET /api/app/config", http.StatusForbidden, protocol.ErrForbidden, "")

	p, err := Open(context.Background(), c, "doc", "f1")
	if err != nil {
		t.Fatalf("config failure must not fail the preview: %v", err)
	}
	if p.CanTranslate() {
		t.Error("expected translation disabled")
	}
}

func TestCanDisplayPreview(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	pdf, _ := Open(ctx, c, "doc", "f1")
	png, _ := Open(ctx, c, "doc", "f2")
	if pdf.CanDisplayPreview() {
		t.Error("PDF uses its own viewer")
	}
	if !png.CanDisplayPreview() {
		t.Error("expected inline preview for PNG")
	}
}

func TestTranslateInput(t *testing.T) {
	c, b := setup(t)
	b.Languages = []protocol.Language{{Code: "zh", Name: "Chinese"}, {Code: "en", Name: "English"}}

	p, _ := Open(context.Background(), c, "doc", "f1")
	in, err := p.TranslateInput(context.Background())
	if err != nil {
		t.Fatalf("translate input: %v", err)
	}
	if in.File.ID != "f1" || len(in.Languages) != 2 || in.APINotConfigured {
		t.Errorf("unexpected input %+v", in)
	}
	if in.State.FileType != "pdf" || in.State.InProgress {
		t.Errorf("unexpected initial state %+v", in.State)
	}
}

func TestTranslateInput_MissingSecret(t *testing.T) {
	c, b := setup(t)
	b.Config[ConfigAppSecret] = " "

	p, _ := Open(context.Background(), c, "doc", "f1")
	in, err := p.TranslateInput(context.Background())
	if err != nil {
		t.Fatalf("translate input: %v", err)
	}
	if !in.APINotConfigured {
		t.Error("expected APINotConfigured with a blank secret")
	}
	if !p.CanTranslate() {
		t.Error("the preview gate only checks the key")
	}
}

func TestClose(t *testing.T) {
	c, _ := setup(t)
	p, _ := Open(context.Background(), c, "doc", "f1")
	p.Close()
	p.Close()

	if _, err := p.GoPrevious(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := p.TranslateInput(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
