// Package preview implements the file preview: it resolves a file inside
// a document, navigates between sibling files and decides whether the
// translation dialog may be offered.
package preview

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/docsweb/docs-client/internal/events"
	"github.com/docsweb/docs-client/internal/logging"
	"github.com/docsweb/docs-client/internal/translate"
	"github.com/docsweb/docs-client/pkg/protocol"
)

// Config keys holding the translation provider credentials.
const (
	ConfigAppKey    = "YOUDAO_APP_KEY"
	ConfigAppSecret = "YOUDAO_APP_SECRET"
)

var (
	ErrClosed   = errors.New("preview: closed")
	ErrNotFound = errors.New("preview: file not available")
)

// translatable lists the MIME types the translation provider accepts.
var translatable = []string{
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-excel",
	"image/jpeg",
	"image/png",
	"image/bmp",
}

// Getter is the part of the resource client the preview needs.
type Getter interface {
	Get(ctx context.Context, path string, params url.Values, out any) error
	URL(path string, params url.Values) string
	ConfigValue(ctx context.Context, key string) (string, error)
}

// Preview shows one file of a document.
type Preview struct {
	api        Getter
	documentID string
	fileID     string
	opts       []Option
	events     *events.Broadcaster

	mu           sync.Mutex
	files        []protocol.File
	file         *protocol.File
	canTranslate bool
	closed       bool
}

// Option configures a Preview.
type Option func(*Preview)

// WithEvents publishes preview events to b.
func WithEvents(b *events.Broadcaster) Option {
	return func(p *Preview) { p.events = b }
}

// Open loads the files of documentID and resolves fileID among them,
// falling back to the file's version history. A file that cannot be
// resolved leaves the preview without a current file; that is not an
// error.
func Open(ctx context.Context, api Getter, documentID, fileID string, opts ...Option) (*Preview, error) {
	p := &Preview{
		api:        api,
		documentID: documentID,
		fileID:     fileID,
		opts:       opts,
	}
	for _, opt := range opts {
		opt(p)
	}

	var list protocol.FileListResponse
	if err := api.Get(ctx, protocol.PathFileList, url.Values{"id": {documentID}}, &list); err != nil {
		return nil, fmt.Errorf("load files of document %s: %w", documentID, err)
	}
	p.files = list.Files
	p.file = find(list.Files, fileID)

	if p.file == nil {
		var versions protocol.FileListResponse
		if err := api.Get(ctx, protocol.FileVersionsPath(fileID), nil, &versions); err != nil {
			return nil, fmt.Errorf("load versions of file %s: %w", fileID, err)
		}
		p.file = find(versions.Files, fileID)
	}

	if p.file == nil {
		logging.Debug("file not resolved",
			logging.String("document_id", documentID),
			logging.String("file_id", fileID))
	} else {
		p.canTranslate = checkTranslatable(ctx, api, *p.file)
	}

	p.events.Publish(events.Event{Component: events.ComponentPreview, Kind: events.KindLoaded, Message: fileID})
	return p, nil
}

func find(files []protocol.File, id string) *protocol.File {
	for i := range files {
		if files[i].ID == id {
			f := files[i]
			return &f
		}
	}
	return nil
}

// checkTranslatable reports whether the provider key is configured and
// the file type is supported. It only gates the UI; the backend still
// validates the request.
func checkTranslatable(ctx context.Context, api Getter, f protocol.File) bool {
	key, err := api.ConfigValue(ctx, ConfigAppKey)
	if err != nil {
		logging.Warn("translation config lookup failed", logging.Err(err))
		return false
	}
	return strings.TrimSpace(key) != "" && slices.Contains(translatable, f.MimeType)
}

// File returns the resolved file. ok is false when the file is
// unavailable.
func (p *Preview) File() (protocol.File, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return protocol.File{}, false
	}
	return *p.file, true
}

// Files returns the files of the document.
func (p *Preview) Files() []protocol.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.files)
}

// DocumentID returns the document the preview belongs to.
func (p *Preview) DocumentID() string {
	return p.documentID
}

// FileURL returns the URL of the file's binary content.
func (p *Preview) FileURL() string {
	return p.api.URL(protocol.FileDataPath(p.fileID), nil)
}

// ContentURL returns the URL of the file's extracted content.
func (p *Preview) ContentURL() string {
	return p.api.URL(protocol.FileDataPath(p.fileID), url.Values{"size": {"content"}})
}

// Next returns the file after the current one in the document.
func (p *Preview) Next() (protocol.File, bool) {
	return p.sibling(1)
}

// Previous returns the file before the current one in the document.
func (p *Preview) Previous() (protocol.File, bool) {
	return p.sibling(-1)
}

func (p *Preview) sibling(offset int) (protocol.File, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := slices.IndexFunc(p.files, func(f protocol.File) bool { return f.ID == p.fileID })
	if i < 0 {
		return protocol.File{}, false
	}
	j := i + offset
	if j < 0 || j >= len(p.files) {
		return protocol.File{}, false
	}
	return p.files[j], true
}

// GoNext closes p and opens the next file of the same document. Without a
// next file it returns p unchanged.
func (p *Preview) GoNext(ctx context.Context) (*Preview, error) {
	return p.navigate(ctx, p.Next)
}

// GoPrevious closes p and opens the previous file of the same document.
// Without a previous file it returns p unchanged.
func (p *Preview) GoPrevious(ctx context.Context) (*Preview, error) {
	return p.navigate(ctx, p.Previous)
}

func (p *Preview) navigate(ctx context.Context, pick func() (protocol.File, bool)) (*Preview, error) {
	if p.isClosed() {
		return nil, ErrClosed
	}
	f, ok := pick()
	if !ok {
		return p, nil
	}
	next, err := Open(ctx, p.api, p.documentID, f.ID, p.opts...)
	if err != nil {
		return nil, err
	}
	p.Close()
	return next, nil
}

// CanTranslate reports whether the translation dialog may be offered.
func (p *Preview) CanTranslate() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.canTranslate
}

// CanDisplayPreview reports whether the file can be shown inline. PDF
// files use a dedicated viewer.
func (p *Preview) CanDisplayPreview() bool {
	f, ok := p.File()
	return ok && f.MimeType != "application/pdf"
}

// TranslateInput loads what the translation dialog needs and returns it
// as a self-contained value.
func (p *Preview) TranslateInput(ctx context.Context) (translate.Input, error) {
	if p.isClosed() {
		return translate.Input{}, ErrClosed
	}
	f, ok := p.File()
	if !ok {
		return translate.Input{}, ErrNotFound
	}

	var langs protocol.LanguagesResponse
	if err := p.api.Get(ctx, protocol.PathTranslateLanguages, nil, &langs); err != nil {
		return translate.Input{}, fmt.Errorf("load translation languages: %w", err)
	}

	return translate.Input{
		File:             f,
		Languages:        langs.Languages,
		APINotConfigured: !p.configured(ctx),
		State:            translate.NewState(f),
	}, nil
}

// configured reports whether both provider credentials are set. A failed
// lookup counts as not configured.
func (p *Preview) configured(ctx context.Context) bool {
	for _, key := range []string{ConfigAppKey, ConfigAppSecret} {
		v, err := p.api.ConfigValue(ctx, key)
		if err != nil {
			logging.Warn("translation config lookup failed", logging.String("key", key), logging.Err(err))
			return false
		}
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// Close dismisses the preview. Navigation is refused afterwards.
func (p *Preview) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.events.Publish(events.Event{Component: events.ComponentPreview, Kind: events.KindDialog, Message: "closed"})
}

func (p *Preview) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
