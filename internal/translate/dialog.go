// Package translate implements the file translation dialog: it starts a
// translation job, polls its status until a terminal state and builds the
// download URL of the result.
//
// A Dialog owns its poll loop. At most one status request is outstanding
// at a time, the next one being scheduled only after the previous response
// was applied. Closing the dialog cancels the pending timer or request,
// and no state changes happen after Close returns.
package translate

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/docsweb/docs-client/internal/events"
	"github.com/docsweb/docs-client/internal/logging"
	"github.com/docsweb/docs-client/internal/metrics"
	"github.com/docsweb/docs-client/pkg/client"
	"github.com/docsweb/docs-client/pkg/protocol"
)

// DefaultPollInterval is the delay between two status polls.
const DefaultPollInterval = 2 * time.Second

// StatusCompleted is the status code of a finished job.
const StatusCompleted = 4

// Error messages used when the backend does not supply one.
const (
	FallbackStartError   = "Error starting translation"
	FallbackStatusError  = "Error checking translation status"
	FallbackUnknownError = "Unknown error"
)

var (
	ErrMissingLanguage = errors.New("translate: source and target language are required")
	ErrNoFlow          = errors.New("translate: no translation started")
	ErrClosed          = errors.New("translate: dialog closed")
	ErrIncomplete      = errors.New("translate: polling stopped before the job completed")
)

// JobError is returned by Wait when the job ended in failure.
type JobError struct {
	Message string
}

func (e *JobError) Error() string {
	return "translation failed: " + e.Message
}

// API is the part of the resource client the dialog needs.
type API interface {
	Get(ctx context.Context, path string, params url.Values, out any) error
	Post(ctx context.Context, path string, form url.Values, out any) error
	URL(path string, params url.Values) string
}

// State is the translate state shown by the dialog.
type State struct {
	SourceLanguage string
	TargetLanguage string
	StatusCode     int
	StatusText     string
	FlowNumber     string
	FileType       string
	Error          string // empty unless the job or its start failed
	InProgress     bool
}

// Terminal reports whether the job has reached a final state.
func (s State) Terminal() bool {
	return s.FlowNumber != "" && !s.InProgress
}

// Succeeded reports whether the job completed without error.
func (s State) Succeeded() bool {
	return s.StatusCode == StatusCompleted && s.Error == ""
}

// NewState returns the fresh state of a dialog opened for file.
func NewState(file protocol.File) State {
	return State{FileType: FileType(file.MimeType)}
}

// Input is what the file preview hands to a new dialog. It is copied on
// Open and never shared afterwards.
type Input struct {
	File             protocol.File
	Languages        []protocol.Language
	APINotConfigured bool
	State            State
}

// Apply folds one status response into s and reports whether another
// poll is due.
func Apply(s State, resp protocol.TranslateStatusResponse) (State, bool) {
	if resp.Status != "ok" {
		s.InProgress = false
		if resp.ErrorCode != "" {
			s.Error = "Error code: " + resp.ErrorCode
		} else {
			s.Error = FallbackUnknownError
		}
		return s, false
	}

	s.StatusCode = resp.StatusCode
	s.StatusText = resp.StatusText
	if s.StatusText == "" {
		s.StatusText = resp.StatusMessage
	}

	switch {
	case resp.StatusCode > 0 && resp.StatusCode != StatusCompleted:
		return s, true
	case resp.StatusCode < 0:
		s.InProgress = false
		s.Error = s.StatusText
		if s.Error == "" {
			s.Error = Label(resp.StatusCode)
		}
	default:
		// completed, or idle (0)
		s.InProgress = false
	}
	return s, false
}

// Dialog is the translation dialog component.
type Dialog struct {
	api              API
	file             protocol.File
	languages        []protocol.Language
	apiNotConfigured bool
	events           *events.Broadcaster
	pollInterval     time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// startMu serializes Start so only one poll loop is ever installed.
	startMu sync.Mutex

	mu         sync.Mutex
	state      State
	closed     bool
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// Option configures a Dialog.
type Option func(*Dialog)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(dl *Dialog) {
		if d > 0 {
			dl.pollInterval = d
		}
	}
}

// WithEvents publishes state changes to b.
func WithEvents(b *events.Broadcaster) Option {
	return func(dl *Dialog) { dl.events = b }
}

// Open creates a dialog from the preview's hand-off. The dialog lives until
// Close is called or parent is cancelled.
func Open(parent context.Context, api API, in Input, opts ...Option) *Dialog {
	ctx, cancel := context.WithCancel(parent)
	d := &Dialog{
		api:              api,
		file:             in.File,
		languages:        append([]protocol.Language(nil), in.Languages...),
		apiNotConfigured: in.APINotConfigured,
		pollInterval:     DefaultPollInterval,
		ctx:              ctx,
		cancel:           cancel,
		state:            in.State,
	}
	if d.state.FileType == "" {
		d.state.FileType = FileType(in.File.MimeType)
	}
	for _, opt := range opts {
		opt(d)
	}
	d.publish(events.KindDialog, "opened", 0)
	return d
}

// File returns the file being translated.
func (d *Dialog) File() protocol.File {
	return d.file
}

// Languages returns the languages offered for translation.
func (d *Dialog) Languages() []protocol.Language {
	return append([]protocol.Language(nil), d.languages...)
}

// APINotConfigured reports whether the translation provider credentials
// are missing on the backend.
func (d *Dialog) APINotConfigured() bool {
	return d.apiNotConfigured
}

// State returns a copy of the current state.
func (d *Dialog) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Start asks the backend to translate the file and starts polling. Empty
// languages make it a no-op returning ErrMissingLanguage. A poll loop left
// from an earlier Start is stopped first.
func (d *Dialog) Start(ctx context.Context, source, target string) error {
	if source == "" || target == "" {
		return ErrMissingLanguage
	}

	d.startMu.Lock()
	defer d.startMu.Unlock()
	d.stopLoop()

	if !d.update(func(s *State) {
		s.SourceLanguage = source
		s.TargetLanguage = target
		s.InProgress = true
		s.Error = ""
		s.StatusCode = 0
		s.StatusText = ""
		s.FlowNumber = ""
	}) {
		return ErrClosed
	}
	d.publish(events.KindStarted, "", 0)

	reqCtx, cancel := context.WithCancel(d.ctx)
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	defer cancel()

	var resp protocol.TranslateStartResponse
	err := d.api.Post(reqCtx, protocol.PathTranslateStart, url.Values{
		"id":              {d.file.ID},
		"source_language": {source},
		"target_language": {target},
	}, &resp)
	if err == nil && resp.FlowNumber == "" {
		err = errors.New("translate: start response carried no flow number")
	}
	if err != nil {
		msg := client.MessageOr(err, FallbackStartError)
		if !d.update(func(s *State) {
			s.InProgress = false
			s.Error = msg
		}) {
			return ErrClosed
		}
		metrics.RecordTranslation("start_failed")
		logging.Warn("translation start failed", logging.String("file_id", d.file.ID), logging.Err(err))
		d.publish(events.KindFailed, msg, 0)
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.state.FlowNumber = resp.FlowNumber
	loopCtx, loopCancel := context.WithCancel(d.ctx)
	done := make(chan struct{})
	d.loopCancel = loopCancel
	d.loopDone = done
	d.mu.Unlock()

	logging.Info("translation started",
		logging.String("file_id", d.file.ID),
		logging.String("flow_number", resp.FlowNumber))

	go d.loop(loopCtx, done)
	return nil
}

// loop polls until a terminal state or cancellation.
func (d *Dialog) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	metrics.TranslationLoopStarted()
	defer metrics.TranslationLoopStopped()

	for {
		if !d.poll(ctx) {
			return
		}

		t := time.NewTimer(d.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			metrics.RecordTranslation("cancelled")
			return
		case <-t.C:
		}
	}
}

// poll fetches the job status once and applies it.
func (d *Dialog) poll(ctx context.Context) bool {
	flow := d.State().FlowNumber
	if flow == "" {
		return false
	}

	metrics.RecordTranslationPoll()
	var resp protocol.TranslateStatusResponse
	err := d.api.Get(ctx, protocol.PathTranslateStatus, url.Values{"flow_number": {flow}}, &resp)
	if ctx.Err() != nil {
		return false
	}

	var again bool
	var next State
	if !d.update(func(s *State) {
		if err != nil {
			s.InProgress = false
			s.Error = client.MessageOr(err, FallbackStatusError)
		} else {
			*s, again = Apply(*s, resp)
		}
		next = *s
	}) {
		return false
	}

	switch {
	case again:
		d.publish(events.KindProgress, next.StatusText, next.StatusCode)
	case next.Error != "":
		metrics.RecordTranslation("failed")
		logging.Warn("translation failed",
			logging.String("flow_number", flow),
			logging.String("error", next.Error))
		d.publish(events.KindFailed, next.Error, next.StatusCode)
	default:
		metrics.RecordTranslation("completed")
		logging.Info("translation finished",
			logging.String("flow_number", flow),
			logging.Int("status_code", next.StatusCode))
		d.publish(events.KindCompleted, next.StatusText, next.StatusCode)
	}
	return again
}

// Wait blocks until the poll loop stops. It returns nil only when the job
// completed, a *JobError when it failed, ErrNoFlow if nothing was started
// and ErrClosed if the dialog was closed first. When the dialog context was
// cancelled mid-job its error is returned; ErrIncomplete covers the idle
// status.
func (d *Dialog) Wait(ctx context.Context) error {
	d.mu.Lock()
	done := d.loopDone
	d.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.closed:
		return ErrClosed
	case d.state.Error != "":
		return &JobError{Message: d.state.Error}
	case d.state.FlowNumber == "":
		return ErrNoFlow
	case d.state.Succeeded():
		return nil
	}
	if err := d.ctx.Err(); err != nil {
		return err
	}
	return ErrIncomplete
}

// DownloadURL returns the URL of the translated file. ok is false until
// the job completed successfully. file_type is left out for MIME types
// without a known extension.
func (d *Dialog) DownloadURL() (string, bool) {
	s := d.State()
	if s.FlowNumber == "" || !s.Succeeded() {
		return "", false
	}
	params := url.Values{
		"flow_number":     {s.FlowNumber},
		"file_id":         {d.file.ID},
		"target_language": {s.TargetLanguage},
	}
	if s.FileType != "" {
		params.Set("file_type", s.FileType)
	}
	return d.api.URL(protocol.PathTranslateDownload, params), true
}

// Close dismisses the dialog, cancelling any pending poll. It is safe to
// call more than once.
func (d *Dialog) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	done := d.loopDone
	d.mu.Unlock()

	d.cancel()
	if done != nil {
		<-done
	}
	d.publish(events.KindDialog, "closed", 0)
}

func (d *Dialog) stopLoop() {
	d.mu.Lock()
	cancel, done := d.loopCancel, d.loopDone
	d.loopCancel, d.loopDone = nil, nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// update mutates the state unless the dialog is closed.
func (d *Dialog) update(fn func(*State)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	fn(&d.state)
	return true
}

func (d *Dialog) publish(kind, msg string, code int) {
	d.events.Publish(events.Event{
		Component: events.ComponentTranslate,
		Kind:      kind,
		Message:   msg,
		Code:      code,
	})
}
