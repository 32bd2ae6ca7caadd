// Package register implements the self-registration form: it submits the
// user's credentials and maps backend errors to field-level flags.
package register

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/docsweb/docs-client/internal/events"
	"github.com/docsweb/docs-client/internal/logging"
	"github.com/docsweb/docs-client/internal/metrics"
	"github.com/docsweb/docs-client/pkg/client"
	"github.com/docsweb/docs-client/pkg/protocol"
)

// Putter is the part of the resource client the form needs.
type Putter interface {
	Put(ctx context.Context, path string, form url.Values, out any) error
}

// User is the registration request entered by the user.
type User struct {
	Username string
	Password string
	Email    string
	Message  string // optional note for the reviewing admin
}

// State is the form's view state after the last submission.
type State struct {
	Success bool
	Error   bool

	ErrorUsername            bool
	ErrorPassword            bool
	ErrorEmail               bool
	ErrorAlreadyExists       bool
	ErrorRegistrationPending bool
}

// Form is the registration form component.
type Form struct {
	api    Putter
	events *events.Broadcaster

	mu    sync.Mutex
	state State
}

// Option configures a Form.
type Option func(*Form)

// WithEvents publishes state changes to b.
func WithEvents(b *events.Broadcaster) Option {
	return func(f *Form) { f.events = b }
}

// New creates a registration form.
func New(api Putter, opts ...Option) *Form {
	f := &Form{api: api}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns a copy of the current state.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Submit sends the registration. All flags are cleared first; on failure
// exactly one error category is set and the error is returned.
func (f *Form) Submit(ctx context.Context, u User) error {
	f.mu.Lock()
	f.state = State{}
	f.mu.Unlock()

	form := url.Values{
		"username": {u.Username},
		"password": {u.Password},
		"email":    {u.Email},
	}
	if u.Message != "" {
		form.Set("message", u.Message)
	}

	err := f.api.Put(ctx, protocol.PathRegistration, form, nil)

	var next State
	if err == nil {
		next = State{Success: true}
		metrics.RecordRegistrationSubmission("success")
		logging.Info("registration submitted", logging.String("username", u.Username))
	} else {
		next = Classify(err)
		metrics.RecordRegistrationSubmission(outcome(next))
		logging.Debug("registration rejected", logging.String("username", u.Username), logging.Err(err))
	}

	f.mu.Lock()
	f.state = next
	f.mu.Unlock()

	kind := events.KindCompleted
	if err != nil {
		kind = events.KindFailed
	}
	f.events.Publish(events.Event{Component: events.ComponentRegister, Kind: kind})
	return err
}

// Classify maps a submission error to form flags. ValidationError
// messages are matched case-sensitively for each field name, so several
// field flags may be set at once. Errors that are not structured backend
// errors only set the generic flag.
func Classify(err error) State {
	s := State{Error: true}
	ae, ok := client.AsAPIError(err)
	if !ok {
		return s
	}

	switch ae.Type {
	case protocol.ErrValidation:
		s.ErrorUsername = strings.Contains(ae.Message, "username")
		s.ErrorPassword = strings.Contains(ae.Message, "password")
		s.ErrorEmail = strings.Contains(ae.Message, "email")
	case protocol.ErrAlreadyExistingUsername:
		s.ErrorAlreadyExists = true
	case protocol.ErrRegistrationPending:
		s.ErrorRegistrationPending = true
	}
	return s
}

func outcome(s State) string {
	switch {
	case s.ErrorAlreadyExists:
		return "already_exists"
	case s.ErrorRegistrationPending:
		return "pending"
	case s.ErrorUsername || s.ErrorPassword || s.ErrorEmail:
		return "validation"
	default:
		return "error"
	}
}
