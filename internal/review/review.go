// Package review implements the admin screen that lists registration
// requests and approves or rejects them.
package review

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"slices"
	"strconv"
	"sync"

	"github.com/docsweb/docs-client/internal/events"
	"github.com/docsweb/docs-client/internal/logging"
	"github.com/docsweb/docs-client/internal/metrics"
	"github.com/docsweb/docs-client/pkg/client"
	"github.com/docsweb/docs-client/pkg/protocol"
)

const (
	PageSize       = 20
	SortColumn     = 1 // creation date
	DefaultQuotaGB = 10
	BytesPerGB     = 1e9
)

// Actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// ErrNoAction is returned by ConfirmAction when no approve or reject is
// pending.
var ErrNoAction = errors.New("review: no action selected")

// API is the part of the resource client the screen needs.
type API interface {
	Get(ctx context.Context, path string, params url.Values, out any) error
	Post(ctx context.Context, path string, form url.Values, out any) error
}

// Filter narrows the registration list.
type Filter struct {
	Status string
	Search string
}

// State is the screen's view state.
type State struct {
	Registrations []protocol.Registration
	Total         int
	LoadCount     int
	HasMore       bool
	IsLoadingMore bool
	Filter        Filter
	Error         string // last list load failure

	// Action dialog.
	DialogOpen bool
	Current    protocol.Registration
	ActionType string // "", ActionApprove or ActionReject
	QuotaGB    float64
	Message    string
	Alert      string
}

// Screen is the registration review component.
type Screen struct {
	api    API
	events *events.Broadcaster

	mu    sync.Mutex
	state State
	gen   int // bumped by every LoadRegistrations
}

// Option configures a Screen.
type Option func(*Screen)

// WithEvents publishes screen events to b.
func WithEvents(b *events.Broadcaster) Option {
	return func(s *Screen) { s.events = b }
}

// New creates a review screen showing pending registrations.
func New(api API, opts ...Option) *Screen {
	s := &Screen{
		api:   api,
		state: State{Filter: Filter{Status: protocol.RegistrationPending}},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a copy of the current state.
func (s *Screen) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Registrations = slices.Clone(s.state.Registrations)
	return st
}

// SetFilter changes the list filter. Call LoadRegistrations to apply it.
func (s *Screen) SetFilter(status, search string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Filter = Filter{Status: status, Search: search}
}

func (s *Screen) fetch(ctx context.Context, filter Filter, offset int) (*protocol.RegistrationListResponse, error) {
	var resp protocol.RegistrationListResponse
	err := s.api.Get(ctx, protocol.PathRegistration, url.Values{
		"limit":       {strconv.Itoa(PageSize)},
		"offset":      {strconv.Itoa(offset)},
		"sort_column": {strconv.Itoa(SortColumn)},
		"asc":         {"false"},
		"search":      {filter.Search},
		"status":      {filter.Status},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// LoadRegistrations reloads the first page with the current filter. The
// list is replaced only on success; a page from an older load arriving
// later is dropped.
func (s *Screen) LoadRegistrations(ctx context.Context) error {
	s.mu.Lock()
	s.gen++
	gen, filter := s.gen, s.state.Filter
	s.mu.Unlock()

	resp, err := s.fetch(ctx, filter, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil
	}
	if err != nil {
		s.state.Error = client.MessageOr(err, "Error loading registrations")
		logging.Warn("registration list failed", logging.Err(err))
		return fmt.Errorf("load registrations: %w", err)
	}
	s.state.Error = ""
	s.state.Registrations = resp.Registrations
	s.state.Total = resp.Total
	s.state.LoadCount = len(resp.Registrations)
	s.state.HasMore = s.state.Total > s.state.LoadCount
	s.events.Publish(events.Event{Component: events.ComponentReview, Kind: events.KindLoaded, Code: resp.Total})
	return nil
}

// LoadMoreRegistrations appends the next page. A call made while another
// is in flight does nothing.
func (s *Screen) LoadMoreRegistrations(ctx context.Context) error {
	s.mu.Lock()
	if s.state.IsLoadingMore {
		s.mu.Unlock()
		return nil
	}
	s.state.IsLoadingMore = true
	gen, filter, offset := s.gen, s.state.Filter, s.state.LoadCount
	s.mu.Unlock()

	resp, err := s.fetch(ctx, filter, offset)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsLoadingMore = false
	if gen != s.gen {
		logging.Debug("dropping registration page from a replaced list", logging.Int("offset", offset))
		return nil
	}
	if err != nil {
		s.state.Error = client.MessageOr(err, "Error loading registrations")
		logging.Warn("registration page failed", logging.Int("offset", offset), logging.Err(err))
		return fmt.Errorf("load registrations at offset %d: %w", offset, err)
	}
	s.state.Error = ""
	s.state.Registrations = append(s.state.Registrations, resp.Registrations...)
	s.state.LoadCount += len(resp.Registrations)
	s.state.HasMore = s.state.Total > s.state.LoadCount
	return nil
}

// Open shows a registration without selecting an action.
func (s *Screen) Open(reg protocol.Registration) {
	s.openDialog(reg, "", 0)
}

// Approve opens the dialog to approve reg with the default quota.
func (s *Screen) Approve(reg protocol.Registration) {
	s.openDialog(reg, ActionApprove, DefaultQuotaGB)
}

// Reject opens the dialog to reject reg.
func (s *Screen) Reject(reg protocol.Registration) {
	s.openDialog(reg, ActionReject, 0)
}

func (s *Screen) openDialog(reg protocol.Registration, action string, quota float64) {
	s.mu.Lock()
	s.state.Current = reg
	s.state.ActionType = action
	s.state.QuotaGB = quota
	s.state.Message = ""
	s.state.Alert = ""
	s.state.DialogOpen = true
	s.mu.Unlock()
	s.events.Publish(events.Event{Component: events.ComponentReview, Kind: events.KindDialog, Message: action})
}

// SetQuotaGB sets the storage quota granted on approval, in decimal
// gigabytes.
func (s *Screen) SetQuotaGB(gb float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.QuotaGB = gb
}

// SetMessage sets the note sent with the decision.
func (s *Screen) SetMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Message = msg
}

// QuotaBytes converts decimal gigabytes to bytes.
func QuotaBytes(gb float64) int64 {
	return int64(math.Round(gb * BytesPerGB))
}

// ConfirmAction submits the pending decision. On success the dialog
// closes and the first page is reloaded. On failure the backend message
// is put in Alert and the dialog stays open.
func (s *Screen) ConfirmAction(ctx context.Context) error {
	s.mu.Lock()
	st := s.state
	s.state.Alert = ""
	s.mu.Unlock()

	if !st.DialogOpen || (st.ActionType != ActionApprove && st.ActionType != ActionReject) {
		return ErrNoAction
	}

	form := url.Values{"message": {st.Message}}
	if st.ActionType == ActionApprove {
		form.Set("storage_quota", strconv.FormatInt(QuotaBytes(st.QuotaGB), 10))
	}

	err := s.api.Post(ctx, protocol.RegistrationActionPath(st.Current.ID, st.ActionType), form, nil)
	metrics.RecordRegistrationDecision(st.ActionType, err == nil)
	if err != nil {
		alert := client.MessageOr(err, err.Error())
		s.mu.Lock()
		s.state.Alert = alert
		s.mu.Unlock()
		logging.Warn("registration decision failed",
			logging.String("registration_id", st.Current.ID),
			logging.String("action", st.ActionType),
			logging.Err(err))
		s.events.Publish(events.Event{Component: events.ComponentReview, Kind: events.KindFailed, Message: alert})
		return err
	}

	s.mu.Lock()
	s.state.DialogOpen = false
	s.state.ActionType = ""
	s.mu.Unlock()

	logging.Info("registration decided",
		logging.String("registration_id", st.Current.ID),
		logging.String("username", st.Current.Username),
		logging.String("action", st.ActionType))
	s.events.Publish(events.Event{Component: events.ComponentReview, Kind: events.KindCompleted, Message: st.ActionType})

	return s.LoadRegistrations(ctx)
}

// Cancel closes the action dialog without submitting.
func (s *Screen) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.DialogOpen = false
	s.state.ActionType = ""
	s.state.Alert = ""
}

// DismissAlert clears the alert shown after a failed decision.
func (s *Screen) DismissAlert() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Alert = ""
}
