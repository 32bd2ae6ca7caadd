package review

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/docsweb/docs-client/internal/testutil"
	"github.com/docsweb/docs-client/pkg/client"
	"github.com/docsweb/docs-client/pkg/protocol"
)

const (
	listRoute   = "GET /api/user/registration"
	actionRoute = "POST /api/user/registration/{id}/{action}"
)

func newScreen(t *testing.T, pending int) (*Screen, *testutil.Backend) {
	t.Helper()
	b := testutil.NewBackend(t)
	for i := 0; i < pending; i++ {
		b.Registrations = append(b.Registrations, protocol.Registration{
			ID:       fmt.Sprintf("r%02d", i),
			Username: fmt.Sprintf("user%02d", i),
			Email:    fmt.Sprintf("user%02d@example.com", i),
			Status:   protocol.RegistrationPending,
		})
	}
	return New(client.New(client.Config{BaseURL: b.URL})), b
}

func TestLoadRegistrations(t *testing.T) {
	s, b := newScreen(t, 3)

	if err := s.LoadRegistrations(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	st := s.State()
	if len(st.Registrations) != 3 || st.Total != 3 || st.LoadCount != 3 || st.HasMore {
		t.Errorf("unexpected state %+v", st)
	}

	req, _ := b.Last(listRoute)
	q := req.Query
	if q.Get("limit") != "20" || q.Get("offset") != "0" || q.Get("sort_column") != "1" || q.Get("asc") != "false" {
		t.Errorf("unexpected query %v", q)
	}
	if q.Get("status") != protocol.RegistrationPending {
		t.Errorf("expected default PENDING filter, got %q", q.Get("status"))
	}
}

func TestLoadMore_Pagination(t *testing.T) {
	s, _ := newScreen(t, 45)
	ctx := context.Background()

	s.LoadRegistrations(ctx)
	st := s.State()
	if st.LoadCount != 20 || !st.HasMore {
		t.Fatalf("after first page: %+v", st)
	}

	steps := []struct {
		loadCount int
		hasMore   bool
	}{
		{40, true},
		{45, false},
	}
	for i, step := range steps {
		if err := s.LoadMoreRegistrations(ctx); err != nil {
			t.Fatalf("load more %d: %v", i, err)
		}
		st := s.State()
		if st.LoadCount != step.loadCount || st.HasMore != step.hasMore {
			t.Errorf("step %d: expected loadCount=%d hasMore=%v, got %d %v", i, step.loadCount, step.hasMore, st.LoadCount, st.HasMore)
		}
		if st.HasMore != (st.Total > st.LoadCount) {
			t.Errorf("step %d: hasMore must equal total > loadCount", i)
		}
		if st.IsLoadingMore {
			t.Errorf("step %d: loading flag left set", i)
		}
	}
	if st := s.State(); len(st.Registrations) != 45 || st.Registrations[44].ID != "r44" {
		t.Errorf("expected all 45 registrations in order, got %d", len(st.Registrations))
	}
}

func TestLoadMore_FailureClearsFlag(t *testing.T) {
	s, b := newScreen(t, 25)
	ctx := context.Background()
	s.LoadRegistrations(ctx)

	b.Fail(listRoute, http.StatusForbidden, protocol.ErrForbidden, "denied")
	if err := s.LoadMoreRegistrations(ctx); err == nil {
		t.Fatal("expected error")
	}
	st := s.State()
	if st.IsLoadingMore {
		t.Error("loading flag must be cleared on failure")
	}
	if st.LoadCount != 20 || len(st.Registrations) != 20 {
		t.Errorf("failed page must not change the list, got %+v", st)
	}
	if st.Error != "denied" {
		t.Errorf("expected error message, got %q", st.Error)
	}
}

func TestLoadRegistrations_FailureKeepsList(t *testing.T) {
	s, b := newScreen(t, 45)
	ctx := context.Background()
	s.LoadRegistrations(ctx)

	b.Fail(listRoute, http.StatusForbidden, protocol.ErrForbidden, "denied")
	if err := s.LoadRegistrations(ctx); err == nil {
		t.Fatal("expected error")
	}
	st := s.State()
	if st.LoadCount != 20 || len(st.Registrations) != 20 || !st.HasMore || st.Error != "denied" {
		t.Fatalf("failed reload must keep the loaded list, got loadCount=%d len=%d hasMore=%v error=%q",
			st.LoadCount, len(st.Registrations), st.HasMore, st.Error)
	}

	b.Succeed(listRoute)
	if err := s.LoadMoreRegistrations(ctx); err != nil {
		t.Fatalf("load more: %v", err)
	}
	st = s.State()
	if st.LoadCount != 40 || len(st.Registrations) != 40 {
		t.Fatalf("expected 40 registrations, got loadCount=%d len=%d", st.LoadCount, len(st.Registrations))
	}
	seen := map[string]bool{}
	for _, r := range st.Registrations {
		if seen[r.ID] {
			t.Fatalf("registration %s listed twice", r.ID)
		}
		seen[r.ID] = true
	}
}

// gatedAPI holds every non-first page until release is closed.
type gatedAPI struct {
	API
	entered chan struct{}
	release chan struct{}
}

func (g *gatedAPI) Get(ctx context.Context, path string, params url.Values, out any) error {
	if params.Get("offset") != "0" {
		close(g.entered)
		<-g.release
	}
	return g.API.Get(ctx, path, params, out)
}

func TestLoadMore_DroppedAfterReload(t *testing.T) {
	b := testutil.NewBackend(t)
	for i := 0; i < 45; i++ {
		b.Registrations = append(b.Registrations, protocol.Registration{
			ID:     fmt.Sprintf("r%02d", i),
			Status: protocol.RegistrationPending,
		})
	}
	api := &gatedAPI{
		API:     client.New(client.Config{BaseURL: b.URL}),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := New(api)
	ctx := context.Background()
	s.LoadRegistrations(ctx)

	done := make(chan error, 1)
	go func() { done <- s.LoadMoreRegistrations(ctx) }()
	<-api.entered

	if err := s.LoadRegistrations(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	close(api.release)
	if err := <-done; err != nil {
		t.Fatalf("load more: %v", err)
	}

	st := s.State()
	if st.LoadCount != 20 || len(st.Registrations) != 20 || st.IsLoadingMore {
		t.Errorf("page from the replaced list must be dropped, got loadCount=%d len=%d loading=%v",
			st.LoadCount, len(st.Registrations), st.IsLoadingMore)
	}
}

func TestSetFilter(t *testing.T) {
	s, b := newScreen(t, 5)
	b.Registrations[1].Status = protocol.RegistrationApproved

	s.SetFilter(protocol.RegistrationApproved, "user01")
	s.LoadRegistrations(context.Background())
	st := s.State()
	if st.Total != 1 || st.Registrations[0].ID != "r01" {
		t.Errorf("unexpected filtered list %+v", st.Registrations)
	}
	req, _ := b.Last(listRoute)
	if req.Query.Get("search") != "user01" {
		t.Errorf("expected search param, got %q", req.Query.Get("search"))
	}
}

func TestApprove_QuotaInBytes(t *testing.T) {
	s, b := newScreen(t, 2)
	ctx := context.Background()
	s.LoadRegistrations(ctx)
	reg := s.State().Registrations[0]

	s.Approve(reg)
	st := s.State()
	if !st.DialogOpen || st.ActionType != ActionApprove || st.QuotaGB != DefaultQuotaGB {
		t.Fatalf("unexpected dialog state %+v", st)
	}

	s.SetQuotaGB(5)
	s.SetMessage("welcome")
	if err := s.ConfirmAction(ctx); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	req, _ := b.Last(actionRoute)
	if req.Path != "/api/user/registration/r00/approve" {
		t.Errorf("unexpected path %s", req.Path)
	}
	if req.Form.Get("storage_quota") != "5000000000" {
		t.Errorf("expected storage_quota 5000000000, got %q", req.Form.Get("storage_quota"))
	}
	if req.Form.Get("message") != "welcome" {
		t.Errorf("expected message, got %q", req.Form.Get("message"))
	}

	st = s.State()
	if st.DialogOpen {
		t.Error("dialog must close on success")
	}
	if st.Total != 1 {
		t.Errorf("expected reload showing 1 pending registration, got %d", st.Total)
	}
	if b.Count(listRoute) != 2 {
		t.Errorf("expected a reload after the decision, got %d list calls", b.Count(listRoute))
	}
}

func TestReject(t *testing.T) {
	s, b := newScreen(t, 1)
	ctx := context.Background()
	s.LoadRegistrations(ctx)

	s.Reject(s.State().Registrations[0])
	if err := s.ConfirmAction(ctx); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	req, _ := b.Last(actionRoute)
	if req.Path != "/api/user/registration/r00/reject" {
		t.Errorf("unexpected path %s", req.Path)
	}
	if _, ok := req.Form["storage_quota"]; ok {
		t.Error("reject must not send a quota")
	}
	if st := s.State(); st.Total != 0 {
		t.Errorf("rejected registration must leave the pending list, got %d", st.Total)
	}
}

func TestConfirmAction_FailureKeepsDialog(t *testing.T) {
	s, b := newScreen(t, 1)
	ctx := context.Background()
	s.LoadRegistrations(ctx)
	b.Fail(actionRoute, http.StatusBadRequest, protocol.ErrAlreadyProcessed, "Registration already processed")

	s.Approve(s.State().Registrations[0])
	if err := s.ConfirmAction(ctx); err == nil {
		t.Fatal("expected error")
	}
	st := s.State()
	if !st.DialogOpen || st.ActionType != ActionApprove {
		t.Errorf("dialog must stay open for retry, got %+v", st)
	}
	if st.Alert != "Registration already processed" {
		t.Errorf("expected backend message in alert, got %q", st.Alert)
	}
	if b.Count(listRoute) != 1 {
		t.Error("no reload after a failed decision")
	}

	b.Succeed(actionRoute)
	if err := s.ConfirmAction(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if st := s.State(); st.DialogOpen || st.Alert != "" {
		t.Errorf("expected closed dialog after retry, got %+v", st)
	}
}

func TestConfirmAction_NoAction(t *testing.T) {
	s, b := newScreen(t, 1)

	if err := s.ConfirmAction(context.Background()); !errors.Is(err, ErrNoAction) {
		t.Errorf("expected ErrNoAction without dialog, got %v", err)
	}
	s.Open(protocol.Registration{ID: "r00"})
	if err := s.ConfirmAction(context.Background()); !errors.Is(err, ErrNoAction) {
		t.Errorf("expected ErrNoAction for a view-only dialog, got %v", err)
	}
	s.Approve(protocol.Registration{ID: "r00"})
	s.Cancel()
	if err := s.ConfirmAction(context.Background()); !errors.Is(err, ErrNoAction) {
		t.Errorf("expected ErrNoAction after cancel, got %v", err)
	}
	if b.Count(actionRoute) != 0 {
		t.Error("no decision must be posted")
	}
}

func TestQuotaBytes(t *testing.T) {
	cases := []struct {
		gb   float64
		want int64
	}{
		{5, 5000000000},
		{10, 10000000000},
		{0.5, 500000000},
		{1.1, 1100000000},
		{0, 0},
	}
	for _, tc := range cases {
		if got := QuotaBytes(tc.gb); got != tc.want {
			t.Errorf("QuotaBytes(%v) = %d, want %d", tc.gb, got, tc.want)
		}
	}
}
