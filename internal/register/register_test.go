package register

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/docsweb/docs-client/internal/testutil"
	"github.com/docsweb/docs-client/pkg/client"
	"github.com/docsweb/docs-client/pkg/protocol"
)

const route = "PUT /api/user/registration"

func newForm(t *testing.T) (*Form, *testutil.Backend) {
	t.Helper()
	b := testutil.NewBackend(t)
	return New(client.New(client.Config{BaseURL: b.URL})), b
}

func TestSubmit_Success(t *testing.T) {
	f, b := newForm(t)

	err := f.Submit(context.Background(), User{Username: "alice", Password: "password1", Email: "a@example.com", Message: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s := f.State(); !s.Success || s.Error {
		t.Errorf("expected success state, got %+v", s)
	}

	req, _ := b.Last(route)
	if req.Form.Get("username") != "alice" || req.Form.Get("email") != "a@example.com" || req.Form.Get("password") != "password1" {
		t.Errorf("unexpected form: %v", req.Form)
	}
	if req.Form.Get("message") != "hi" {
		t.Errorf("expected message hi, got %q", req.Form.Get("message"))
	}
}

func TestSubmit_ValidationPasswordAndEmail(t *testing.T) {
	f, b := newForm(t)
	b.Fail(route, http.StatusBadRequest, protocol.ErrValidation, "password must be at least 8 characters; email must be valid")

	if err := f.Submit(context.Background(), User{Username: "alice"}); err == nil {
		t.Fatal("expected error")
	}
	s := f.State()
	if !s.Error || !s.ErrorPassword || !s.ErrorEmail {
		t.Errorf("expected password and email flags, got %+v", s)
	}
	if s.ErrorUsername {
		t.Error("username flag must not be set")
	}
}

func TestSubmit_ValidationIsCaseSensitive(t *testing.T) {
	f, b := newForm(t)
	b.Fail(route, http.StatusBadRequest, protocol.ErrValidation, "Username is too short")

	f.Submit(context.Background(), User{})
	if s := f.State(); s.ErrorUsername {
		t.Errorf("capitalized field name must not match, got %+v", s)
	}
}

func TestSubmit_ConflictTypes(t *testing.T) {
	cases := []struct {
		errType string
		check   func(State) bool
	}{
		{protocol.ErrAlreadyExistingUsername, func(s State) bool { return s.ErrorAlreadyExists && !s.ErrorRegistrationPending }},
		{protocol.ErrRegistrationPending, func(s State) bool { return s.ErrorRegistrationPending && !s.ErrorAlreadyExists }},
	}
	for _, tc := range cases {
		t.Run(tc.errType, func(t *testing.T) {
			f, b := newForm(t)
			b.Fail(route, http.StatusBadRequest, tc.errType, "username taken")

			f.Submit(context.Background(), User{Username: "alice"})
			s := f.State()
			if !s.Error || !tc.check(s) {
				t.Errorf("unexpected state %+v", s)
			}
			if s.ErrorUsername {
				t.Error("field flags must not be set for conflict errors")
			}
		})
	}
}

func TestSubmit_OtherTypesOnlyGenericFlag(t *testing.T) {
	for _, errType := range []string{"ForbiddenError", "UnknownError", ""} {
		t.Run(errType, func(t *testing.T) {
			f, b := newForm(t)
			b.Fail(route, http.StatusInternalServerError, errType, "username password email")

			f.Submit(context.Background(), User{})
			if s := f.State(); s != (State{Error: true}) {
				t.Errorf("expected only the generic flag, got %+v", s)
			}
		})
	}
}

func TestSubmit_RetryClearsFlags(t *testing.T) {
	f, b := newForm(t)
	b.Fail(route, http.StatusBadRequest, protocol.ErrValidation, "username")
	f.Submit(context.Background(), User{})
	if !f.State().ErrorUsername {
		t.Fatal("expected username flag after first attempt")
	}

	b.Fail(route, http.StatusBadRequest, protocol.ErrRegistrationPending, "pending")
	f.Submit(context.Background(), User{})
	s := f.State()
	if s.ErrorUsername {
		t.Error("username flag must be cleared on retry")
	}
	if !s.ErrorRegistrationPending {
		t.Error("expected pending flag")
	}

	b.Succeed(route)
	f.Submit(context.Background(), User{})
	if s := f.State(); s != (State{Success: true}) {
		t.Errorf("expected clean success state, got %+v", s)
	}
}

func TestClassify_TransportError(t *testing.T) {
	if s := Classify(errors.New("connection refused")); s != (State{Error: true}) {
		t.Errorf("expected generic flag only, got %+v", s)
	}
}
