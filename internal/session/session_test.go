package session

import "testing"

func TestIdentityKnown(t *testing.T) {
	if (Identity{}).Known() {
		t.Error("zero identity reported as known")
	}
	if !(Identity{UserID: 42}).Known() {
		t.Error("identity with user id reported as unknown")
	}
}

func TestSessionForget(t *testing.T) {
	s := New("main", Identity{UserID: 42, UserName: "ana", AccessToken: "tok"}, nil)
	if got := s.Identity().UserID; got != 42 {
		t.Fatalf("UserID = %d, want 42", got)
	}
	s.Forget()
	if s.Identity().Known() {
		t.Error("identity still known after Forget")
	}
}

func TestSessionHeader(t *testing.T) {
	s := New("main", Identity{UserID: 1, AccessToken: "acc", RefreshToken: "ref"}, nil)
	h := s.Header()
	if got := h.Get("Authorization"); got != "Bearer acc" {
		t.Errorf("Authorization = %q, want Bearer acc", got)
	}
	if got := h.Get("X-Refresh-Token"); got != "ref" {
		t.Errorf("X-Refresh-Token = %q, want ref", got)
	}

	s.Forget()
	if h := s.Header(); len(h) != 0 {
		t.Errorf("headers after Forget = %v, want none", h)
	}
}
