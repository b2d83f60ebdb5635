package forumchat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestNewClient(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := NewClient()
		if c.BaseURL() != DefaultBaseURL {
			t.Errorf("expected %s, got %s", DefaultBaseURL, c.BaseURL())
		}
		if c.httpClient.Timeout != DefaultTimeout {
			t.Errorf("expected timeout %v, got %v", DefaultTimeout, c.httpClient.Timeout)
		}
	})

	t.Run("options", func(t *testing.T) {
		c := NewClient(
			WithBaseURL("https://forum.example.com/"),
			WithTimeout(5*time.Second),
			WithSessionToken("tok"),
		)
		if c.BaseURL() != "https://forum.example.com" {
			t.Errorf("trailing slash not trimmed: %s", c.BaseURL())
		}
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("timeout not applied: %v", c.httpClient.Timeout)
		}
		if c.SessionToken() != "tok" {
			t.Errorf("token not applied: %q", c.SessionToken())
		}
	})

	t.Run("ws url", func(t *testing.T) {
		tests := map[string]string{
			"http://localhost:8080": "ws://localhost:8080/ws",
			"https://forum.example": "wss://forum.example/ws",
		}
		for in, want := range tests {
			if got := NewClient(WithBaseURL(in)).WSURL(); got != want {
				t.Errorf("%s: expected %s, got %s", in, want, got)
			}
		}
	})
}

func TestClientFetchMessages(t *testing.T) {
	var gotQuery string
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		if c, err := r.Cookie(SessionCookieName); err == nil {
			gotCookie = c.Value
		}
		if r.URL.Query().Get("offset") == "10" {
			w.Write([]byte("null"))
			return
		}
		json.NewEncoder(w).Encode([]Message{msgAt("bob", "alice", 1), msgAt("alice", "bob", 2)})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithSessionToken("tok"), WithLogger(discardLogger()))
	ctx := context.Background()

	page, err := c.FetchMessages(ctx, "alice", "bob", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[1].From != "alice" {
		t.Errorf("unexpected page: %+v", page)
	}
	if gotQuery != "from=alice&offset=0&to=bob" {
		t.Errorf("unexpected query: %s", gotQuery)
	}
	if gotCookie != "tok" {
		t.Errorf("session cookie not sent, got %q", gotCookie)
	}

	page, err = c.FetchMessages(ctx, "alice", "bob", 10)
	if err != nil {
		t.Fatal(err)
	}
	if page == nil || len(page) != 0 {
		t.Errorf("null body must decode to an empty page, got %#v", page)
	}
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithLogger(discardLogger()))

	_, err := c.Logged(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fe.StatusCode != http.StatusUnauthorized || fe.Path != "/logged" {
		t.Errorf("unexpected error: %+v", fe)
	}

	t.Run("transport failure", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		c := NewClient(WithBaseURL(dead.URL), WithLogger(discardLogger()))
		_, err := c.FetchMessages(context.Background(), "alice", "bob", 0)
		var fe *FetchError
		if !errors.As(err, &fe) || fe.StatusCode != 0 || fe.Err == nil {
			t.Fatalf("expected transport FetchError, got %v", err)
		}
	})

	t.Run("invalid notification", func(t *testing.T) {
		_, err := c.ReportNotification(context.Background(), &NotificationRequest{Sender: "bob"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestClientLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			var opts LoginOptions
			json.NewDecoder(r.Body).Decode(&opts)
			if opts.Password != "secret" {
				http.Error(w, "Invalid credentials", http.StatusUnauthorized)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: "sess-1", Path: "/"})
			json.NewEncoder(w).Encode(LoggedResult{Username: "alice"})
		case "/logged":
			c, err := r.Cookie(SessionCookieName)
			if err != nil || c.Value != "sess-1" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(LoggedResult{Username: "alice"})
		case "/logout":
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithLogger(discardLogger()))
	ctx := context.Background()

	if _, err := c.Login(ctx, &LoginOptions{Identifier: "alice"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing password must fail validation, got %v", err)
	}
	if _, err := c.Login(ctx, &LoginOptions{Identifier: "alice", Password: "wrong"}); err == nil {
		t.Fatal("expected login failure")
	}

	me, err := c.Login(ctx, &LoginOptions{Identifier: "alice", Password: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	if me.Username != "alice" || c.SessionToken() != "sess-1" {
		t.Fatalf("unexpected login result %+v token %q", me, c.SessionToken())
	}
	if _, err := c.Logged(ctx); err != nil {
		t.Fatalf("session must be valid after login: %v", err)
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if c.SessionToken() != "" {
		t.Error("logout must forget the session token")
	}
	if _, err := c.Logged(ctx); err == nil {
		t.Error("expected logged check to fail after logout")
	}
}
