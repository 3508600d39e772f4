package twitchapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestBuildAuthorizeURL(t *testing.T) {
	got, err := BuildAuthorizeURL("cid", "http://localhost/cb", "chat:read chat:edit", "xyz")
	if err != nil {
		t.Fatalf("BuildAuthorizeURL: %v", err)
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if q.Get("client_id") != "cid" || q.Get("response_type") != "code" {
		t.Errorf("unexpected query: %v", q)
	}
	if q.Get("scope") != "chat:read chat:edit" {
		t.Errorf("scope = %q", q.Get("scope"))
	}
	if q.Get("state") != "xyz" {
		t.Errorf("state = %q", q.Get("state"))
	}
}

func TestBuildAuthorizeURLMissingClientID(t *testing.T) {
	if _, err := BuildAuthorizeURL("", "http://localhost/cb", "", ""); err == nil {
		t.Fatal("expected error for missing clientID")
	}
}

func TestExchangeAuthCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/token" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "authorization_code" {
			t.Errorf("grant_type = %s", r.Form.Get("grant_type"))
		}
		if r.Form.Get("code") != "abc" {
			t.Errorf("code = %s", r.Form.Get("code"))
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600}`)); err != nil {
			t.Fatal(err)
		}
	}))
	defer srv.Close()
	old := IDBaseURL
	IDBaseURL = srv.URL
	defer func() { IDBaseURL = old }()

	res, err := ExchangeAuthCode(context.Background(), "cid", "secret", "abc", "http://localhost/cb")
	if err != nil {
		t.Fatalf("ExchangeAuthCode: %v", err)
	}
	if res.AccessToken != "at" || res.RefreshToken != "rt" || res.ExpiresIn != 3600 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestRefreshTokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Invalid refresh token"}`, http.StatusBadRequest)
	}))
	defer srv.Close()
	old := IDBaseURL
	IDBaseURL = srv.URL
	defer func() { IDBaseURL = old }()

	_, err := RefreshToken(context.Background(), "cid", "secret", "stale")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	if !strings.Contains(err.Error(), "Invalid refresh token") {
		t.Errorf("err should carry the response body: %v", err)
	}
}

func TestRefreshTokenMissingArgs(t *testing.T) {
	if _, err := RefreshToken(context.Background(), "cid", "", "rt"); err == nil {
		t.Fatal("expected error for missing secret")
	}
}
