package youtubeapi

import (
	"context"
	"strings"
	"testing"
)

func TestNew_ScopeParsing(t *testing.T) {
	tests := []struct {
		name       string
		scopesConf string
		wantLen    int
	}{
		{
			name:       "defaults",
			scopesConf: "",
			wantLen:    2,
		},
		{
			name:       "comma separated",
			scopesConf: "scope1,scope2,scope3",
			wantLen:    3,
		},
		{
			name:       "space separated",
			scopesConf: "scope1 scope2 scope3",
			wantLen:    3,
		},
		{
			name:       "mixed separators",
			scopesConf: "scope1, scope2 scope3",
			wantLen:    3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New("cid", "secret", "http://localhost/callback", tt.scopesConf)
			if len(svc.conf.Scopes) != tt.wantLen {
				t.Errorf("scopes length = %d, want %d", len(svc.conf.Scopes), tt.wantLen)
			}
		})
	}
}

func TestAuthCodeURL(t *testing.T) {
	svc := New("test-client-id", "secret", "http://localhost/callback", "")

	url := svc.AuthCodeURL("test-state")
	if url == "" {
		t.Fatal("AuthCodeURL returned empty string")
	}
	if !strings.Contains(url, "client_id=test-client-id") {
		t.Errorf("URL missing client_id: %s", url)
	}
	if !strings.Contains(url, "state=test-state") {
		t.Errorf("URL missing state: %s", url)
	}
	if !strings.Contains(url, "access_type=offline") {
		t.Errorf("URL missing access_type=offline: %s", url)
	}
}

func TestClientEmptyToken(t *testing.T) {
	svc := New("cid", "secret", "http://localhost/callback", "")
	if _, err := svc.Client(context.Background(), ""); err == nil {
		t.Error("Client() with empty token should return error")
	}
}
