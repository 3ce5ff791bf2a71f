package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		provided   string
		configured string
		want       bool
	}{
		{"match", "admin-key", "admin-key", true},
		{"mismatch same length", "admin-kez", "admin-key", false},
		{"prefix only", "admin", "admin-key", false},
		{"empty provided", "", "admin-key", false},
		{"empty configured", "admin-key", "", false},
		{"both empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateAPIKey(tt.provided, tt.configured); got != tt.want {
				t.Errorf("ValidateAPIKey(%q, %q) = %v, want %v", tt.provided, tt.configured, got, tt.want)
			}
		})
	}
}

func TestExtractAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr string
	}{
		{name: "bearer", header: "Bearer admin-key", want: "admin-key"},
		{name: "surrounding space trimmed", header: "Bearer  admin-key ", want: "admin-key"},
		{name: "missing header", wantErr: "missing Authorization header"},
		{name: "basic scheme", header: "Basic YWRtaW4=", wantErr: "invalid Authorization header format"},
		{name: "lowercase scheme", header: "bearer admin-key", wantErr: "invalid Authorization header format"},
		{name: "blank key", header: "Bearer   ", wantErr: "missing API key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/events", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractAPIKey(req)
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Fatalf("expected error %q, got key=%q err=%v", tt.wantErr, got, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ExtractAPIKey = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}
