package server

import (
	"net/http/httptest"
	"testing"
)

func TestValidateTrackID(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantID    int64
		wantError bool
	}{
		{
			name:      "valid track ID",
			raw:       "123",
			wantID:    123,
			wantError: false,
		},
		{
			name:      "missing track ID",
			raw:       "",
			wantID:    0,
			wantError: true,
		},
		{
			name:      "invalid track ID format",
			raw:       "abc",
			wantID:    0,
			wantError: true,
		},
		{
			name:      "negative track ID",
			raw:       "-1",
			wantID:    0,
			wantError: true,
		},
		{
			name:      "zero track ID",
			raw:       "0",
			wantID:    0,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := validateTrackID(tt.raw)

			if tt.wantError && err == nil {
				t.Errorf("validateTrackID() expected error but got none")
			}
			if !tt.wantError && err != nil {
				t.Errorf("validateTrackID() unexpected error: %v", err)
			}
			if id != tt.wantID {
				t.Errorf("validateTrackID() = %v, want %v", id, tt.wantID)
			}
		})
	}
}

func TestValidatePagination(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantSkip  int
		wantLimit int
		wantError bool
	}{
		{
			name:      "defaults",
			query:     "",
			wantSkip:  0,
			wantLimit: defaultPageSize,
		},
		{
			name:      "explicit",
			query:     "?skip=20&limit=10",
			wantSkip:  20,
			wantLimit: 10,
		},
		{
			name:      "negative skip",
			query:     "?skip=-1",
			wantLimit: defaultPageSize,
			wantError: true,
		},
		{
			name:      "limit too large",
			query:     "?limit=100000",
			wantError: true,
		},
		{
			name:      "non-numeric limit",
			query:     "?limit=ten",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/tracks"+tt.query, nil)
			skip, limit, errs := validatePagination(req)

			if tt.wantError {
				if len(errs) == 0 {
					t.Errorf("validatePagination() expected error but got none")
				}
				return
			}
			if len(errs) > 0 {
				t.Errorf("validatePagination() unexpected errors: %v", errs)
			}
			if skip != tt.wantSkip || limit != tt.wantLimit {
				t.Errorf("validatePagination() = (%d, %d), want (%d, %d)", skip, limit, tt.wantSkip, tt.wantLimit)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int
		want  string
	}{
		{0, "0B"},
		{512, "< 1KB"},
		{2048, "2KB"},
		{5 * 1024 * 1024, "5MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.bytes); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
