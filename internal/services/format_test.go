package services_test

import (
	"testing"
	"time"

	"github.com/abrezinsky/voterewards/internal/services"
)

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "1 second"},
		{400 * time.Millisecond, "1 second"},
		{time.Second, "1 second"},
		{45 * time.Second, "45 seconds"},
		{30 * time.Minute, "30 minutes"},
		{time.Minute + 1500*time.Millisecond, "1 minute and 2 seconds"},
		{90 * time.Minute, "1 hour and 30 minutes"},
		{2*time.Hour + 5*time.Second, "2 hours and 5 seconds"},
		{25*time.Hour + 30*time.Minute, "1 day and 1 hour"},
		{8 * 24 * time.Hour, "1 week and 1 day"},
		{-30 * time.Minute, "30 minutes"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := services.FormatRemaining(tt.in); got != tt.want {
				t.Errorf("FormatRemaining(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestServiceError_Error(t *testing.T) {
	err := &services.ServiceError{Message: "test error message"}
	if err.Error() != "test error message" {
		t.Errorf("expected 'test error message', got %q", err.Error())
	}
}
