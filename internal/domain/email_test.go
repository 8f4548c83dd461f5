package domain

import (
	"errors"
	"testing"
)

func TestNewSubscriberEmail(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"plain address", "alice@example.com", "alice@example.com", true},
		{"trims whitespace", "  alice@example.com  ", "alice@example.com", true},
		{"plus addressing", "alice+news@example.com", "alice+news@example.com", true},
		{"empty", "", "", false},
		{"whitespace only", "   ", "", false},
		{"no at sign", "alice.example.com", "", false},
		{"missing domain", "alice@", "", false},
		{"missing local part", "@example.com", "", false},
		{"embedded space", "al ice@example.com", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewSubscriberEmail(tc.in)
			if tc.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.String() != tc.want {
					t.Fatalf("got %q, want %q", got, tc.want)
				}
				return
			}
			if !errors.Is(err, ErrInvalidEmail) {
				t.Fatalf("expected ErrInvalidEmail, got %v", err)
			}
		})
	}
}
