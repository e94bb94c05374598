package dns

import (
	"context"
	"errors"
	"testing"
)

func TestPick(t *testing.T) {
	tests := []struct {
		name string
		ips  []string
		want string
		err  error
	}{
		{"empty", nil, "", ErrNoAddress},
		{"ipv4 preferred", []string{"2606:4700::1", "104.16.0.1"}, "104.16.0.1", nil},
		{"ipv6 only", []string{"2606:4700::1"}, "2606:4700::1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pick(tt.ips)
			if !errors.Is(err, tt.err) || got != tt.want {
				t.Errorf("pick(%v) = %q, %v; want %q, %v", tt.ips, got, err, tt.want, tt.err)
			}
		})
	}
}

func TestLookupPassesLiterals(t *testing.T) {
	for _, host := range []string{"127.0.0.1", "::1"} {
		got, err := Lookup(context.Background(), host)
		if err != nil || got != host {
			t.Errorf("Lookup(%q) = %q, %v", host, got, err)
		}
	}
}

func TestTrimBrackets(t *testing.T) {
	if got := trimBrackets("[2620:fe::fe]"); got != "2620:fe::fe" {
		t.Errorf("trimBrackets = %q", got)
	}
	if got := trimBrackets("9.9.9.9"); got != "9.9.9.9" {
		t.Errorf("trimBrackets = %q", got)
	}
}
