package money

import (
	"errors"
	"testing"
)

func mustParse(t *testing.T, s string) Amount {
	t.Helper()
	a, err := Parse(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return a
}

func TestParseCanonical(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0.0000"},
		{"1", "1.0000"},
		{"1.5", "1.5000"},
		{"10.0", "10.0000"},
		{"-3.25", "-3.2500"},
		{"0.0001", "0.0001"},
		{"  42.42  ", "42.4200"},
		{"922337203685477.5807", "922337203685477.5807"},
		{"-922337203685477.5808", "-922337203685477.5808"},
	}
	for _, c := range cases {
		got := mustParse(t, c.in).String()
		if got != c.want {
			t.Fatalf("parse %q: got %s, want %s", c.in, got, c.want)
		}
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	bad := []string{
		"",
		"   ",
		"abc",
		"1.23456",
		"1.2.3",
		"1e5",
		"+1",
		"--1",
		".5",
		"-",
		"12a",
		"1.2a",
	}
	for _, s := range bad {
		if _, err := Parse(s); err == nil {
			t.Fatalf("parse %q: expected error", s)
		}
	}
}

func TestParseOverflow(t *testing.T) {
	if _, err := Parse("922337203685477.5808"); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := Parse("99999999999999999999"); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestCheckedAdd(t *testing.T) {
	a := mustParse(t, "1.5")
	b := mustParse(t, "2.25")
	sum, err := a.CheckedAdd(b)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if sum.String() != "3.7500" {
		t.Fatalf("got %s", sum)
	}

	if _, err := Max.CheckedAdd(1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := Min.CheckedAdd(-1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := Max.CheckedAdd(Min); err != nil {
		t.Fatalf("max+min must not overflow: %v", err)
	}
}

func TestCheckedSub(t *testing.T) {
	a := mustParse(t, "1.0")
	diff, err := a.CheckedSub(mustParse(t, "0.4"))
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	if diff.String() != "0.6000" {
		t.Fatalf("got %s", diff)
	}

	if _, err := Min.CheckedSub(1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := Max.CheckedSub(-1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := Zero.CheckedSub(Max); err != nil {
		t.Fatalf("0-max must not overflow: %v", err)
	}
}

func TestFormatNegativeFraction(t *testing.T) {
	a := mustParse(t, "-0.0001")
	if a.String() != "-0.0001" {
		t.Fatalf("got %s", a)
	}
	if !a.IsNegative() {
		t.Fatalf("expected negative")
	}
}
