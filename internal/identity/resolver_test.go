package identity

import (
	"testing"
	"time"
)

func TestHashString_MatchesJava(t *testing.T) {
	// Reference values from java.lang.String#hashCode.
	tests := []struct {
		in   string
		want int32
	}{
		{"", 0},
		{"a", 97},
		{"abc", 96354},
		{"hello", 99162322},
		{"call-123", -173846973},
		{"polygenelubricants", -2147483648},
	}
	for _, tt := range tests {
		if got := HashString(tt.in); got != tt.want {
			t.Errorf("HashString(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestHashString_SurrogatePairs(t *testing.T) {
	// U+1F600 is encoded as two UTF-16 units: 0xD83D 0xDE00.
	want := 31*int32(0xD83D) + int32(0xDE00)
	if got := HashString("\U0001F600"); got != want {
		t.Fatalf("HashString(emoji) = %d, want %d", got, want)
	}
}

func TestResolveID_StableForEqualCallIDs(t *testing.T) {
	r := NewResolver(nil)
	if r.ResolveID("c-1") != r.ResolveID("c-1") {
		t.Fatal("equal call ids must resolve to equal ids")
	}
	if r.ResolveID("c-1") == r.ResolveID("c-2") {
		t.Fatal("distinct call ids resolved to the same id")
	}
}

func TestResolveID_IgnoresClockForCallIDs(t *testing.T) {
	calls := 0
	r := NewResolver(ClockFunc(func() time.Time {
		calls++
		return time.Now()
	}))
	_ = r.ResolveID("c-1")
	if calls != 0 {
		t.Fatalf("clock consulted %d times for non-empty call id", calls)
	}
}

func TestResolveID_EmptyUsesMaskedClock(t *testing.T) {
	at := time.UnixMilli(0x7FFF_FFFF_FFFF)
	r := NewResolver(ClockFunc(func() time.Time { return at }))

	got := r.ResolveID("")
	want := int32(at.UnixMilli() & 0x0FFFFFFF)
	if got != want {
		t.Fatalf("ResolveID(\"\") = %d, want %d", got, want)
	}
	if got < 0 {
		t.Fatalf("time-based id must be positive, got %d", got)
	}
}

func TestResolveID_EmptyAdvancesWithClock(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	r := NewResolver(ClockFunc(func() time.Time { return now }))

	first := r.ResolveID("")
	now = now.Add(5 * time.Millisecond)
	second := r.ResolveID("")
	if first == second {
		t.Fatal("ids for deliveries 5ms apart should differ")
	}
}

func TestResolver_ZeroValue(t *testing.T) {
	var r Resolver
	if got := r.ResolveID(""); got < 0 {
		t.Fatalf("zero-value resolver returned negative id %d", got)
	}
}
