package parampluck

import "testing"

func TestRequiredStringMissing(t *testing.T) {
	p, err := Parse(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = p.RequiredString("workspaceId")
	if err == nil {
		t.Fatalf("expected missing error")
	}
	if err.Error() != "missing `workspaceId`" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestRequiredStringWrongType(t *testing.T) {
	p, err := Parse([]byte(`{"workspaceId": 5}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = p.RequiredString("workspaceId")
	if err == nil {
		t.Fatalf("expected invalid error")
	}
	if got := err.Error(); got != "invalid `workspaceId`: expected a string" {
		t.Fatalf("unexpected message: %s", got)
	}
}

func TestOptionalU32BoundedLimits(t *testing.T) {
	p, err := Parse([]byte(`{"limit": 500}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	v, err := p.OptionalU32Bounded("limit", 50, MaxLimit)
	if err != nil || v != 500 {
		t.Fatalf("expected limit=500 to be accepted, got v=%d err=%v", v, err)
	}

	p, _ = Parse([]byte(`{"limit": 501}`))
	if _, err := p.OptionalU32Bounded("limit", 50, MaxLimit); err == nil {
		t.Fatalf("expected limit=501 to be rejected")
	}

	p, _ = Parse(nil)
	v, err = p.OptionalU32Bounded("limit", 50, MaxLimit)
	if err != nil || v != 50 {
		t.Fatalf("expected default 50, got v=%d err=%v", v, err)
	}
}

func TestBoundsMatchSpecExamples(t *testing.T) {
	cases := []struct {
		field string
		max   uint32
		value uint32
		ok    bool
	}{
		{"limit", MaxLimit, 500, true},
		{"limit", MaxLimit, 501, false},
		{"days", MaxDays, 366, true},
		{"days", MaxDays, 367, false},
		{"pr_number", MaxPRNumber, 10_000_000, true},
		{"pr_number", MaxPRNumber, 10_000_001, false},
	}
	for _, c := range cases {
		p, err := Parse([]byte(`{"v": ` + itoa(c.value) + `}`))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		_, err = p.OptionalU32Bounded("v", 0, c.max)
		if c.ok && err != nil {
			t.Fatalf("%s=%d: expected accepted, got %v", c.field, c.value, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("%s=%d: expected rejected", c.field, c.value)
		}
	}
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [12]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func TestOptionalStringArray(t *testing.T) {
	p, err := Parse([]byte(`{"tags": ["a", "b"]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	arr, err := p.OptionalStringArray("tags")
	if err != nil || len(arr) != 2 || arr[0] != "a" {
		t.Fatalf("unexpected result: %v %v", arr, err)
	}

	p, _ = Parse(nil)
	arr, err = p.OptionalStringArray("tags")
	if err != nil || arr != nil {
		t.Fatalf("expected nil for absent array, got %v %v", arr, err)
	}
}
