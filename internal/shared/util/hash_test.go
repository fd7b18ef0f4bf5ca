package util

import "testing"

func TestContentHash(t *testing.T) {
	got := ContentHash([]byte(`{"a":1}`))
	if got != ContentHash([]byte(`{"a":1}`)) {
		t.Fatalf("expected stable hash, got %s", got)
	}
	for _, ch := range got {
		if !((ch >= 'a' && ch <= 'f') || (ch >= '0' && ch <= '9')) {
			t.Fatalf("hash contains non-hex character: %c", ch)
		}
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(got))
	}
}

func TestETag(t *testing.T) {
	a := ETag([]byte(`{"a":1}`))
	b := ETag([]byte(`{"a":2}`))
	if a == b {
		t.Fatalf("expected different tags for different bodies")
	}
	if len(a) != 34 || a[0] != '"' || a[33] != '"' {
		t.Fatalf("expected quoted 32 char tag, got %s", a)
	}
}
