package codec

import "testing"

func TestRoundTrip(t *testing.T) {
	keys := []string{
		"user1",
		"!@#$%^&*()_+",
		"key.with.dots",
		"key with spaces",
		"",
		"日本語のキー",
	}

	for _, k := range keys {
		token := Encode(k)
		got, err := Decode(token)
		if err != nil {
			t.Fatalf("Decode(%q) returned error: %v", token, err)
		}
		if got != k {
			t.Errorf("round trip mismatch: encoded %q, decoded to %q", k, got)
		}
	}
}

func TestDistinctKeysDontCollide(t *testing.T) {
	a := Encode("foo")
	b := Encode("bar")
	if a == b {
		t.Fatalf("distinct keys encoded to the same token: %q", a)
	}
}

func TestSubjects(t *testing.T) {
	put := PutSubject("mybase", "user1")
	del := DeleteSubject("mybase", "user1")

	if put == del {
		t.Fatalf("put and delete subjects must differ: %q", put)
	}

	wantPut := "mybase." + Encode("user1") + "-put"
	if put != wantPut {
		t.Errorf("PutSubject() = %q, want %q", put, wantPut)
	}
}
