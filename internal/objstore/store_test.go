package objstore

import "testing"

func TestInsertAndGet(t *testing.T) {
	s := New()
	if ok := s.Insert("libc.so", []byte{1, 2, 3}); !ok {
		t.Fatalf("Insert on fresh store returned false")
	}
	data, ok := s.Get("libc.so")
	if !ok {
		t.Fatalf("Get after Insert returned ok=false")
	}
	if len(data) != 3 {
		t.Errorf("Get returned %d bytes, want 3", len(data))
	}
}

func TestInsertIdempotent(t *testing.T) {
	s := New()
	s.Insert("a.so", []byte{1})
	if ok := s.Insert("a.so", []byte{2, 3}); ok {
		t.Errorf("second Insert under the same name returned true, want false")
	}
	data, _ := s.Get("a.so")
	if len(data) != 1 || data[0] != 1 {
		t.Errorf("second Insert overwrote the first: got %v", data)
	}
}

func TestHas(t *testing.T) {
	s := New()
	if s.Has("missing") {
		t.Errorf("Has(missing) = true on empty store")
	}
	s.Insert("present", nil)
	if !s.Has("present") {
		t.Errorf("Has(present) = false after Insert")
	}
}

func TestNamesSorted(t *testing.T) {
	s := New()
	s.Insert("zlib.so", nil)
	s.Insert("a.out", nil)
	s.Insert("libm.so", nil)

	got := s.Names()
	want := []string{"a.out", "libm.so", "zlib.so"}
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLen(t *testing.T) {
	s := New()
	if s.Len() != 0 {
		t.Errorf("Len() = %d on empty store, want 0", s.Len())
	}
	s.Insert("a", nil)
	s.Insert("b", nil)
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}
