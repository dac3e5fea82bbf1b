package forward

import "testing"

func TestFingerprint_Normalization(t *testing.T) {
	a := NewFingerprint(&ClonedRequest{Method: "get", Path: "/api/v1//entries/", RawQuery: "b=2&a=1"})
	b := NewFingerprint(&ClonedRequest{Method: "GET", Path: "/api/v1/entries", RawQuery: "a=1&b=2"})

	if a.Key() != b.Key() {
		t.Errorf("equivalent requests have different keys: %+v vs %+v", a, b)
	}
}

func TestFingerprint_BodyHash(t *testing.T) {
	post1 := NewFingerprint(&ClonedRequest{Method: "POST", Path: "/api/v1/treatments", Body: []byte(`{"carbs":10}`)})
	post2 := NewFingerprint(&ClonedRequest{Method: "POST", Path: "/api/v1/treatments", Body: []byte(`{"carbs":20}`)})
	get1 := NewFingerprint(&ClonedRequest{Method: "GET", Path: "/x", Body: []byte("a")})
	get2 := NewFingerprint(&ClonedRequest{Method: "GET", Path: "/x", Body: []byte("b")})

	if post1.Key() == post2.Key() {
		t.Error("different POST bodies share a fingerprint")
	}
	if get1.Key() != get2.Key() {
		t.Error("GET fingerprint depends on body")
	}
}

func TestTemplatePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/api/v1/entries", "/api/v1/entries"},
		{"/api/v1/entries/5f3e1c2b9a8d7e6f5a4b3c2d", "/api/v1/entries/{id}"},
		{"/api/v1/profile/123/store", "/api/v1/profile/{id}/store"},
		{"/api/v3/treatments/8b6f6a8e-1c0e-4f7a-9a55-2d1f0c1e9b3a", "/api/v3/treatments/{id}"},
		{"/api/v1/entries/sgv", "/api/v1/entries/sgv"},
	}
	for _, tt := range tests {
		if got := TemplatePath(tt.in); got != tt.want {
			t.Errorf("TemplatePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	fp := NewFingerprint(&ClonedRequest{Method: "GET", Path: "/api/v1/entries/42"})
	if fp.Endpoint() != "GET /api/v1/entries/{id}" {
		t.Errorf("Endpoint() = %q", fp.Endpoint())
	}
}
