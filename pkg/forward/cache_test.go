package forward

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"nocturne-hq/parity/pkg/analysis"
)

func okOutcome(target analysis.Target, body string) *analysis.ForwardOutcome {
	code := 200
	return &analysis.ForwardOutcome{
		Target:     target,
		StatusCode: &code,
		Headers:    http.Header{"Content-Type": {"application/json"}},
		Body:       []byte(body),
	}
}

func fp(method, path string) Fingerprint {
	return NewFingerprint(&ClonedRequest{Method: method, Path: path})
}

func TestResponseCache_GetPut(t *testing.T) {
	c := NewResponseCache(time.Minute, 10)
	defer c.Close()

	key := fp("GET", "/api/v1/status")
	c.Put(key, analysis.TargetLegacy, okOutcome(analysis.TargetLegacy, "{}"), 0)

	got, ok := c.Get(key, analysis.TargetLegacy)
	if !ok {
		t.Fatal("Get() missed a fresh entry")
	}
	if !got.Cached {
		t.Error("cached outcome not marked Cached")
	}
	if _, ok := c.Get(key, analysis.TargetReplacement); ok {
		t.Error("entry leaked across targets")
	}

	got.Body[0] = 'X'
	again, _ := c.Get(key, analysis.TargetLegacy)
	if string(again.Body) != "{}" {
		t.Error("caller mutation reached the cached body")
	}
}

func TestResponseCache_Expiry(t *testing.T) {
	c := NewResponseCache(time.Minute, 10)
	defer c.Close()

	key := fp("GET", "/x")
	c.Put(key, analysis.TargetLegacy, okOutcome(analysis.TargetLegacy, "{}"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get(key, analysis.TargetLegacy); ok {
		t.Error("expired entry served")
	}
}

func TestResponseCache_RejectsNonIdempotentAndFailures(t *testing.T) {
	c := NewResponseCache(time.Minute, 10)
	defer c.Close()

	c.Put(fp("POST", "/x"), analysis.TargetLegacy, okOutcome(analysis.TargetLegacy, "{}"), 0)
	c.Put(fp("GET", "/y"), analysis.TargetLegacy, &analysis.ForwardOutcome{Error: "refused"}, 0)

	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestResponseCache_LRU(t *testing.T) {
	c := NewResponseCache(time.Minute, 2)
	defer c.Close()

	a, b, d := fp("GET", "/a"), fp("GET", "/b"), fp("GET", "/d")
	c.Put(a, analysis.TargetLegacy, okOutcome(analysis.TargetLegacy, "a"), 0)
	time.Sleep(2 * time.Millisecond)
	c.Put(b, analysis.TargetLegacy, okOutcome(analysis.TargetLegacy, "b"), 0)
	time.Sleep(2 * time.Millisecond)
	c.Get(a, analysis.TargetLegacy)
	time.Sleep(2 * time.Millisecond)
	c.Put(d, analysis.TargetLegacy, okOutcome(analysis.TargetLegacy, "d"), 0)

	if _, ok := c.Get(b, analysis.TargetLegacy); ok {
		t.Error("least recently used entry was not evicted")
	}
	if _, ok := c.Get(a, analysis.TargetLegacy); !ok {
		t.Error("recently used entry was evicted")
	}
}

func TestResponseCache_Concurrent(t *testing.T) {
	c := NewResponseCache(time.Minute, 50)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fp("GET", "/p/"+string(rune('a'+i)))
			for j := 0; j < 100; j++ {
				c.Put(key, analysis.TargetLegacy, okOutcome(analysis.TargetLegacy, "{}"), 0)
				c.Get(key, analysis.TargetLegacy)
			}
		}(i)
	}
	wg.Wait()
}

func TestResponseCache_CloseStopsSweeper(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewResponseCache(time.Second, 1)
	c.Close()
	c.Close()
}
