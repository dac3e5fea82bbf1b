package config

import (
	"errors"
	"os"
	"sync"
	"testing"
)

func resetGlobal() {
	configMutex.Lock()
	globalConfig = nil
	globalPath = ""
	configMutex.Unlock()
	initOnce = *new(sync.Once)
}

func TestInitialize(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	path := writeConfig(t, minimalConfig)
	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	cfg := GetConfig()
	if cfg == nil {
		t.Fatal("expected config after Initialize")
	}
	if Path() != path {
		t.Errorf("expected path %q, got %q", path, Path())
	}

	// Second call is ignored even with a broken path.
	if err := Initialize("/nonexistent.yaml"); err != nil {
		t.Errorf("second Initialize should be a no-op, got %v", err)
	}
	if GetConfig() != cfg {
		t.Error("second Initialize replaced the configuration")
	}
}

func TestInitialize_Error(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	if err := Initialize("/nonexistent.yaml"); err == nil {
		t.Fatal("expected error")
	}
	if GetConfig() != nil {
		t.Error("expected nil config after failed Initialize")
	}
}

func TestReload(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	if _, err := Reload(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}

	path := writeConfig(t, minimalConfig)
	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	before := GetConfig()

	if err := os.WriteFile(path, []byte(minimalConfig+"parity:\n  sampling_percentage: 40\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Reload()
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if cfg.Parity.SamplingPercentage != 40 {
		t.Errorf("expected sampling 40, got %g", cfg.Parity.SamplingPercentage)
	}
	if GetConfig() != cfg {
		t.Error("Reload did not publish the new configuration")
	}
	if before.Parity.SamplingPercentage != DefaultSamplingPercentage {
		t.Error("Reload mutated the previous configuration")
	}

	// A broken file keeps the current configuration.
	if err := os.WriteFile(path, []byte("parity:\n  sampling_percentage: 400\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ReloadConfig(path); err == nil {
		t.Fatal("expected reload error")
	}
	if GetConfig() != cfg {
		t.Error("failed reload replaced the configuration")
	}
}

func TestMustGetConfig_Panics(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustGetConfig()
}

func TestSetConfig_Concurrent(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	cfg := validConfig()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetConfig(cfg)
		}()
		go func() {
			defer wg.Done()
			_ = GetConfig()
		}()
	}
	wg.Wait()

	if GetConfig() != cfg {
		t.Error("expected config to be set")
	}
}
