package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// MockParameterApplier 模拟参数应用器
type MockParameterApplier struct {
	applied map[string]interface{}
}

func NewMockParameterApplier() *MockParameterApplier {
	return &MockParameterApplier{
		applied: make(map[string]interface{}),
	}
}

func (m *MockParameterApplier) ApplyParameters(params map[string]interface{}) error {
	for k, v := range params {
		m.applied[k] = v
	}
	return nil
}

func (m *MockParameterApplier) GetApplied(key string) interface{} {
	return m.applied[key]
}

func newTestReloader(t *testing.T) *HotReloader {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("env: dev"), 0644); err != nil {
		t.Fatalf("Failed to create temp config: %v", err)
	}
	reloader, err := NewHotReloader(configPath, DefaultHotReloadConfig())
	if err != nil {
		t.Fatalf("Failed to create hot reloader: %v", err)
	}
	return reloader
}

func TestHotReloader_New(t *testing.T) {
	reloader := newTestReloader(t)
	defer reloader.Stop()

	if reloader.configPath == "" {
		t.Error("Expected config path to be set")
	}
	if !reloader.GetLastReloadTime().IsZero() {
		t.Error("Expected zero time for last reload")
	}
}

func TestHotReloader_RegisterValidator(t *testing.T) {
	reloader := newTestReloader(t)
	defer reloader.Stop()

	reloader.RegisterValidator("window", &WindowParameterValidator{})

	if len(reloader.validators) != 1 {
		t.Errorf("Expected 1 validator, got %d", len(reloader.validators))
	}
}

func TestHotReloader_ValidateAndApply(t *testing.T) {
	reloader := newTestReloader(t)
	defer reloader.Stop()

	applier := NewMockParameterApplier()
	reloader.RegisterValidator("window", &WindowParameterValidator{})
	reloader.RegisterApplier("window", applier)

	validParams := map[string]interface{}{
		"limit":           200,
		"refresh_seconds": 60,
	}
	if err := reloader.ApplyParameters("window", validParams); err != nil {
		t.Errorf("Failed to apply valid parameters: %v", err)
	}
	if applier.GetApplied("limit") != 200 {
		t.Error("Parameters not applied correctly")
	}

	invalidParams := map[string]interface{}{
		"limit": 5000,
	}
	if err := reloader.ApplyParameters("window", invalidParams); err == nil {
		t.Error("Expected validation error but got none")
	}
}

func TestHotReloader_ApplyWithoutApplier(t *testing.T) {
	reloader := newTestReloader(t)
	defer reloader.Stop()

	reloader.RegisterValidator("window", &WindowParameterValidator{})
	err := reloader.ApplyParameters("window", map[string]interface{}{"limit": 10})
	if err == nil {
		t.Error("Expected error for missing applier")
	}
}

func TestHotReloader_StartStop(t *testing.T) {
	reloader := newTestReloader(t)

	ctx := context.Background()
	if err := reloader.Start(ctx); err != nil {
		t.Fatalf("Failed to start reloader: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := reloader.Stop(); err != nil {
		t.Errorf("Failed to stop reloader: %v", err)
	}
}

func TestWindowParameterValidator(t *testing.T) {
	validator := &WindowParameterValidator{}

	testCases := []struct {
		name    string
		params  map[string]interface{}
		wantErr bool
	}{
		{
			name:    "Valid parameters",
			params:  map[string]interface{}{"limit": 200, "refresh_seconds": 60},
			wantErr: false,
		},
		{
			name:    "Minimum values",
			params:  map[string]interface{}{"limit": 1, "refresh_seconds": 1},
			wantErr: false,
		},
		{
			name:    "Limit too large",
			params:  map[string]interface{}{"limit": 1001},
			wantErr: true,
		},
		{
			name:    "Refresh zero",
			params:  map[string]interface{}{"refresh_seconds": 0},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.Validate(tc.params)
			if tc.wantErr && err == nil {
				t.Error("Expected validation error but got none")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected valid parameters but got error: %v", err)
			}
		})
	}
}

func TestCacheParameterValidator(t *testing.T) {
	validator := &CacheParameterValidator{}

	if err := validator.Validate(map[string]interface{}{"ttl_seconds": 60}); err != nil {
		t.Errorf("Expected valid parameters but got error: %v", err)
	}
	if err := validator.Validate(map[string]interface{}{"ttl_seconds": 0}); err == nil {
		t.Error("Expected validation error but got none")
	}
	if err := validator.Validate(map[string]interface{}{"ttl_seconds": 100000}); err == nil {
		t.Error("Expected validation error but got none")
	}
}

func TestUpstreamParameterValidator(t *testing.T) {
	validator := &UpstreamParameterValidator{}

	testCases := []struct {
		name    string
		params  map[string]interface{}
		wantErr bool
	}{
		{
			name:    "Valid parameters",
			params:  map[string]interface{}{"rest_rate": 5.0, "rest_burst": 10},
			wantErr: false,
		},
		{
			name:    "Rate zero",
			params:  map[string]interface{}{"rest_rate": 0.0},
			wantErr: true,
		},
		{
			name:    "Burst too large",
			params:  map[string]interface{}{"rest_burst": 5000},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.Validate(tc.params)
			if tc.wantErr && err == nil {
				t.Error("Expected validation error but got none")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected valid parameters but got error: %v", err)
			}
		})
	}
}

func TestHotReloader_ReloadHandlerOnChange(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("env: dev"), 0644); err != nil {
		t.Fatalf("Failed to create temp config: %v", err)
	}

	cfg := DefaultHotReloadConfig()
	cfg.CooldownTime = 0
	reloader, err := NewHotReloader(configPath, cfg)
	if err != nil {
		t.Fatalf("Failed to create hot reloader: %v", err)
	}
	defer reloader.Stop()

	reloaded := make(chan struct{}, 1)
	reloader.SetReloadHandler(func() error {
		select {
		case reloaded <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := reloader.Start(ctx); err != nil {
		t.Fatalf("Failed to start reloader: %v", err)
	}

	if err := os.WriteFile(configPath, []byte("env: prod"), 0644); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected reload handler to fire")
	}
}
