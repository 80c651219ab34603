package reasoning

import (
	"errors"
	"strings"
	"testing"

	"github.com/tripsmith-ai/tripsmith/core"
)

// emptyNameFactory exercises the empty-name registration guard.
type emptyNameFactory struct{}

func (f *emptyNameFactory) Name() string                        { return "" }
func (f *emptyNameFactory) Description() string                 { return "nameless" }
func (f *emptyNameFactory) Create(config *Config) core.AIClient { return &mockAIClient{} }
func (f *emptyNameFactory) DetectEnvironment() (int, bool)      { return 0, false }

func TestRegister(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()
	registry = &ProviderRegistry{providers: make(map[string]ProviderFactory)}

	if err := Register(nil); err == nil {
		t.Error("expected error for nil factory")
	}

	if err := Register(&emptyNameFactory{}); err == nil {
		t.Error("expected error for empty provider name")
	}

	factory := &mockFactory{name: "test-provider"}
	if err := Register(factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := Register(&mockFactory{name: "test-provider"})
	if err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if !errors.Is(err, core.ErrAlreadyRegistered) {
		t.Errorf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestMustRegisterPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for nil factory")
		}
	}()
	MustRegister(nil)
}

func TestGetProviderAndList(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()
	registry = &ProviderRegistry{providers: make(map[string]ProviderFactory)}

	if _, exists := GetProvider("absent"); exists {
		t.Error("expected absent provider to be missing")
	}

	MustRegister(&mockFactory{name: "zeta"})
	MustRegister(&mockFactory{name: "alpha"})

	factory, exists := GetProvider("alpha")
	if !exists || factory.Name() != "alpha" {
		t.Errorf("expected alpha factory, got %v exists=%v", factory, exists)
	}

	names := ListProviders()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("expected sorted [alpha zeta], got %v", names)
	}
}

func TestGetProviderInfo(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()
	registry = &ProviderRegistry{providers: make(map[string]ProviderFactory)}

	MustRegister(&mockFactory{name: "low", priority: 50, available: true})
	MustRegister(&mockFactory{name: "high", priority: 100, available: true})
	MustRegister(&mockFactory{name: "off", priority: 0, available: false})

	infos := GetProviderInfo()
	if len(infos) != 3 {
		t.Fatalf("expected 3 provider infos, got %d", len(infos))
	}
	if infos[0].Name != "high" || infos[1].Name != "low" {
		t.Errorf("expected priority ordering [high low ...], got %v", infos)
	}
	if !infos[0].Available {
		t.Error("expected high provider to be available")
	}
	if infos[2].Name != "off" || infos[2].Available {
		t.Errorf("expected unavailable off provider last, got %+v", infos[2])
	}
}

func TestDetectBestProvider(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()

	tests := []struct {
		name         string
		factories    []ProviderFactory
		expectedName string
		wantErr      bool
	}{
		{
			name: "single available provider",
			factories: []ProviderFactory{
				&mockFactory{name: "provider1", priority: 100, available: true},
			},
			expectedName: "provider1",
		},
		{
			name: "multiple providers, highest priority wins",
			factories: []ProviderFactory{
				&mockFactory{name: "provider1", priority: 50, available: true},
				&mockFactory{name: "provider2", priority: 100, available: true},
				&mockFactory{name: "provider3", priority: 75, available: true},
			},
			expectedName: "provider2",
		},
		{
			name: "priority tie breaks alphabetically",
			factories: []ProviderFactory{
				&mockFactory{name: "bravo", priority: 100, available: true},
				&mockFactory{name: "alpha", priority: 100, available: true},
			},
			expectedName: "alpha",
		},
		{
			name: "only unavailable providers",
			factories: []ProviderFactory{
				&mockFactory{name: "provider1", priority: 100, available: false},
				&mockFactory{name: "provider2", priority: 200, available: false},
			},
			wantErr: true,
		},
		{
			name:      "no providers registered",
			factories: []ProviderFactory{},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry = &ProviderRegistry{providers: make(map[string]ProviderFactory)}
			for _, f := range tt.factories {
				registry.providers[f.Name()] = f
			}

			providerName, err := detectBestProvider(&mockLogger{})

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, core.ErrProviderUnavailable) {
					t.Errorf("expected ErrProviderUnavailable, got %v", err)
				}
				if !strings.Contains(err.Error(), "no reasoning provider detected") {
					t.Errorf("unexpected error message: %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if providerName != tt.expectedName {
				t.Errorf("expected provider %s, got %s", tt.expectedName, providerName)
			}
		})
	}
}

func TestBuiltinProvidersRegistered(t *testing.T) {
	if _, exists := GetProvider("gemini"); !exists {
		t.Error("expected gemini provider registered at init")
	}
	if _, exists := GetProvider("mock"); !exists {
		t.Error("expected mock provider registered at init")
	}
}
