package llm

import (
	"errors"
	"testing"

	"reasoner/pkg/config"
)

func TestNewFromConfig(t *testing.T) {
	var built []ProviderGroupConfig
	RegisterProvider("loader-test", ProviderFactoryFunc(func(g ProviderGroupConfig, s *config.SystemConfig) ([]LLMClient, error) {
		built = append(built, g)
		clients := make([]LLMClient, 0, len(g.Models))
		for range g.Models {
			clients = append(clients, &scriptedClient{})
		}
		return clients, nil
	}))
	RegisterProvider("loader-broken", ProviderFactoryFunc(func(ProviderGroupConfig, *config.SystemConfig) ([]LLMClient, error) {
		return nil, errors.New("no key")
	}))

	t.Run("single client returned directly", func(t *testing.T) {
		sys := config.DefaultSystemConfig()
		sys.DebugChunks = true
		c, err := NewFromConfig([]byte(`[{"type":"loader-test","models":["m1"]}]`), sys)
		if err != nil {
			t.Fatalf("NewFromConfig: %v", err)
		}
		sc, ok := c.(*scriptedClient)
		if !ok {
			t.Fatalf("expected bare client, got %T", c)
		}
		if !sc.debug {
			t.Fatalf("debug flag not applied")
		}
	})

	t.Run("multiple clients wrapped in fallback", func(t *testing.T) {
		raw := []byte(`[
			{"type":"unknown-provider","models":["x"]},
			{"type":"loader-broken","models":["y"]},
			{"type":"loader-test","models":["m1","m2"]}
		]`)
		c, err := NewFromConfig(raw, nil)
		if err != nil {
			t.Fatalf("NewFromConfig: %v", err)
		}
		fb, ok := c.(*FallbackClient)
		if !ok || len(fb.Clients) != 2 {
			t.Fatalf("expected fallback with 2 clients, got %#v", c)
		}
		if fb.MaxRetries != config.DefaultSystemConfig().MaxRetries {
			t.Fatalf("MaxRetries = %d", fb.MaxRetries)
		}
	})

	t.Run("nothing usable", func(t *testing.T) {
		_, err := NewFromConfig([]byte(`[{"type":"loader-broken","models":["y"]}]`), nil)
		if !errors.Is(err, ErrNoClients) {
			t.Fatalf("expected ErrNoClients, got %v", err)
		}
	})

	t.Run("api keys expand env", func(t *testing.T) {
		t.Setenv("LOADER_TEST_KEY", "sk-from-env")
		built = nil
		if _, err := NewFromConfig([]byte(`[{"type":"loader-test","models":["m"],"api_keys":["${LOADER_TEST_KEY}","literal"]}]`), nil); err != nil {
			t.Fatalf("NewFromConfig: %v", err)
		}
		if got := built[0].APIKeys; got[0] != "sk-from-env" || got[1] != "literal" {
			t.Fatalf("api keys = %v", got)
		}
	})

	t.Run("bad json", func(t *testing.T) {
		if _, err := NewFromConfig([]byte(`{"type":`), nil); err == nil {
			t.Fatal("expected parse error")
		}
	})

	if len(built) == 0 {
		t.Fatal("factory never invoked")
	}
}

func TestRegisteredProviders(t *testing.T) {
	RegisterProvider("zz-test", ProviderFactoryFunc(func(ProviderGroupConfig, *config.SystemConfig) ([]LLMClient, error) {
		return nil, nil
	}))
	found := false
	for _, name := range RegisteredProviders() {
		if name == "zz-test" {
			found = true
		}
	}
	if !found {
		t.Fatal("zz-test not listed")
	}
	if _, ok := GetProviderFactory("zz-test"); !ok {
		t.Fatal("GetProviderFactory failed")
	}
}
