package channels

import (
	"sort"
	"sync"

	"reasoner/pkg/api"
	"reasoner/pkg/config"
	"reasoner/pkg/llm"

	jsoniter "github.com/json-iterator/go"
)

// Channel is re-exported so factories only import this package.
type Channel = api.Channel

// ChannelFactory builds a platform channel from its raw config entry.
// A factory may return (nil, nil) to skip a channel that is not configured.
type ChannelFactory interface {
	Create(rawConfig jsoniter.RawMessage, sessions *llm.SessionManager, system *config.SystemConfig) (Channel, error)
}

var (
	registryMu      sync.RWMutex
	channelRegistry = make(map[string]ChannelFactory)
)

// RegisterChannel adds a factory, usually from a package init().
func RegisterChannel(name string, factory ChannelFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	channelRegistry[name] = factory
}

// GetChannelFactory retrieves a registered factory by platform name.
func GetChannelFactory(name string) (ChannelFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := channelRegistry[name]
	return f, ok
}

// RegisteredChannels lists factory names in sorted order.
func RegisteredChannels() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(channelRegistry))
	for name := range channelRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
