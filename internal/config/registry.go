package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/earpiece/pkg/audio"
)

// ErrPlatformNotRegistered is returned by [Registry.CreateAudio] when no
// factory has been registered under the requested platform name.
var ErrPlatformNotRegistered = errors.New("config: audio platform not registered")

// DefaultPlatform is used when audio.platform is empty.
const DefaultPlatform = "portaudio"

// PlatformFactory builds an audio platform from the audio section.
type PlatformFactory func(AudioConfig) (audio.Platform, error)

// Registry maps platform names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	audio map[string]PlatformFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{audio: make(map[string]PlatformFactory)}
}

// RegisterAudio registers an audio platform factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterAudio(name string, factory PlatformFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// AudioNames returns the registered platform names in sorted order.
func (r *Registry) AudioNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.audio))
	for name := range r.audio {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// CreateAudio instantiates the platform registered under cfg.Platform, or
// [DefaultPlatform] when it is empty.
func (r *Registry) CreateAudio(cfg AudioConfig) (audio.Platform, error) {
	name := cfg.Platform
	if name == "" {
		name = DefaultPlatform
	}
	r.mu.RLock()
	factory, ok := r.audio[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPlatformNotRegistered, name)
	}
	return factory(cfg)
}
