package ragged

import "github.com/ragged-ml/ragged/internal/buffer"

// Container is the buffer store consumed during reconstruction. Only keyed
// lookup is required; the engine never writes back into it.
type Container interface {
	Get(key string) (buffer.Array, bool)
}

// MapContainer adapts a plain map to the Container contract.
type MapContainer map[string]buffer.Array

// Get looks up a buffer by key.
func (m MapContainer) Get(key string) (buffer.Array, bool) {
	v, ok := m[key]
	return v, ok
}
