package types

// DefaultMap is a generic map wrapper that returns default values for missing keys.
//
// Example use case:
//
//	balances := NewDefaultMap[string](func() uint64 { return 0 })
//	balances.Update("addr", func(v uint64) uint64 { return v + 10 })
type DefaultMap[K comparable, V any] struct {
	data        map[K]V
	defaultFunc func() V
}

// NewDefaultMap creates an empty DefaultMap using defaultFunc for missing keys.
func NewDefaultMap[K comparable, V any](defaultFunc func() V) DefaultMap[K, V] {
	return DefaultMap[K, V]{
		data:        make(map[K]V),
		defaultFunc: defaultFunc,
	}
}

// Get returns the value for key, storing and returning a default when absent.
func (d *DefaultMap[K, V]) Get(key K) V {
	val, ok := d.data[key]
	if ok {
		return val
	}

	val = d.defaultFunc()
	d.data[key] = val
	return val
}

// Set assigns val to key.
func (d *DefaultMap[K, V]) Set(key K, val V) {
	d.data[key] = val
}

// Update replaces the value for key with fn applied to its current (or default) value.
func (d *DefaultMap[K, V]) Update(key K, fn func(V) V) {
	d.data[key] = fn(d.Get(key))
}

// ToMap returns the underlying map.
func (d *DefaultMap[K, V]) ToMap() map[K]V {
	return d.data
}
