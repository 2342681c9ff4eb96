package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultMap_Get(t *testing.T) {
	t.Run("returns existing value", func(t *testing.T) {
		dm := NewDefaultMap[string](func() int { return 0 })
		dm.Set("existing", 100)

		assert.Equal(t, 100, dm.Get("existing"))
	})

	t.Run("stores default for missing key", func(t *testing.T) {
		dm := NewDefaultMap[string](func() []int { return []int{} })

		value := dm.Get("missing")
		assert.Empty(t, value)
		assert.Contains(t, dm.ToMap(), "missing")
	})
}

func TestDefaultMap_Update(t *testing.T) {
	t.Run("applies function to default", func(t *testing.T) {
		dm := NewDefaultMap[string](func() uint64 { return 7 })

		dm.Update("a", func(v uint64) uint64 { return v + 3 })
		assert.Equal(t, uint64(10), dm.Get("a"))
	})

	t.Run("applies function to existing value", func(t *testing.T) {
		dm := NewDefaultMap[string](func() uint64 { return 0 })
		dm.Set("a", 5)

		dm.Update("a", func(v uint64) uint64 { return v * 2 })
		assert.Equal(t, map[string]uint64{"a": 10}, dm.ToMap())
	})
}
