package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardIsStablePerKey(t *testing.T) {
	for _, n := range []int{1, 3, 8} {
		a := shard([]byte("item-42"), n)
		assert.Equal(t, a, shard([]byte("item-42"), n))
		assert.GreaterOrEqual(t, a, 0)
		assert.Less(t, a, n)
	}
	assert.Equal(t, 0, shard(nil, 1))
}
