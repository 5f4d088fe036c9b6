package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeDiscoveryKey(t *testing.T) {
	t.Run("key is order independent", func(t *testing.T) {
		require.Equal(t, ComputeDiscoveryKey([]string{"1", "2"}), ComputeDiscoveryKey([]string{"2", "1"}))
	})

	t.Run("key joins sorted ids with underscore", func(t *testing.T) {
		require.Equal(t, "1_2", ComputeDiscoveryKey([]string{"2", "1"}))
		require.Equal(t, "a_b_c", ComputeDiscoveryKey([]string{"c", "a", "b"}))
	})

	t.Run("key does not mutate its input", func(t *testing.T) {
		ids := []string{"z", "a"}
		ComputeDiscoveryKey(ids)
		require.Equal(t, []string{"z", "a"}, ids)
	})
}

func TestMessageReadBy(t *testing.T) {
	m := Message{
		Id: "m1",
		Receipts: []MessageReceipt{
			{MessageID: "m1", ReaderID: "u1"},
		},
	}
	require.True(t, m.ReadBy("u1"))
	require.False(t, m.ReadBy("u2"))
}
