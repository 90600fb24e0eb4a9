package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Model = (*MockModel)(nil)

func TestMockModel(t *testing.T) {
	t.Run("replays scripted responses", func(t *testing.T) {
		m := NewMockModel("test-model", "mock")
		m.Enqueue(Response{Text: "first"})
		m.Enqueue(Response{Text: "second"})

		resp, err := m.Chat(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
		require.NoError(t, err)
		assert.Equal(t, "first", resp.Text)

		resp, err = m.Chat(context.Background(), Request{})
		require.NoError(t, err)
		assert.Equal(t, "second", resp.Text)

		// Script exhausted.
		_, err = m.Chat(context.Background(), Request{})
		assert.Error(t, err)

		require.Len(t, m.Requests(), 3)
		assert.Equal(t, "hi", m.Requests()[0].Messages[0].Content)
	})

	t.Run("fail with", func(t *testing.T) {
		m := NewMockModel("test-model", "mock")
		m.FailWith(errors.New("boom"))

		_, err := m.Chat(context.Background(), Request{})
		assert.ErrorContains(t, err, "boom")
	})

	t.Run("honors cancellation", func(t *testing.T) {
		m := NewMockModel("test-model", "mock")
		m.Enqueue(Response{Text: "never"})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := m.Chat(ctx, Request{})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("info", func(t *testing.T) {
		m := NewMockModel("test-model", "mock")

		info := m.Info()
		assert.Equal(t, "test-model", info.Name)
		assert.Equal(t, "mock", info.Provider)
		assert.True(t, info.SupportsTools)
	})
}
