package appctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActor(t *testing.T) {
	t.Run("should default to system", func(t *testing.T) {
		assert.Equal(t, "system", GetActor(context.Background()))
	})

	t.Run("should return the recorded actor", func(t *testing.T) {
		ctx := SetActor(context.Background(), "ops@example.com")
		assert.Equal(t, "ops@example.com", GetActor(ctx))
	})
}

func TestFields(t *testing.T) {
	t.Run("should include only populated values", func(t *testing.T) {
		ctx := SetRequestID(context.Background(), "req-1")
		ctx = SetSource(ctx, SourceKafka)
		ctx = SetMethod(ctx, "GET")

		assert.Equal(t, map[string]any{
			"X-Request-Id": "req-1",
			"X-Source":     SourceKafka,
		}, Fields(ctx))
	})
}
