package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failing struct{ Nop }

func (failing) Record(context.Context, Entry) error { return errors.New("mongo down") }

func TestMemoryRecent(t *testing.T) {
	ctx := context.Background()
	m := &Memory{}
	for _, a := range []string{"product.create", "order.status", "review.moderate"} {
		Log(ctx, m, Entry{Actor: "admin", Action: a})
	}

	recent, err := m.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "review.moderate", recent[0].Action)
	assert.Equal(t, "order.status", recent[1].Action)
	assert.False(t, recent[0].Timestamp.IsZero())

	assert.Equal(t, []string{"product.create", "order.status", "review.moderate"}, m.Actions())
}

func TestLogSwallowsFailures(t *testing.T) {
	assert.NotPanics(t, func() {
		Log(context.Background(), failing{}, Entry{Action: "x"})
	})

	entries, err := Nop{}.Recent(context.Background(), 10)
	assert.NoError(t, err)
	assert.Empty(t, entries)
}
