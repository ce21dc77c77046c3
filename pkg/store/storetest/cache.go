// Package storetest holds conformance suites shared by the store
// implementations.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/wayfinder/pkg/entity"
	"github.com/rmax-ai/wayfinder/pkg/store"
	"github.com/rmax-ai/wayfinder/pkg/workflow"
)

// Session returns a populated session for id.
func Session(id string) store.Session {
	now := time.Now().UTC().Truncate(time.Second)
	state := workflow.New(entity.VulnerabilityManagement,
		[]entity.Entity{entity.List(entity.Cluster), entity.Single(entity.Cluster, "c1")},
		workflow.WithSort(workflow.Panels[workflow.Sort]{Page: workflow.Sort{{ID: "name", Desc: true}}}),
		workflow.WithPaging(workflow.Panels[int]{Page: 2}),
	)
	return store.Session{
		ID:        id,
		UseCase:   entity.VulnerabilityManagement,
		State:     state,
		URL:       "/main/vulnerability-management/clusters?workflowState[0][t]=CLUSTER&workflowState[0][i]=c1",
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RunSessionCacheTests runs the conformance suite against cache.
func RunSessionCacheTests(t *testing.T, cache store.SessionCache) {
	ctx := context.Background()

	t.Run("Put and Get", func(t *testing.T) {
		want := Session("s1")
		require.NoError(t, cache.Put(ctx, want))

		got, ok, err := cache.Get(ctx, "s1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.URL, got.URL)
		assert.Equal(t, want.Version, got.Version)
		assert.True(t, want.State.Equal(got.State), "state survives the cache")
		assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
	})

	t.Run("Get missing", func(t *testing.T) {
		_, ok, err := cache.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Put overwrites", func(t *testing.T) {
		s := Session("s1")
		require.NoError(t, cache.Put(ctx, s))
		s.Version = 2
		s.State = s.State.Pop()
		require.NoError(t, cache.Put(ctx, s))

		got, ok, err := cache.Get(ctx, "s1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(2), got.Version)
		assert.Equal(t, 1, got.State.Len())
	})

	t.Run("Delete", func(t *testing.T) {
		for _, id := range []string{"a", "b"} {
			require.NoError(t, cache.Put(ctx, Session(id)))
		}
		require.NoError(t, cache.Delete(ctx, "b"))
		require.NoError(t, cache.Delete(ctx, "never-there"))

		_, ok, err := cache.Get(ctx, "b")
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = cache.Get(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Sweep keeps live entries", func(t *testing.T) {
		require.NoError(t, cache.Put(ctx, Session("live")))

		n, err := cache.Sweep(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		_, ok, err := cache.Get(ctx, "live")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Concurrent access", func(t *testing.T) {
		done := make(chan struct{})
		for i := 0; i < 10; i++ {
			go func(i int) {
				defer func() { done <- struct{}{} }()
				s := Session("concurrent")
				s.Version = int64(i + 1)
				_ = cache.Put(ctx, s)
				_, _, _ = cache.Get(ctx, "concurrent")
			}(i)
		}
		for i := 0; i < 10; i++ {
			<-done
		}

		_, ok, err := cache.Get(ctx, "concurrent")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
