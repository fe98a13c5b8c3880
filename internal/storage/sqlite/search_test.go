package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func seedEntity(t *testing.T, store *Store, name, entityType string, observations ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := store.CreateEntity(ctx, name, entityType)
	require.NoError(t, err)
	for _, o := range observations {
		_, err := store.AddObservation(ctx, name, o)
		require.NoError(t, err)
	}
}

func TestSearchLexicalNameMatchRanksFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	seedEntity(t, store, "redis", "service", "in-memory cache")
	seedEntity(t, store, "billing", "service", "uses redis for rate limiting", "talks to stripe")

	hits, err := store.SearchLexical(ctx, "redis", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "redis", hits[0].Entity.Name,
		"name match must outrank observation-only match")
	require.Equal(t, "billing", hits[1].Entity.Name)
	require.Equal(t, 1, hits[1].ObservationMatches)
}

func TestSearchLexicalMultiTokenOrSemantics(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	seedEntity(t, store, "auth", "service", "issues jwt tokens")
	seedEntity(t, store, "gateway", "service", "terminates tls")

	// Neither entity matches both tokens; OR semantics returns both.
	hits, err := store.SearchLexical(ctx, "jwt tls", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestSearchLexicalObservationsReorderedMatchesFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	seedEntity(t, store, "deploy-notes", "document",
		"first unrelated note",
		"rollout uses kubernetes",
		"second unrelated note",
		"kubernetes secrets rotated quarterly",
	)

	hits, err := store.SearchLexical(ctx, "kubernetes", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	obs := hits[0].Entity.Observations
	require.Len(t, obs, 4)
	// Matches first, each group preserving created order.
	require.Equal(t, "rollout uses kubernetes", obs[0])
	require.Equal(t, "kubernetes secrets rotated quarterly", obs[1])
	require.Equal(t, "first unrelated note", obs[2])
	require.Equal(t, "second unrelated note", obs[3])
	require.Equal(t, 2, hits[0].ObservationMatches)
}

func TestSearchLexicalEmptyQuery(t *testing.T) {
	store := newTestStore(t)
	hits, err := store.SearchLexical(context.Background(), "   ", 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestSearchLexicalNoMatches(t *testing.T) {
	store := newTestStore(t)
	seedEntity(t, store, "solo", "thing", "nothing relevant")
	hits, err := store.SearchLexical(context.Background(), "xylophone", 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestSearchLexicalLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	seedEntity(t, store, "widget-a", "widget")
	seedEntity(t, store, "widget-b", "widget")
	seedEntity(t, store, "widget-c", "widget")

	hits, err := store.SearchLexical(ctx, "widget", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestSearchLexicalQuotesInQuery(t *testing.T) {
	store := newTestStore(t)
	seedEntity(t, store, "notes", "doc", `the "special" case`)

	// FTS5 operators and quotes in user input must stay literal.
	hits, err := store.SearchLexical(context.Background(), `"special" AND NOT`, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
}

func TestSearchLexicalDeletedEntityDropsOut(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	seedEntity(t, store, "doomed", "thing", "findable text")
	hits, err := store.SearchLexical(ctx, "findable", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	_, err = store.DeleteEntity(ctx, "doomed")
	require.NoError(t, err)

	hits, err = store.SearchLexical(ctx, "findable", 10)
	require.NoError(t, err)
	require.Empty(t, hits, "FTS delete triggers must cover cascades")
}
