package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/geotrackd/fencewatch/internal/derrors"
	"github.com/geotrackd/fencewatch/internal/domain"
)

func ev(id string, userID, geofenceID int64, kind domain.TransitionType) domain.TransitionEvent {
	return domain.TransitionEvent{
		ID: id, UserID: userID, GeofenceID: geofenceID, Type: kind,
		Timestamp: time.Unix(1_700_000_000, 0),
	}
}

func TestMemoryStoreListByUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Append(ctx, ev("a", 1, 10, domain.TransitionEnter)))
	require.NoError(t, store.Append(ctx, ev("b", 2, 10, domain.TransitionEnter)))
	require.NoError(t, store.Append(ctx, ev("c", 1, 11, domain.TransitionEnter)))
	require.NoError(t, store.Append(ctx, ev("d", 1, 10, domain.TransitionExit)))

	got, err := store.ListByUser(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Newest first.
	require.Equal(t, "d", got[0].ID)
	require.Equal(t, "c", got[1].ID)
	require.Equal(t, "a", got[2].ID)

	limited, err := store.ListByUser(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	require.Equal(t, "d", limited[0].ID)
}

func TestMemoryStoreListByGeofence(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Append(ctx, ev("a", 1, 10, domain.TransitionEnter)))
	require.NoError(t, store.Append(ctx, ev("b", 2, 10, domain.TransitionEnter)))
	require.NoError(t, store.Append(ctx, ev("c", 1, 11, domain.TransitionEnter)))

	got, err := store.ListByGeofence(ctx, 10, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "b", got[0].ID)
	require.Equal(t, "a", got[1].ID)
}

func TestMemoryLocationStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLocationStore()

	_, err := store.Latest(ctx, 1)
	require.ErrorIs(t, err, derrors.ErrNotFound)

	base := time.Unix(1_700_000_000, 0)
	for i := range 3 {
		require.NoError(t, store.Record(ctx, domain.LocationUpdate{
			UserID: 1, Latitude: float64(i), Longitude: float64(i), Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	latest, err := store.Latest(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2.0, latest.Latitude)

	history, err := store.History(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, 2.0, history[0].Latitude)
	require.Equal(t, 1.0, history[1].Latitude)
}
