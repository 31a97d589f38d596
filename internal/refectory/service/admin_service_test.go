package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/refectory/internal/refectory/service"
	"github.com/BrandonDHaskell/refectory/internal/refectory/store/memory"
	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
)

func TestAdminService_BucketCounts(t *testing.T) {
	f := newSwipeFixture(t, nil, inWindow)
	for _, c := range []string{"C1", "C2", "C3"} {
		f.store.Put(types.CardAccount{Identity: "id-" + c, CardID: c, Unit: "kitchen", Entitled: true})
	}
	f.svc.Validate(context.Background(), swipe("C1", "1"))
	f.svc.Validate(context.Background(), swipe("C2", "1"))
	f.svc.Validate(context.Background(), swipe("C3", "7"))

	admin := service.NewAdminService(f.store, f.store, testSchedule(t), time.UTC)
	day := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	counts, err := admin.BucketCounts(context.Background(), day, day.AddDate(0, 0, 1))
	require.NoError(t, err)

	require.Len(t, counts, 4)
	assert.Equal(t, "1", counts[0].Bucket)
	assert.Equal(t, 2, counts[0].Total)
	assert.Equal(t, []int{0, 2, 0}, counts[0].ByWindow)
	assert.Equal(t, 0, counts[1].Total)
	assert.Equal(t, service.Unassigned, counts[3].Bucket)
	assert.Equal(t, 1, counts[3].Total)
}

func TestAdminService_BucketCounts_BadRange(t *testing.T) {
	ms := memory.New()
	admin := service.NewAdminService(ms, ms, testSchedule(t), time.UTC)
	_, err := admin.BucketCounts(context.Background(), inWindow, inWindow)
	assert.ErrorIs(t, err, service.ErrInvalidTimeRange)
}

func TestAdminService_SetEntitlement(t *testing.T) {
	ms := memory.New()
	ms.Put(types.CardAccount{Identity: "u1", CardID: "C1", Unit: "kitchen"})
	admin := service.NewAdminService(ms, ms, testSchedule(t), time.UTC)
	ctx := context.Background()

	n, err := admin.SetEntitlement(ctx, "C1", true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = admin.SetEntitlement(ctx, "NOPE", true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = admin.SetEntitlement(ctx, " ", true)
	assert.ErrorIs(t, err, service.ErrInvalidCardID)

	_, err = admin.Lookup(ctx, "")
	assert.ErrorIs(t, err, service.ErrInvalidCardID)
}

func TestAdminService_SetUnitEntitlement(t *testing.T) {
	ms := memory.New()
	ms.Put(types.CardAccount{Identity: "u1", CardID: "C1", Unit: "kitchen"})
	ms.Put(types.CardAccount{Identity: "u2", CardID: "C2", Unit: "kitchen"})
	ms.Put(types.CardAccount{Identity: "u3", CardID: "C3", Unit: "laundry"})
	admin := service.NewAdminService(ms, ms, testSchedule(t), time.UTC)
	ctx := context.Background()

	n, err := admin.SetUnitEntitlement(ctx, "kitchen", true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	stats, err := admin.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.UnitStats{
		{Unit: "kitchen", Total: 2, Entitled: 2},
		{Unit: "laundry", Total: 1, Entitled: 0},
	}, stats)

	_, err = admin.SetEntitlementForIdentities(ctx, nil, true)
	assert.ErrorIs(t, err, service.ErrNoIdentities)
}
