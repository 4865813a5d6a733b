package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phdwriter/essay_go_server/internal/model"
	"github.com/phdwriter/essay_go_server/internal/repository"
	"github.com/phdwriter/essay_go_server/internal/testutil"
)

func TestCanGenerateEssay(t *testing.T) {
	now := time.Now()
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	tests := []struct {
		name string
		user model.User
		want bool
	}{
		{
			name: "free under quota",
			user: model.User{SubscriptionTier: model.TierFree, EssayQuota: 2, EssaysUsed: 1},
			want: true,
		},
		{
			name: "free at quota",
			user: model.User{SubscriptionTier: model.TierFree, EssayQuota: 2, EssaysUsed: 2},
			want: false,
		},
		{
			name: "free at quota with credit",
			user: model.User{SubscriptionTier: model.TierFree, EssayQuota: 2, EssaysUsed: 2, EssayCredits: 1},
			want: true,
		},
		{
			name: "pro never metered",
			user: model.User{SubscriptionTier: model.TierPro, EssayQuota: model.QuotaUnlimited, EssaysUsed: 999, SubscriptionExpiresAt: &future},
			want: true,
		},
		{
			name: "essentials active under ceiling",
			user: model.User{SubscriptionTier: model.TierEssentials, EssayQuota: 5, EssaysUsed: 3, SubscriptionExpiresAt: &future},
			want: true,
		},
		{
			name: "essentials active at ceiling still allowed",
			user: model.User{SubscriptionTier: model.TierEssentials, EssayQuota: 5, EssaysUsed: 5, SubscriptionExpiresAt: &future},
			want: true,
		},
		{
			name: "essentials expired at ceiling denied",
			user: model.User{SubscriptionTier: model.TierEssentials, EssayQuota: 5, EssaysUsed: 5, SubscriptionExpiresAt: &past},
			want: false,
		},
		{
			name: "essentials expired under ceiling allowed",
			user: model.User{SubscriptionTier: model.TierEssentials, EssayQuota: 5, EssaysUsed: 4, SubscriptionExpiresAt: &past},
			want: true,
		},
		{
			name: "essentials expired at ceiling with credit",
			user: model.User{SubscriptionTier: model.TierEssentials, EssayQuota: 5, EssaysUsed: 5, EssayCredits: 2, SubscriptionExpiresAt: &past},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanGenerateEssay(&tt.user, now))
		})
	}
}

func TestConsumeFreeTier(t *testing.T) {
	db := testutil.SetupTestDB(t)
	userRepo := repository.NewUserRepository(db)
	svc := NewEntitlementService(userRepo, testutil.TestConfig())

	user := testutil.CreateTestUser(t, db, testutil.WithTier(model.TierFree, 2))

	viaCredit, err := svc.Consume(user.ID)
	require.NoError(t, err)
	assert.False(t, viaCredit)
	_, err = svc.Consume(user.ID)
	require.NoError(t, err)

	// quota exhausted, no credits
	_, err = svc.Consume(user.ID)
	require.ErrorIs(t, err, ErrEssayLimitReached)

	fresh, err := userRepo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.EssaysUsed, "denied attempt must not increment usage")
}

func TestConsumeFallsBackToCredits(t *testing.T) {
	db := testutil.SetupTestDB(t)
	userRepo := repository.NewUserRepository(db)
	svc := NewEntitlementService(userRepo, testutil.TestConfig())

	user := testutil.CreateTestUser(t, db,
		testutil.WithTier(model.TierFree, 2),
		testutil.WithUsage(2),
		testutil.WithCredits(1),
	)

	viaCredit, err := svc.Consume(user.ID)
	require.NoError(t, err)
	assert.True(t, viaCredit)

	fresh, err := userRepo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.EssayCredits)
	assert.Equal(t, 2, fresh.EssaysUsed, "credit spend must not touch metered usage")

	_, err = svc.Consume(user.ID)
	require.ErrorIs(t, err, ErrEssayLimitReached)
}

func TestConsumePaidTiersNotMetered(t *testing.T) {
	db := testutil.SetupTestDB(t)
	userRepo := repository.NewUserRepository(db)
	svc := NewEntitlementService(userRepo, testutil.TestConfig())

	future := time.Now().Add(30 * 24 * time.Hour)
	pro := testutil.CreateTestUser(t, db,
		testutil.WithTier(model.TierPro, model.QuotaUnlimited),
		testutil.WithExpiry(future),
	)
	essentials := testutil.CreateTestUser(t, db,
		testutil.WithTier(model.TierEssentials, 5),
		testutil.WithUsage(5),
		testutil.WithExpiry(future),
	)

	for i := 0; i < 10; i++ {
		_, err := svc.Consume(pro.ID)
		require.NoError(t, err)
		_, err = svc.Consume(essentials.ID)
		require.NoError(t, err)
	}

	freshPro, _ := userRepo.GetByID(pro.ID)
	freshEss, _ := userRepo.GetByID(essentials.ID)
	assert.Equal(t, 0, freshPro.EssaysUsed)
	assert.Equal(t, 5, freshEss.EssaysUsed)
}

func TestConsumeExpiredEssentials(t *testing.T) {
	db := testutil.SetupTestDB(t)
	userRepo := repository.NewUserRepository(db)
	svc := NewEntitlementService(userRepo, testutil.TestConfig())

	past := time.Now().Add(-time.Hour)
	user := testutil.CreateTestUser(t, db,
		testutil.WithTier(model.TierEssentials, 5),
		testutil.WithUsage(5),
		testutil.WithExpiry(past),
	)

	_, err := svc.Consume(user.ID)
	require.ErrorIs(t, err, ErrEssayLimitReached)

	require.NoError(t, userRepo.GrantCredit(user.ID))
	viaCredit, err := svc.Consume(user.ID)
	require.NoError(t, err)
	assert.True(t, viaCredit)
	_, err = svc.Consume(user.ID)
	require.ErrorIs(t, err, ErrEssayLimitReached)
}

func TestGetQuotaInfo(t *testing.T) {
	db := testutil.SetupTestDB(t)
	userRepo := repository.NewUserRepository(db)
	svc := NewEntitlementService(userRepo, testutil.TestConfig())

	user := testutil.CreateTestUser(t, db,
		testutil.WithTier(model.TierFree, 2),
		testutil.WithUsage(1),
		testutil.WithCredits(3),
	)

	info, err := svc.GetQuotaInfo(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierFree, info.Tier)
	assert.Equal(t, 1, info.Remaining)
	assert.Equal(t, 3, info.Credits)
	assert.True(t, info.CanGenerate)

	unlimited := testutil.CreateTestUser(t, db, testutil.WithTier(model.TierPro, model.QuotaUnlimited))
	info, err = svc.GetQuotaInfo(unlimited.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuotaUnlimited, info.Remaining)
}
