package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/phdwriter/essay_go_server/internal/model/dto"
	"github.com/phdwriter/essay_go_server/internal/repository"
	"github.com/phdwriter/essay_go_server/internal/testutil"
)

func TestUpdateProfileChangesUsername(t *testing.T) {
	db := testutil.SetupTestDB(t)
	userRepo := repository.NewUserRepository(db)
	svc := NewUserService(userRepo)
	user := testutil.CreateTestUser(t, db)

	newName := "fresh-handle"
	info, err := svc.UpdateProfile(user.ID, &dto.UpdateProfileRequest{Username: &newName})
	require.NoError(t, err)
	assert.Equal(t, newName, info.Username)
}

func TestUpdateProfileNothingToUpdate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewUserService(repository.NewUserRepository(db))
	user := testutil.CreateTestUser(t, db)

	_, err := svc.UpdateProfile(user.ID, &dto.UpdateProfileRequest{})
	require.ErrorIs(t, err, ErrNothingToUpdate)
}

func TestUpdateProfileRejectsTakenUsername(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewUserService(repository.NewUserRepository(db))
	first := testutil.CreateTestUser(t, db)
	second := testutil.CreateTestUser(t, db)

	_, err := svc.UpdateProfile(second.ID, &dto.UpdateProfileRequest{Username: &first.Username})
	require.ErrorIs(t, err, ErrUsernameTaken)
}

func TestUpdateProfileRetriesOnVersionConflict(t *testing.T) {
	db := testutil.SetupTestDB(t)
	userRepo := repository.NewUserRepository(db)
	svc := NewUserService(userRepo)
	user := testutil.CreateTestUser(t, db)

	// Land a billing-style version bump between the profile read and the
	// guarded update; the first attempt loses and the retry must absorb it.
	raced := false
	err := db.Callback().Update().Before("gorm:update").Register("billing_write_race", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "users" {
			return
		}
		raced = true
		tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE users SET version = version + 1 WHERE id = ?", user.ID)
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Callback().Update().Remove("billing_write_race") })

	newName := "renamed-after-race"
	info, err := svc.UpdateProfile(user.ID, &dto.UpdateProfileRequest{Username: &newName})
	require.NoError(t, err, "a single interleaved write is retried, not surfaced")
	assert.Equal(t, newName, info.Username)
	assert.True(t, raced)

	fresh, err := userRepo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Version+2, fresh.Version, "both the bump and the retried update applied")
}
