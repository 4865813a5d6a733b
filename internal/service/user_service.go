package service

import (
	"errors"

	"github.com/phdwriter/essay_go_server/internal/model/dto"
	"github.com/phdwriter/essay_go_server/internal/repository"
)

var ErrNothingToUpdate = errors.New("no profile fields to update")

type UserService struct {
	userRepo *repository.UserRepository
}

func NewUserService(userRepo *repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

func (s *UserService) GetProfile(userID int64) (*dto.UserInfo, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	return buildUserInfo(user), nil
}

// UpdateProfile changes username and/or email. The update is version
// guarded so it cannot clobber a concurrent billing write; a lost race is
// retried once against the fresh record before the conflict is surfaced.
func (s *UserService) UpdateProfile(userID int64, req *dto.UpdateProfileRequest) (*dto.UserInfo, error) {
	err := s.applyProfileUpdate(userID, req)
	if errors.Is(err, repository.ErrVersionConflict) {
		err = s.applyProfileUpdate(userID, req)
	}
	if err != nil {
		return nil, err
	}
	return s.GetProfile(userID)
}

func (s *UserService) applyProfileUpdate(userID int64, req *dto.UpdateProfileRequest) error {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}

	fields := map[string]interface{}{}
	if req.Username != nil && *req.Username != user.Username {
		taken, err := s.userRepo.ExistsByUsername(*req.Username)
		if err != nil {
			return err
		}
		if taken {
			return ErrUsernameTaken
		}
		fields["username"] = *req.Username
	}
	if req.Email != nil && (user.Email == nil || *req.Email != *user.Email) {
		taken, err := s.userRepo.ExistsByEmail(*req.Email)
		if err != nil {
			return err
		}
		if taken {
			return ErrEmailTaken
		}
		fields["email"] = *req.Email
		fields["email_verified"] = false
	}
	if len(fields) == 0 {
		return ErrNothingToUpdate
	}

	return s.userRepo.UpdateWithVersion(userID, user.Version, fields)
}
