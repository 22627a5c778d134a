package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/identity"
	"github.com/municipal/backoffice/internal/domain/shared"
	"gorm.io/gorm"
)

// GormUserRepository implements identity.UserRepository using GORM
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GormUserRepository
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// Create saves a new user
func (r *GormUserRepository) Create(ctx context.Context, user *identity.User) error {
	return translateWriteError(r.db.WithContext(ctx).Create(user).Error, "This email address is already registered")
}

// Update saves changes to an existing user
func (r *GormUserRepository) Update(ctx context.Context, user *identity.User) error {
	result := r.db.WithContext(ctx).Save(user)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a user by ID
func (r *GormUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	var user identity.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// FindByEmail finds a user by lower-cased email
func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	var user identity.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// ExistsByEmail checks whether a user with the email exists
func (r *GormUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&identity.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// List returns a page of users ordered by creation time
func (r *GormUserRepository) List(ctx context.Context, skip, limit int) ([]identity.User, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&identity.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []identity.User
	if err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Offset(skip).Limit(limit).
		Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

var _ identity.UserRepository = (*GormUserRepository)(nil)

// GormRegistrationRepository implements identity.RegistrationRepository using GORM
type GormRegistrationRepository struct {
	db *gorm.DB
}

// NewGormRegistrationRepository creates a new GormRegistrationRepository
func NewGormRegistrationRepository(db *gorm.DB) *GormRegistrationRepository {
	return &GormRegistrationRepository{db: db}
}

// Create saves a new registration request
func (r *GormRegistrationRepository) Create(ctx context.Context, req *identity.RegistrationRequest) error {
	return translateWriteError(r.db.WithContext(ctx).Create(req).Error,
		"A registration request already exists for this email address")
}

// FindByID finds a registration request by ID
func (r *GormRegistrationRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.RegistrationRequest, error) {
	var req identity.RegistrationRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

// ExistsByEmail checks whether a pending request uses the email
func (r *GormRegistrationRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&identity.RegistrationRequest{}).
		Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListPending returns all requests, newest first
func (r *GormRegistrationRepository) ListPending(ctx context.Context) ([]identity.RegistrationRequest, error) {
	var reqs []identity.RegistrationRequest
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}

// Delete removes a request
func (r *GormRegistrationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&identity.RegistrationRequest{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Approve inserts the user and removes the request in one transaction
func (r *GormRegistrationRepository) Approve(ctx context.Context, req *identity.RegistrationRequest, user *identity.User) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return translateWriteError(err, "This email address is already registered")
		}
		return tx.Delete(&identity.RegistrationRequest{}, "id = ?", req.ID).Error
	})
}

var _ identity.RegistrationRepository = (*GormRegistrationRepository)(nil)
