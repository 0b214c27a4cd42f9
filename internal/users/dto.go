package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shapeai4-rgb/shapeai/pkg/db/models"
)

// UserDTO is the transport shape for a user profile.
type UserDTO struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         *string   `json:"name,omitempty"`
	TokenBalance int       `json:"token_balance"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email string
	Name  *string
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}

	return &UserDTO{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		TokenBalance: u.TokenBalance,
		CreatedAt:    u.CreatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	return &models.User{
		ID:    uuid.New(),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
		Name:  c.Name,
	}
}
