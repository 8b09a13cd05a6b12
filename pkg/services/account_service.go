package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/homescript-labs/homescriptd/pkg/database"
	"github.com/homescript-labs/homescriptd/pkg/models"
)

// ServiceAccountService manages machine credentials for the run endpoints.
type ServiceAccountService struct {
	client *database.Client
}

// NewServiceAccountService creates a new ServiceAccountService
func NewServiceAccountService(client *database.Client) *ServiceAccountService {
	return &ServiceAccountService{client: client}
}

// Create stores a new service account and returns the account together with
// its plaintext secret. The secret is shown exactly once; only the bcrypt
// hash is persisted.
func (s *ServiceAccountService) Create(httpCtx context.Context, req models.CreateServiceAccountRequest) (*models.ServiceAccount, string, error) {
	if err := validate.Struct(req); err != nil {
		return nil, "", NewValidationError("name", err.Error())
	}

	secret, err := newSecret()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate secret: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash secret: %w", err)
	}

	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	account := &models.ServiceAccount{
		ID:         uuid.New().String(),
		Name:       req.Name,
		SecretHash: string(hash),
		CreatedAt:  time.Now().UTC(),
	}
	_, err = s.client.NamedExecContext(ctx, `
		INSERT INTO service_accounts (id, name, secret_hash, created_at)
		VALUES (:id, :name, :secret_hash, :created_at)`, account)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, "", ErrAlreadyExists
		}
		return nil, "", fmt.Errorf("failed to create service account: %w", err)
	}
	return account, secret, nil
}

// List returns every service account (without secret material).
func (s *ServiceAccountService) List(httpCtx context.Context) ([]models.ServiceAccount, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	accounts := []models.ServiceAccount{}
	if err := s.client.SelectContext(ctx, &accounts, `SELECT * FROM service_accounts ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("failed to list service accounts: %w", err)
	}
	return accounts, nil
}

// Delete removes a service account by ID.
func (s *ServiceAccountService) Delete(httpCtx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	res, err := s.client.ExecContext(ctx, `DELETE FROM service_accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete service account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Verify checks a service credential pair. It returns the account on success
// and ErrNotFound for both unknown IDs and wrong secrets, so callers cannot
// distinguish the two.
func (s *ServiceAccountService) Verify(httpCtx context.Context, id, secret string) (*models.ServiceAccount, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	var account models.ServiceAccount
	err := s.client.GetContext(ctx, &account, `SELECT * FROM service_accounts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load service account: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(account.SecretHash), []byte(secret)) != nil {
		return nil, ErrNotFound
	}
	return &account, nil
}

func newSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// isUniqueViolation matches the Postgres unique_violation SQLSTATE.
func isUniqueViolation(err error) bool {
	type coder interface{ SQLState() string }
	var c coder
	return errors.As(err, &c) && c.SQLState() == "23505"
}
