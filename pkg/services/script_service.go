// Package services contains business logic service layer implementations.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/homescript-labs/homescriptd/pkg/database"
	"github.com/homescript-labs/homescriptd/pkg/models"
)

const queryTimeout = 5 * time.Second

var validate = validator.New()

// ScriptService manages stored scripts.
type ScriptService struct {
	client *database.Client
}

// NewScriptService creates a new ScriptService
func NewScriptService(client *database.Client) *ScriptService {
	return &ScriptService{client: client}
}

// Create stores a new script. The endpoint must be unique and URL-safe; the
// trigger config is normalized before it is persisted.
func (s *ScriptService) Create(httpCtx context.Context, req models.CreateScriptRequest) (*models.Script, error) {
	if err := validate.Struct(req); err != nil {
		return nil, NewValidationError("request", err.Error())
	}
	if !models.EndpointPattern.MatchString(req.Endpoint) {
		return nil, NewValidationError("endpoint", "must match [a-z0-9-]+")
	}

	triggerConfig, err := normalizeTriggerConfig(req.TriggerConfig)
	if err != nil {
		return nil, NewValidationError("triggerConfig", err.Error())
	}

	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	script := &models.Script{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Endpoint:      req.Endpoint,
		Code:          req.Code,
		TestParams:    req.TestParams,
		TriggerConfig: triggerConfig,
		CreatedAt:     time.Now().UTC(),
	}
	if req.DebugEnabled != nil {
		script.DebugEnabled = *req.DebugEnabled
	}
	if req.DebugCode != nil {
		script.DebugCode = *req.DebugCode
	}

	if taken, err := s.endpointTaken(ctx, script.Endpoint, ""); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrAlreadyExists
	}

	_, err = s.client.NamedExecContext(ctx, `
		INSERT INTO scripts (id, name, endpoint, code, debug_code, debug_enabled, test_params, trigger_config, created_at)
		VALUES (:id, :name, :endpoint, :code, :debug_code, :debug_enabled, :test_params, :trigger_config, :created_at)`,
		script)
	if err != nil {
		return nil, fmt.Errorf("failed to create script: %w", err)
	}
	return script, nil
}

// Get returns one script by ID.
func (s *ScriptService) Get(httpCtx context.Context, id string) (*models.Script, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	var script models.Script
	err := s.client.GetContext(ctx, &script, `SELECT * FROM scripts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get script: %w", err)
	}
	return &script, nil
}

// GetByEndpoint returns the script bound to an endpoint.
func (s *ScriptService) GetByEndpoint(httpCtx context.Context, endpoint string) (*models.Script, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	var script models.Script
	err := s.client.GetContext(ctx, &script, `SELECT * FROM scripts WHERE endpoint = $1`, endpoint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get script: %w", err)
	}
	return &script, nil
}

// List returns every stored script ordered by creation time.
func (s *ScriptService) List(httpCtx context.Context) ([]models.Script, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	scripts := []models.Script{}
	if err := s.client.SelectContext(ctx, &scripts, `SELECT * FROM scripts ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("failed to list scripts: %w", err)
	}
	return scripts, nil
}

// ListTriggered returns the scripts carrying a non-empty trigger config; the
// trigger engine reads this on every incoming event.
func (s *ScriptService) ListTriggered(httpCtx context.Context) ([]models.Script, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	scripts := []models.Script{}
	err := s.client.SelectContext(ctx, &scripts,
		`SELECT * FROM scripts WHERE trigger_config <> '' AND trigger_config <> 'null' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggered scripts: %w", err)
	}
	return scripts, nil
}

// Update mutates a script in place. Nil request fields are left untouched.
func (s *ScriptService) Update(httpCtx context.Context, id string, req models.UpdateScriptRequest) (*models.Script, error) {
	if err := validate.Struct(req); err != nil {
		return nil, NewValidationError("request", err.Error())
	}

	script, err := s.Get(httpCtx, id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	if req.Name != nil {
		script.Name = *req.Name
	}
	if req.Endpoint != nil && *req.Endpoint != script.Endpoint {
		if !models.EndpointPattern.MatchString(*req.Endpoint) {
			return nil, NewValidationError("endpoint", "must match [a-z0-9-]+")
		}
		if taken, err := s.endpointTaken(ctx, *req.Endpoint, id); err != nil {
			return nil, err
		} else if taken {
			return nil, ErrAlreadyExists
		}
		script.Endpoint = *req.Endpoint
	}
	if req.Code != nil {
		script.Code = *req.Code
	}
	if req.TestParams != nil {
		script.TestParams = *req.TestParams
	}
	if req.TriggerConfig != nil {
		normalized, err := normalizeTriggerConfig(*req.TriggerConfig)
		if err != nil {
			return nil, NewValidationError("triggerConfig", err.Error())
		}
		script.TriggerConfig = normalized
	}
	if req.DebugEnabled != nil {
		script.DebugEnabled = *req.DebugEnabled
	}
	if req.DebugCode != nil {
		script.DebugCode = *req.DebugCode
	}

	_, err = s.client.NamedExecContext(ctx, `
		UPDATE scripts SET name = :name, endpoint = :endpoint, code = :code,
			debug_code = :debug_code, debug_enabled = :debug_enabled,
			test_params = :test_params, trigger_config = :trigger_config
		WHERE id = :id`, script)
	if err != nil {
		return nil, fmt.Errorf("failed to update script: %w", err)
	}
	return script, nil
}

// UpdateDebugDraft updates only the debug draft fields, leaving the main
// source untouched.
func (s *ScriptService) UpdateDebugDraft(httpCtx context.Context, id string, req models.UpdateDebugDraftRequest) (*models.Script, error) {
	return s.Update(httpCtx, id, models.UpdateScriptRequest{
		DebugCode:    req.DebugCode,
		DebugEnabled: req.DebugEnabled,
	})
}

// Delete removes a script by ID.
func (s *ScriptService) Delete(httpCtx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	res, err := s.client.ExecContext(ctx, `DELETE FROM scripts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete script: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// endpointTaken reports whether another script already owns the endpoint.
func (s *ScriptService) endpointTaken(ctx context.Context, endpoint, excludeID string) (bool, error) {
	var count int
	err := s.client.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM scripts WHERE endpoint = $1 AND id <> $2`, endpoint, excludeID)
	if err != nil {
		return false, fmt.Errorf("failed to check endpoint: %w", err)
	}
	return count > 0, nil
}

// normalizeTriggerConfig parses, canonicalizes and re-serializes a trigger
// config. Empty input stays empty.
func normalizeTriggerConfig(raw string) (string, error) {
	cfg, err := models.ParseTriggerConfig(raw)
	if err != nil {
		return "", err
	}
	if cfg == nil {
		return "", nil
	}
	data, err := json.Marshal(models.NormalizeTriggerConfig(cfg))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
