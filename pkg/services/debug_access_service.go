package services

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/homescript-labs/homescriptd/pkg/database"
	"github.com/homescript-labs/homescriptd/pkg/models"
)

// DebugAccessService manages the singleton LAN debug-bypass configuration.
type DebugAccessService struct {
	client *database.Client
}

// NewDebugAccessService creates a new DebugAccessService
func NewDebugAccessService(client *database.Client) *DebugAccessService {
	return &DebugAccessService{client: client}
}

type debugAccessRow struct {
	Enabled   bool   `db:"enabled"`
	CIDRs     string `db:"cidrs"`
	ServiceID string `db:"service_id"`
}

// Get returns the current debug-access configuration.
func (s *DebugAccessService) Get(httpCtx context.Context) (*models.DebugAccess, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	var row debugAccessRow
	err := s.client.GetContext(ctx, &row,
		`SELECT enabled, cidrs, service_id FROM debug_access WHERE id = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("failed to load debug access: %w", err)
	}
	return &models.DebugAccess{
		Enabled:   row.Enabled,
		CIDRs:     splitCIDRs(row.CIDRs),
		ServiceID: row.ServiceID,
	}, nil
}

// Update replaces the debug-access configuration. Every CIDR must parse.
func (s *DebugAccessService) Update(httpCtx context.Context, req models.UpdateDebugAccessRequest) (*models.DebugAccess, error) {
	for _, c := range req.CIDRs {
		if _, _, err := net.ParseCIDR(strings.TrimSpace(c)); err != nil {
			return nil, NewValidationError("cidrs", fmt.Sprintf("invalid CIDR %q", c))
		}
	}

	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	_, err := s.client.ExecContext(ctx,
		`UPDATE debug_access SET enabled = $1, cidrs = $2, service_id = $3 WHERE id = TRUE`,
		req.Enabled, strings.Join(req.CIDRs, ","), req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to update debug access: %w", err)
	}
	return s.Get(httpCtx)
}

// Allows reports whether debug bypass is enabled and the remote IP falls in
// one of the configured networks.
func (cfg *DebugAccessConfig) Allows(ip net.IP) bool {
	if cfg == nil || !cfg.Enabled || ip == nil {
		return false
	}
	for _, c := range cfg.Networks {
		if c.Contains(ip) {
			return true
		}
	}
	return false
}

// DebugAccessConfig is the parsed form of DebugAccess used on the hot path.
type DebugAccessConfig struct {
	Enabled   bool
	ServiceID string
	Networks  []*net.IPNet
}

// ParseDebugAccess compiles the stored CIDRs for per-request checks.
// Unparseable entries are skipped; Update validates on the way in.
func ParseDebugAccess(da *models.DebugAccess) *DebugAccessConfig {
	if da == nil {
		return &DebugAccessConfig{}
	}
	cfg := &DebugAccessConfig{Enabled: da.Enabled, ServiceID: da.ServiceID}
	for _, c := range da.CIDRs {
		if _, network, err := net.ParseCIDR(strings.TrimSpace(c)); err == nil {
			cfg.Networks = append(cfg.Networks, network)
		}
	}
	return cfg
}

func splitCIDRs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
