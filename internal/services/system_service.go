package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	domain "github.com/kalamitra/api/internal/domain"
	"github.com/kalamitra/api/internal/repositories"
)

const defaultHealthCacheTTL = 2 * time.Second

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
	// CacheTTL bounds how long a collected report answers repeated probes. Zero uses two seconds and a
	// negative value disables caching.
	CacheTTL time.Duration
}

type systemService struct {
	healthRepo repositories.HealthRepository
	clock      func() time.Time
	build      BuildInfo
	ttl        time.Duration

	mu        sync.Mutex
	cached    domain.SystemHealthReport
	collected time.Time
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service reporting dependency health and build metadata.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	ttl := deps.CacheTTL
	if ttl == 0 {
		ttl = defaultHealthCacheTTL
	}
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}
	return &systemService{
		healthRepo: deps.HealthRepository,
		clock:      func() time.Time { return clock().UTC() },
		build:      build,
		ttl:        ttl,
	}, nil
}

// HealthReport probes the datastores, or reuses a report collected within the cache window. Probes that
// arrive together share one collection. Failed collections are never cached.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if s.ttl > 0 && !s.collected.IsZero() && now.Sub(s.collected) < s.ttl {
		return s.decorate(s.cached, now), nil
	}

	report, err := s.healthRepo.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	report.GeneratedAt = report.GeneratedAt.UTC()
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = overallStatus(report.Checks)
	}
	s.cached, s.collected = report, now
	return s.decorate(report, now), nil
}

// decorate fills the build metadata the repository does not know about.
func (s *systemService) decorate(report SystemHealthReport, now time.Time) SystemHealthReport {
	if report.Version == "" {
		report.Version = s.build.Version
	}
	if report.CommitSHA == "" {
		report.CommitSHA = s.build.CommitSHA
	}
	if report.Environment == "" {
		report.Environment = s.build.Environment
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	return report
}

// overallStatus is error when any probe errored, degraded when any probe is neither ok nor error.
func overallStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
