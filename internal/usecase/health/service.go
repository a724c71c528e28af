package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates a non-critical dependency is failing; the pipeline still syncs.
	Degraded Status = "degraded"
	// Unhealthy indicates the pipeline cannot keep the index in sync.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

type storeCheck struct {
	name   string
	pinger Pinger
}

// Service coordinates health checks.
type Service struct {
	pipeline  PipelineChecker
	stores    []storeCheck
	embedding EmbeddingChecker
}

// New creates a Service. embedding can be nil.
func New(pipeline PipelineChecker, embedding EmbeddingChecker) *Service {
	return &Service{pipeline: pipeline, embedding: embedding}
}

// WithStore adds a critical store ping reported under name.
func (s *Service) WithStore(name string, p Pinger) *Service {
	if p != nil {
		s.stores = append(s.stores, storeCheck{name: name, pinger: p})
	}
	return s
}

// Check runs health checks against all components. A failing pipeline
// predicate or store ping is Unhealthy; a failing embedding provider is Degraded.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if s.pipeline.Healthy() {
		checks["pipeline"] = CheckOK
	} else {
		checks["pipeline"] = CheckError
		status = Unhealthy
	}

	for _, sc := range s.stores {
		if err := sc.pinger.Ping(ctx); err != nil {
			checks[sc.name] = CheckError
			status = Unhealthy
		} else {
			checks[sc.name] = CheckOK
		}
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
			if status == Healthy {
				status = Degraded
			}
		} else {
			checks["embedding"] = CheckOK
		}
	}

	return Report{Status: status, Checks: checks}
}
