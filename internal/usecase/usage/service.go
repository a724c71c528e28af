package usage

import (
	"context"
	"time"

	"github.com/kailas-cloud/vecsync/internal/usecase/embedding"
)

// Window is token consumption within one budget period.
type Window struct {
	Name        string    `json:"window"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Used        int64     `json:"used"`
	// Limit is 0 when the window is unlimited; Remaining is then -1.
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
	Exhausted bool  `json:"exhausted"`
}

// Report is the embedding token usage of this process's provider.
type Report struct {
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	Windows  []Window `json:"windows"`
}

// Service handles usage reporting.
type Service struct {
	provider string
	model    string
	br       BudgetReader
	now      func() time.Time
}

// New creates a Service. br can be nil (untracked).
func New(provider, model string, br BudgetReader) *Service {
	return &Service{
		provider: provider,
		model:    model,
		br:       br,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetReport builds a usage report for the current day and month.
func (s *Service) GetReport(_ context.Context) Report {
	r := Report{Provider: s.provider, Model: s.model, Windows: []Window{}}
	if s.br == nil {
		return r
	}

	now := s.now()
	for _, u := range s.br.Usage() {
		start, end := periodBounds(u.Window, now)
		r.Windows = append(r.Windows, Window{
			Name:        u.Window,
			PeriodStart: start,
			PeriodEnd:   end,
			Used:        u.Used,
			Limit:       u.Limit,
			Remaining:   u.Remaining,
			Exhausted:   u.Limit > 0 && u.Remaining <= 0,
		})
	}
	return r
}

func periodBounds(window string, now time.Time) (time.Time, time.Time) {
	switch window {
	case embedding.WindowDaily:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.Add(24 * time.Hour)
	case embedding.WindowMonthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default:
		return time.Time{}, time.Time{}
	}
}
