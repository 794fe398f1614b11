package client

import (
	"context"

	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/pkg/logger"
)

// Analytics receives gameplay events.
type Analytics interface {
	ComparisonViewed(ctx context.Context, left, right model.Profile, category string, firstVisit bool)
	PersonSelected(ctx context.Context, selected, other model.Profile, category string)
	CategoryChanged(ctx context.Context, category string)
	FirstVisit(ctx context.Context)
}

// NopAnalytics drops every event.
type NopAnalytics struct{}

func (NopAnalytics) ComparisonViewed(context.Context, model.Profile, model.Profile, string, bool) {}
func (NopAnalytics) PersonSelected(context.Context, model.Profile, model.Profile, string)         {}
func (NopAnalytics) CategoryChanged(context.Context, string)                                      {}
func (NopAnalytics) FirstVisit(context.Context)                                                   {}

// LogAnalytics writes events as structured log lines.
type LogAnalytics struct {
	log logger.Logger
}

// NewLogAnalytics creates a LogAnalytics. A nil logger uses the global one.
func NewLogAnalytics(l logger.Logger) *LogAnalytics {
	if l == nil {
		l = logger.Get()
	}
	return &LogAnalytics{log: l.Named("analytics")}
}

func (a *LogAnalytics) ComparisonViewed(ctx context.Context, left, right model.Profile, category string, firstVisit bool) {
	a.log.Info(ctx, "Comparison Viewed",
		logger.String("person1_id", left.ID),
		logger.String("person1_name", left.Name),
		logger.String("person1_role", left.Role),
		logger.String("person2_id", right.ID),
		logger.String("person2_name", right.Name),
		logger.String("person2_role", right.Role),
		logger.String("category", category),
		logger.Bool("is_first_visit", firstVisit),
	)
}

func (a *LogAnalytics) PersonSelected(ctx context.Context, selected, other model.Profile, category string) {
	a.log.Info(ctx, "Person Selected",
		logger.String("selected_person_id", selected.ID),
		logger.String("selected_person_name", selected.Name),
		logger.String("selected_person_role", selected.Role),
		logger.String("other_person_id", other.ID),
		logger.String("other_person_name", other.Name),
		logger.String("other_person_role", other.Role),
		logger.String("category", category),
	)
}

func (a *LogAnalytics) CategoryChanged(ctx context.Context, category string) {
	a.log.Info(ctx, "Category Changed", logger.String("category", category))
}

func (a *LogAnalytics) FirstVisit(ctx context.Context) {
	a.log.Info(ctx, "First Visit")
}
