package client

import (
	"time"

	"github.com/okian/ceoorcto/internal/domain/matchup"
	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/pkg/logger"
)

// DefaultDwell is how long a result stays on screen.
const DefaultDwell = 2 * time.Second

// Option configures a Controller.
type Option func(*Controller)

// WithFlusher sets where finished batches go. Without one they are dropped.
func WithFlusher(f Flusher) Option {
	return func(c *Controller) { c.flusher = f }
}

// WithAnalytics sets the event sink.
func WithAnalytics(a Analytics) Option {
	return func(c *Controller) {
		if a != nil {
			c.analytics = a
		}
	}
}

// WithRand sets the source for the intro pair's order.
func WithRand(r matchup.Rand) Option {
	return func(c *Controller) {
		if r != nil {
			c.rng = r
		}
	}
}

// WithDwell sets how long a result is held before the game moves on.
func WithDwell(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.dwell = d
		}
	}
}

// WithAfter replaces time.After for the dwell timer.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(c *Controller) {
		if after != nil {
			c.after = after
		}
	}
}

// WithIntroPair sets the profiles shown on a first visit.
func WithIntroPair(a, b model.Profile) Option {
	return func(c *Controller) { c.intro = [2]model.Profile{a, b} }
}

// WithLocation sets the initial category.
func WithLocation(loc string) Option {
	return func(c *Controller) { c.location = normalizeLocation(loc) }
}

// WithLogger sets the controller logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// DefaultIntroPair is the well-known pair every first visit starts with.
func DefaultIntroPair() (model.Profile, model.Profile) {
	return model.Profile{
			ID:                 "yo",
			Name:               "Francisco Dominguez",
			Company:            "Maxilar",
			Role:               "CEO",
			RoleGroup:          model.RoleExecutive,
			ImageURL:           "/images/yo.jpg",
			Location:           "Peru",
			SuccessCount:       1,
			TotalCount:         1,
			LinkedInProfileURL: "https://www.linkedin.com/in/doasfrancisco",
		}, model.Profile{
			ID:                 "mati",
			Name:               "Matias Avendaño",
			Company:            "Maxilar",
			Role:               "CTO",
			RoleGroup:          model.RoleTechnical,
			ImageURL:           "/images/mati.jpg",
			Location:           "Peru",
			SuccessCount:       1,
			TotalCount:         1,
			LinkedInProfileURL: "https://www.linkedin.com/in/matiasavenda222/",
		}
}
