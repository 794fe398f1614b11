package api

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/ceoorcto/pkg/logger"
)

const (
	defaultReportRate     = 20
	defaultReportBurst    = 40
	defaultRequestTimeout = 5 * time.Second
)

// Option configures a Server.
type Option func(*Server)

// WithProduction hides error details from responses.
func WithProduction(production bool) Option {
	return func(s *Server) {
		s.production = production
	}
}

// WithReportLimit sets the token bucket guarding POST /api/log.
func WithReportLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithRequestTimeout bounds handlers that reach the store. Zero disables it.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d >= 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
