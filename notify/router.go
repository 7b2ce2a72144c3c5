package notify

import (
	"context"
	"errors"
)

// Router fans one alert out to multiple sinks. Delivery is attempted on
// every sink even when an earlier one fails.
type Router struct {
	sinks []Sink
}

// NewRouter creates a Router over the given sinks.
func NewRouter(sinks ...Sink) *Router {
	return &Router{sinks: sinks}
}

// Send delivers the alert to all sinks and joins any errors.
func (r *Router) Send(ctx context.Context, alert ChangeAlert) error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all sinks.
func (r *Router) Close() error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
