// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package services

import (
	"context"
	"fmt"
	"io"
)

// CloserService supervises a component whose only lifecycle hook is Close,
// such as the NATS provisional-ban publisher: it has no run loop of its own,
// only a connection to release on shutdown. Serve blocks until ctx is
// canceled, then closes the component.
type CloserService struct {
	closer io.Closer
	name   string
}

// NewCloserService wraps closer for supervision under the given name.
func NewCloserService(closer io.Closer, name string) *CloserService {
	return &CloserService{closer: closer, name: name}
}

// Serve implements suture.Service.
func (s *CloserService) Serve(ctx context.Context) error {
	<-ctx.Done()
	if err := s.closer.Close(); err != nil {
		return fmt.Errorf("%s: close: %w", s.name, err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for logging.
func (s *CloserService) String() string {
	return s.name
}
