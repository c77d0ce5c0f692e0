package relay

import (
	"context"

	"github.com/linguaflow/voicebridge/internal/resilience"
)

// NewGuardedDialer wraps d so every upstream dial passes through b. While the
// breaker is open, dials fail immediately with [resilience.ErrOpen] instead
// of opening sockets against an endpoint that keeps refusing sessions.
func NewGuardedDialer(d UpstreamDialer, b *resilience.Breaker) UpstreamDialer {
	return DialerFunc(func(ctx context.Context, systemInstruction string) (Upstream, error) {
		var up Upstream
		err := b.Do(func() error {
			var dialErr error
			up, dialErr = d.DialUpstream(ctx, systemInstruction)
			return dialErr
		})
		if err != nil {
			return nil, err
		}
		return up, nil
	})
}
