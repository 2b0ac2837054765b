package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/emiago/sipgo/sip"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sebas/regcore/internal/regcore/aor"
	"github.com/sebas/regcore/internal/regcore/classifier"
)

// MaxConcurrentSends bounds how many NOTIFYs a single Send call dispatches
// at once, the same role MaxConcurrentMigrations plays in the teacher's
// drain coordinator.
const MaxConcurrentSends = 8

// Transport is the narrow SIP send capability the Sender depends on,
// rather than a concrete sipgo client, so it stays mockable without a live
// socket (Design Note: "NOTIFY send as side effect vs. event").
type Transport interface {
	Send(ctx context.Context, req *sip.Request) (*sip.Response, error)
}

// SendResult records the outcome of one subscription's NOTIFY attempt.
type SendResult struct {
	SubscriptionID string
	CSeqUsed       uint32
	Err            error
}

// SenderConfig configures a Sender.
type SenderConfig struct {
	Concurrency int64
}

// DefaultSenderConfig returns MaxConcurrentSends as the default fan-out.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{Concurrency: MaxConcurrentSends}
}

// nextNotifyCSeq returns the subscription's own cseq_of_last_notify + 1,
// preferring the post-mutation snapshot (present for every non-terminal
// event and, by construction, absent only once the subscription has been
// fully removed from the store).
func nextNotifyCSeq(cs classifier.ClassifiedSubscription) uint32 {
	if cs.New != nil {
		return cs.New.CSeqOfLastNotify + 1
	}
	if cs.Old != nil {
		return cs.Old.CSeqOfLastNotify + 1
	}
	return 1
}

// Sender consumes classified lists and the post-update AoR state to build
// and dispatch one NOTIFY per subscription with NotifyRequired=true.
type Sender struct {
	builder   *Builder
	transport Transport
	cfg       SenderConfig
}

// NewSender constructs a Sender.
func NewSender(builder *Builder, transport Transport, cfg SenderConfig) *Sender {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = MaxConcurrentSends
	}
	return &Sender{builder: builder, transport: transport, cfg: cfg}
}

// Send builds and dispatches one NOTIFY per subscription in subs with
// NotifyRequired=true, fanning sends out with bounded concurrency. A
// single transport failure never aborts the batch (§4.4 Failure): each
// outcome is collected into the returned slice so the caller can persist
// the CSeq actually used back through a Patch.
func (s *Sender) Send(ctx context.Context, now time.Time, associatedURIs []aor.AssociatedURI, cseq uint32, bindings []classifier.ClassifiedBinding, subs []classifier.ClassifiedSubscription) []SendResult {
	body, err := BuildRegInfo(cseq, associatedURIs, bindings).Marshal()
	if err != nil {
		slog.Error("[NOTIFY] failed to marshal reg-info body", "error", err)
		results := make([]SendResult, 0, len(subs))
		for _, cs := range subs {
			if cs.NotifyRequired {
				results = append(results, SendResult{SubscriptionID: cs.SubscriptionID, Err: err})
			}
		}
		return results
	}

	sem := semaphore.NewWeighted(s.cfg.Concurrency)
	g, gCtx := errgroup.WithContext(ctx)

	results := make([]SendResult, len(subs))
	for i, cs := range subs {
		if !cs.NotifyRequired {
			continue
		}
		i, cs := i, cs
		results[i] = SendResult{SubscriptionID: cs.SubscriptionID}

		g.Go(func() error {
			if err := sem.Acquire(gCtx, 1); err != nil {
				results[i].Err = err
				return nil
			}
			defer sem.Release(1)

			sendCSeq := nextNotifyCSeq(cs)
			req, err := s.builder.BuildNotify(now, cs, body, sendCSeq)
			if err != nil {
				slog.Error("[NOTIFY] failed to build request", "subscription_id", cs.SubscriptionID, "error", err)
				results[i].Err = err
				return nil
			}

			if _, err := s.transport.Send(gCtx, req); err != nil {
				slog.Warn("[NOTIFY] send failed, continuing batch", "subscription_id", cs.SubscriptionID, "error", err)
				results[i].Err = err
				return nil
			}

			results[i].CSeqUsed = sendCSeq
			slog.Info("[NOTIFY] sent", "subscription_id", cs.SubscriptionID, "event", cs.Event.String())
			return nil
		})
	}
	_ = g.Wait()

	out := make([]SendResult, 0, len(subs))
	for i, cs := range subs {
		if cs.NotifyRequired {
			out = append(out, results[i])
		}
	}
	return out
}
