package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
)

// SipTransport implements Transport over a live sipgo.Client, building and
// waiting on a client transaction the same way dialog.Manager.sendBYE does
// for an out-of-dialog request it has to hand-construct.
type SipTransport struct {
	client  *sipgo.Client
	timeout time.Duration
}

// NewSipTransport constructs a SipTransport. A zero timeout defaults to 5s,
// the teacher's BYE-wait timeout.
func NewSipTransport(client *sipgo.Client, timeout time.Duration) *SipTransport {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SipTransport{client: client, timeout: timeout}
}

func (t *SipTransport) Send(ctx context.Context, req *sip.Request) (*sip.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	tx, err := t.client.TransactionRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("notify: send request: %w", err)
	}
	defer tx.Terminate()

	select {
	case resp := <-tx.Responses():
		return resp, nil
	case <-tx.Done():
		return nil, fmt.Errorf("notify: transaction done without response")
	case <-ctx.Done():
		return nil, fmt.Errorf("notify: timed out waiting for response: %w", ctx.Err())
	}
}
