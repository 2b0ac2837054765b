package sipadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/sebas/regcore/internal/regcore/aor"
	"github.com/sebas/regcore/internal/regcore/manager"
)

// DefaultSubscriptionExpires is used when the request carries no Expires
// header, mirroring the reg-event package's conventional subscription
// lifetime.
const DefaultSubscriptionExpires = 3600

// SubscribeHandler adapts SUBSCRIBE requests for the reg event package
// into manager.Manager calls.
type SubscribeHandler struct {
	mgr *manager.Manager
}

// NewSubscribeHandler constructs a SubscribeHandler.
func NewSubscribeHandler(mgr *manager.Manager) *SubscribeHandler {
	return &SubscribeHandler{mgr: mgr}
}

// HandleSubscribe processes a SUBSCRIBE to the reg event package,
// creating, refreshing or tearing down the subscription depending on the
// request's Expires value and whether a To-tag is already present
// (dialog-establishing vs. in-dialog refresh).
func (h *SubscribeHandler) HandleSubscribe(req *sip.Request, tx sip.ServerTransaction) error {
	ctx := context.Background()

	toHeader := req.To()
	if toHeader == nil {
		return h.sendResponse(tx, req, sip.StatusBadRequest, "Missing To header")
	}
	publicID := toHeader.Address.String()

	expires := h.getExpires(req)

	subscriptionID := ""
	if toHeader.Params != nil {
		if tag, ok := toHeader.Params.Get("tag"); ok {
			subscriptionID = tag
		}
	}
	if subscriptionID == "" {
		subscriptionID = uuid.NewString()
	}

	if expires == 0 {
		result, err := h.mgr.RemoveSubscription(ctx, publicID, subscriptionID)
		if err != nil && result == nil {
			return h.sendResponse(tx, req, sip.StatusInternalServerError, "unsubscribe failed")
		}
		return h.sendAccepted(tx, req, 0)
	}

	sub := &aor.Subscription{
		SubscriptionID: subscriptionID,
		ReqURI:         req.Recipient.String(),
		Expires:        time.Now().Add(time.Duration(expires) * time.Second),
	}
	if fromHdr := req.From(); fromHdr != nil {
		sub.FromURI = fromHdr.Address.String()
		if fromHdr.Params != nil {
			if tag, ok := fromHdr.Params.Get("tag"); ok {
				sub.FromTag = tag
			}
		}
	}
	sub.ToURI = publicID
	sub.ToTag = subscriptionID
	if callID := req.CallID(); callID != nil {
		sub.CallID = callID.Value()
	}
	for _, r := range req.GetHeaders("Record-Route") {
		sub.Route = append(sub.Route, r.Value())
	}

	result, err := h.mgr.UpdateSubscription(ctx, publicID, subscriptionID, sub)
	switch {
	case result != nil && result.Status == 400:
		return h.sendResponse(tx, req, sip.StatusBadRequest, "no active bindings to subscribe to")
	case err != nil:
		return h.sendResponse(tx, req, sip.StatusInternalServerError, err.Error())
	}

	return h.sendAccepted(tx, req, expires)
}

func (h *SubscribeHandler) getExpires(req *sip.Request) int {
	if hdr := req.GetHeader("Expires"); hdr != nil {
		if n, err := strconv.Atoi(hdr.Value()); err == nil {
			return n
		}
	}
	return DefaultSubscriptionExpires
}

func (h *SubscribeHandler) sendResponse(tx sip.ServerTransaction, req *sip.Request, status sip.StatusCode, reason string) error {
	res := sip.NewResponseFromRequest(req, status, reason, nil)
	if err := tx.Respond(res); err != nil {
		slog.Error("[SIPADAPTER] failed to send SUBSCRIBE response", "error", err)
		return err
	}
	return nil
}

func (h *SubscribeHandler) sendAccepted(tx sip.ServerTransaction, req *sip.Request, expires int) error {
	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	res.AppendHeader(sip.NewHeader("Expires", fmt.Sprintf("%d", expires)))
	if err := tx.Respond(res); err != nil {
		slog.Error("[SIPADAPTER] failed to send SUBSCRIBE accepted", "error", err)
		return err
	}
	return nil
}
