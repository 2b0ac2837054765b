// Package sipadapter bridges parsed SIP REGISTER/SUBSCRIBE requests into
// Subscriber Manager operations, extracting Contact/Path/q-value/instance-id
// fields the way the teacher's registration handler does against a
// location.Store, but driving manager.Manager instead.
package sipadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/emiago/sipgo/sip"

	"github.com/sebas/regcore/internal/regcore/aor"
	"github.com/sebas/regcore/internal/regcore/classifier"
	"github.com/sebas/regcore/internal/regcore/hss"
	"github.com/sebas/regcore/internal/regcore/manager"
	"github.com/sebas/regcore/internal/regcore/s4"
)

// StatusIntervalTooBrief is the SIP status code 423 per RFC 3261.
const StatusIntervalTooBrief sip.StatusCode = 423

// DefaultExpires is used when neither the Contact expires parameter nor an
// Expires header is present.
const DefaultExpires = 3600

// MinExpires is the shortest binding lifetime this registrar accepts.
const MinExpires = 60

// Handler adapts REGISTER requests into manager.Manager calls.
type Handler struct {
	mgr      *manager.Manager
	scscfURI string
}

// NewHandler constructs a Handler.
func NewHandler(mgr *manager.Manager, scscfURI string) *Handler {
	return &Handler{mgr: mgr, scscfURI: scscfURI}
}

// HandleRegister processes a REGISTER request end to end: resolving the
// public id through HSS, branching into a first-time Register or a
// Reregister depending on whether an AoR already exists, and responding on
// the transaction.
func (h *Handler) HandleRegister(req *sip.Request, tx sip.ServerTransaction) error {
	ctx := context.Background()
	slog.Debug("[SIPADAPTER] processing REGISTER", "from", req.Source())

	toHeader := req.To()
	if toHeader == nil {
		return h.sendResponse(tx, req, sip.StatusBadRequest, "Missing To header")
	}
	publicID := toHeader.Address.String()

	contacts := req.GetHeaders("Contact")

	hasWildcard := false
	for _, c := range contacts {
		if ch, ok := c.(*sip.ContactHeader); ok && ch.Address.String() == "*" {
			hasWildcard = true
			break
		}
	}
	if hasWildcard {
		if len(contacts) > 1 {
			return h.sendResponse(tx, req, sip.StatusBadRequest, "Contact: * must not be combined with other Contact headers")
		}
		if h.getExpires(req, nil) != 0 {
			return h.sendResponse(tx, req, sip.StatusBadRequest, "Expires must be 0 for Contact: *")
		}
		result, err := h.mgr.DeregisterSubscriber(ctx, publicID, classifier.TriggerUser)
		if err != nil && result == nil {
			return h.sendResponse(tx, req, sip.StatusInternalServerError, "deregistration failed")
		}
		return h.sendOK(tx, req, nil)
	}

	info, err := h.lookupOrFetch(ctx, publicID)
	if err != nil {
		slog.Error("[SIPADAPTER] HSS lookup failed", "public_id", publicID, "error", err)
		return h.sendResponse(tx, req, sip.StatusInternalServerError, "registration data unavailable")
	}

	updated := make(map[string]*aor.Binding)
	var removeIDs []string

	now := time.Now()
	for _, c := range contacts {
		ch, ok := c.(*sip.ContactHeader)
		if !ok {
			continue
		}
		contactURI := ch.Address.String()
		instanceID := extractInstanceID(ch)
		bindingID := aor.GenerateBindingID(contactURI, instanceID)
		expires := h.getExpires(req, ch)

		if expires == 0 {
			removeIDs = append(removeIDs, bindingID)
			continue
		}
		if expires < MinExpires {
			return h.sendIntervalTooBrief(tx, req)
		}

		b := &aor.Binding{
			ContactURI: contactURI,
			Expires:    now.Add(time.Duration(expires) * time.Second),
			QValue:     extractQValue(ch),
			PrivateID:  instanceID,
		}
		if callID := req.CallID(); callID != nil {
			b.CallID = callID.Value()
		}
		if cseqHdr := req.CSeq(); cseqHdr != nil {
			b.CSeq = cseqHdr.SeqNo
		}
		for _, p := range req.GetHeaders("Path") {
			b.Path = append(b.Path, p.Value())
		}
		updated[bindingID] = b
	}

	_, _, err = h.mgr.Store.Get(ctx, info.DefaultIMPU)
	var result *manager.Result
	if errors.Is(err, s4.ErrNotFound) {
		result, err = h.mgr.RegisterSubscriber(ctx, info.DefaultIMPU, h.scscfURI, info.AssociatedURIs, updated)
	} else if err == nil {
		result, err = h.mgr.ReregisterSubscriber(ctx, info.DefaultIMPU, info.AssociatedURIs, updated, removeIDs)
	} else {
		return h.sendResponse(tx, req, sip.StatusInternalServerError, "store unavailable")
	}
	if err != nil && result == nil {
		return h.sendResponse(tx, req, sip.StatusInternalServerError, err.Error())
	}

	return h.sendOK(tx, req, result)
}

// lookupOrFetch resolves publicID via the HSS cache lookup, falling back to
// a full Cx-SAR-like fetch if the cache doesn't have it yet.
func (h *Handler) lookupOrFetch(ctx context.Context, publicID string) (*hss.IRSInfo, error) {
	info, err := h.mgr.HSS.GetRegistrationData(ctx, publicID)
	if errors.Is(err, hss.ErrNotFound) {
		return h.mgr.HSS.UpdateRegistrationState(ctx, hss.IRSQuery{PublicID: publicID, SCSCFURI: h.scscfURI})
	}
	return info, err
}

func (h *Handler) getExpires(req *sip.Request, contact *sip.ContactHeader) int {
	if contact != nil && contact.Params != nil {
		if v, ok := contact.Params.Get("expires"); ok {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	if hdr := req.GetHeader("Expires"); hdr != nil {
		if n, err := strconv.Atoi(hdr.Value()); err == nil {
			return n
		}
	}
	return DefaultExpires
}

func extractInstanceID(contact *sip.ContactHeader) string {
	if contact == nil || contact.Params == nil {
		return ""
	}
	if v, ok := contact.Params.Get("+sip.instance"); ok {
		return strings.Trim(v, "<>\"")
	}
	return ""
}

func extractQValue(contact *sip.ContactHeader) float32 {
	if contact == nil || contact.Params == nil {
		return 0
	}
	if v, ok := contact.Params.Get("q"); ok {
		if q, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(q)
		}
	}
	return 0
}

func (h *Handler) sendResponse(tx sip.ServerTransaction, req *sip.Request, status sip.StatusCode, reason string) error {
	res := sip.NewResponseFromRequest(req, status, reason, nil)
	if err := tx.Respond(res); err != nil {
		slog.Error("[SIPADAPTER] failed to send response", "error", err)
		return err
	}
	return nil
}

func (h *Handler) sendIntervalTooBrief(tx sip.ServerTransaction, req *sip.Request) error {
	res := sip.NewResponseFromRequest(req, StatusIntervalTooBrief, "Interval Too Brief", nil)
	res.AppendHeader(sip.NewHeader("Min-Expires", strconv.Itoa(MinExpires)))
	return tx.Respond(res)
}

func (h *Handler) sendOK(tx sip.ServerTransaction, req *sip.Request, result *manager.Result) error {
	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	if result != nil {
		for id, b := range result.Bindings {
			addContactHeader(res, id, b)
		}
	}
	if err := tx.Respond(res); err != nil {
		slog.Error("[SIPADAPTER] failed to send OK", "error", err)
		return err
	}
	return nil
}

func addContactHeader(res *sip.Response, bindingID string, b *aor.Binding) {
	var uri sip.Uri
	if err := sip.ParseUri(b.ContactURI, &uri); err != nil {
		slog.Debug("[SIPADAPTER] failed to parse contact uri", "binding_id", bindingID, "uri", b.ContactURI, "error", err)
		return
	}
	ch := &sip.ContactHeader{Address: uri, Params: sip.NewParams()}
	remaining := int(time.Until(b.Expires).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	ch.Params.Add("expires", fmt.Sprintf("%d", remaining))
	res.AppendHeader(ch)
}
