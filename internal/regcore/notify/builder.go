package notify

import (
	"fmt"
	"time"

	"github.com/emiago/sipgo/sip"

	"github.com/sebas/regcore/internal/regcore/aor"
	"github.com/sebas/regcore/internal/regcore/classifier"
)

// contactWireState maps a ContactEvent to its RFC 3680 <contact state>.
func contactWireState(e classifier.ContactEvent) string {
	if e.IsTerminal() {
		return "terminated"
	}
	return "active"
}

// BuildRegInfo constructs the full-state reg-info document for cseq
// (the AoR's post-mutation notify_cseq), one <registration> per
// associated URI and one <contact> per classified binding.
func BuildRegInfo(cseq uint32, associatedURIs []aor.AssociatedURI, bindings []classifier.ClassifiedBinding) *RegInfo {
	ri := &RegInfo{Version: cseq, State: "full"}

	anyActive := false
	for _, b := range bindings {
		if !b.Event.IsTerminal() {
			anyActive = true
			break
		}
	}

	for i, u := range associatedURIs {
		state := "terminated"
		if anyActive {
			state = "active"
		}
		reg := Registration{
			AOR:   u.URI,
			ID:    fmt.Sprintf("reg-%d", i+1),
			State: state,
		}
		for _, b := range bindings {
			contactURI := ""
			if b.New != nil {
				contactURI = b.New.ContactURI
			} else if b.Old != nil {
				contactURI = b.Old.ContactURI
			}
			reg.Contacts = append(reg.Contacts, Contact{
				ID:    b.BindingID,
				State: contactWireState(b.Event),
				Event: b.Event.String(),
				URI:   contactURI,
			})
		}
		ri.Registrations = append(ri.Registrations, reg)
	}
	return ri
}

// subscriptionStateHeader builds the Subscription-State header value per
// the subscription's own classified event and the NOTIFY-sending time.
func subscriptionStateHeader(now time.Time, cs classifier.ClassifiedSubscription) string {
	if cs.Event.IsTerminal() {
		reason := string(cs.Reason)
		if reason == "" {
			reason = "noresource"
		}
		return fmt.Sprintf("terminated;reason=%s", reason)
	}
	remaining := cs.New.Expires.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("active;expires=%d", int(remaining.Seconds()))
}

// Builder constructs sip.Request NOTIFYs from a subscription's stored
// dialog state, grounded in the teacher's dialog.Manager.sendBYE/BuildBYE
// style of hand-constructing a request from stored fields rather than a
// live session object.
type Builder struct {
	// FromURI is this S-CSCF's own identity. BuildNotify takes the
	// NOTIFY's From from the subscription's stored To URI and uses
	// FromURI only when that URI does not parse.
FromURI string
}

// NewBuilder constructs a Builder with the notifier's own identity.
func NewBuilder(fromURI string) *Builder {
	return &Builder{FromURI: fromURI}
}

// BuildNotify constructs one NOTIFY *sip.Request for cs, carrying body as
// its application/reginfo+xml payload and cseq as the SIP CSeq number.
func (b *Builder) BuildNotify(now time.Time, cs classifier.ClassifiedSubscription, body []byte, cseq uint32) (*sip.Request, error) {
	sub := cs.Old
	if sub == nil {
		sub = cs.New
	}
	if sub == nil {
		return nil, fmt.Errorf("notify: classified subscription %s has no dialog state", cs.SubscriptionID)
	}

	var recipient sip.Uri
	if err := sip.ParseUri(sub.ReqURI, &recipient); err != nil {
		return nil, fmt.Errorf("notify: invalid request uri %q: %w", sub.ReqURI, err)
	}

	req := sip.NewRequest(sip.NOTIFY, recipient)

	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)

	var fromURI sip.Uri
	if err := sip.ParseUri(sub.ToURI, &fromURI); err != nil {
		fromURI = sip.Uri{Scheme: "sip", Host: b.FromURI}
	}
	fromParams := sip.NewParams()
	fromParams.Add("tag", sub.ToTag)
	req.AppendHeader(&sip.FromHeader{Address: fromURI, Params: fromParams})

	var toURI sip.Uri
	if err := sip.ParseUri(sub.FromURI, &toURI); err != nil {
		toURI = recipient
	}
	toParams := sip.NewParams()
	toParams.Add("tag", sub.FromTag)
	req.AppendHeader(&sip.ToHeader{Address: toURI, Params: toParams})

	callID := sip.CallIDHeader(sub.CallID)
	req.AppendHeader(&callID)

	req.AppendHeader(&sip.CSeqHeader{SeqNo: cseq, MethodName: sip.NOTIFY})

	for _, route := range sub.Route {
		var routeURI sip.Uri
		if err := sip.ParseUri(route, &routeURI); err == nil {
			req.AppendHeader(&sip.RouteHeader{Address: routeURI})
		}
	}

	req.AppendHeader(sip.NewHeader("Event", "reg"))
	req.AppendHeader(sip.NewHeader("Subscription-State", subscriptionStateHeader(now, cs)))
	contentType := sip.ContentTypeHeader("application/reginfo+xml")
	req.AppendHeader(&contentType)
	req.SetBody(body)

	return req, nil
}
