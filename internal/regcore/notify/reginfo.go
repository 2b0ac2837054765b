// Package notify builds and sends SIP NOTIFY requests carrying RFC 3680
// reg-event state to subscriptions affected by a Subscriber Manager
// operation.
package notify

import "encoding/xml"

// RegInfo is the RFC 3680 <reginfo> document. It is always emitted with
// state="full": partial diffs are not produced.
type RegInfo struct {
	XMLName      xml.Name       `xml:"urn:ietf:params:xml:ns:reginfo reginfo"`
	Version      uint32         `xml:"version,attr"`
	State        string         `xml:"state,attr"`
	Registrations []Registration `xml:"registration"`
}

// Registration is one <registration> element, one per associated URI.
type Registration struct {
	AOR      string    `xml:"aor,attr"`
	ID       string    `xml:"id,attr"`
	State    string    `xml:"state,attr"`
	Contacts []Contact `xml:"contact"`
}

// Contact is one <contact> element, one per classified binding reported
// under its registration.
type Contact struct {
	ID    string `xml:"id,attr"`
	State string `xml:"state,attr"`
	Event string `xml:"event,attr"`
	URI   string `xml:"uri"`
}

// Marshal renders r as an RFC 3680 reg-info XML document with the
// standard XML declaration prepended.
func (r *RegInfo) Marshal() ([]byte, error) {
	body, err := xml.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// ContactTuple is the flattened (registration uri, binding id, state,
// event) view used for the XML round-trip property test (P4).
type ContactTuple struct {
	AORURI    string
	BindingID string
	State     string
	Event     string
}

// Tuples flattens a RegInfo back into comparable contact tuples.
func (r *RegInfo) Tuples() []ContactTuple {
	var out []ContactTuple
	for _, reg := range r.Registrations {
		for _, c := range reg.Contacts {
			out = append(out, ContactTuple{
				AORURI:    reg.AOR,
				BindingID: c.ID,
				State:     c.State,
				Event:     c.Event,
			})
		}
	}
	return out
}

// Unmarshal parses an RFC 3680 reg-info XML document.
func Unmarshal(data []byte) (*RegInfo, error) {
	var r RegInfo
	if err := xml.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
