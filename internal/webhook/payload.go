package webhook

import "encoding/json"

// Payload is the WhatsApp Cloud API webhook envelope.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts"`
	Messages         []Message `json:"messages"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	WaID    string  `json:"wa_id"`
	Profile Profile `json:"profile"`
}

type Profile struct {
	Name string `json:"name"`
}

type Message struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Profile *Profile `json:"profile,omitempty"`
}

// Body returns the text body, or a "[<type> message]" placeholder for
// anything that is not a non-empty text message.
func (m Message) Body() string {
	if m.Type == "text" && m.Text != nil && m.Text.Body != "" {
		return m.Text.Body
	}
	return "[" + m.Type + " message]"
}

// profileName prefers the contact entry for the sender over the inline profile.
func (v ChangeValue) profileName(m Message) string {
	for _, c := range v.Contacts {
		if c.WaID == m.From && c.Profile.Name != "" {
			return c.Profile.Name
		}
	}
	if m.Profile != nil {
		return m.Profile.Name
	}
	return ""
}

// rawRecord is stored alongside each event for audit.
type rawRecord struct {
	PhoneNumberID      string          `json:"phoneNumberId,omitempty"`
	DisplayPhoneNumber string          `json:"displayPhoneNumber,omitempty"`
	ProfileName        string          `json:"profileName,omitempty"`
	MessageType        string          `json:"messageType"`
	FullPayload        json.RawMessage `json:"fullPayload"`
}
