package sms

import (
	"github.com/twilio/twilio-go/twiml"
)

// MessageResponse renders a TwiML reply carrying text. Text is XML-escaped.
// An empty text yields an empty <Response/>, which sends nothing.
func MessageResponse(text string) ([]byte, error) {
	var verbs []twiml.Element
	if text != "" {
		verbs = append(verbs, &twiml.MessagingMessage{Body: text})
	}
	out, err := twiml.Messages(verbs)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}
