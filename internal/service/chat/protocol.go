package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/martialartscode/pta-portal/backend/internal/model/chat"
)

const defaultMaxMessageLength = 2000

var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidEvent   = errors.New("invalid event payload")
)

// Decoder parses websocket frames into typed inbound events and validates
// them before they reach the router.
type Decoder struct {
	validate         *validator.Validate
	maxMessageLength int
}

// NewDecoder returns a decoder that rejects chat text longer than
// maxMessageLength characters.
func NewDecoder(maxMessageLength int) *Decoder {
	if maxMessageLength <= 0 {
		maxMessageLength = defaultMaxMessageLength
	}
	return &Decoder{validate: validator.New(), maxMessageLength: maxMessageLength}
}

// Decode parses one frame.
func (d *Decoder) Decode(raw []byte) (chat.Inbound, error) {
	var env chat.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var in chat.Inbound
	var err error
	switch env.Event {
	case chat.EventIdentify:
		in, err = decodePayload[chat.IdentifyPayload](d, env.Data)
	case chat.EventVisitorMessage:
		in, err = decodePayload[chat.VisitorMessagePayload](d, env.Data)
	case chat.EventAdminResponse:
		in, err = decodePayload[chat.AdminResponsePayload](d, env.Data)
	case chat.EventTyping:
		in, err = decodePayload[chat.TypingPayload](d, env.Data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if err != nil {
		return nil, err
	}

	switch p := in.(type) {
	case chat.VisitorMessagePayload:
		if err := d.checkText(p.Message); err != nil {
			return nil, err
		}
	case chat.AdminResponsePayload:
		if err := d.checkText(p.Message); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func decodePayload[T chat.Inbound](d *Decoder, data json.RawMessage) (chat.Inbound, error) {
	var payload T
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedEvent)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := d.validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return payload, nil
}

func (d *Decoder) checkText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty message", ErrInvalidEvent)
	}
	if utf8.RuneCountInString(text) > d.maxMessageLength {
		return fmt.Errorf("%w: message longer than %d characters", ErrInvalidEvent, d.maxMessageLength)
	}
	return nil
}
