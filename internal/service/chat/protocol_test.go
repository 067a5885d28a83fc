package chat

import (
	"errors"
	"strings"
	"testing"

	"github.com/martialartscode/pta-portal/backend/internal/model/chat"
)

func TestDecodeEvents(t *testing.T) {
	d := NewDecoder(0)

	in, err := d.Decode([]byte(`{"event":"identify","data":{"type":"visitor","sessionId":"s1"}}`))
	if err != nil {
		t.Fatalf("Decode identify err: %v", err)
	}
	if p, ok := in.(chat.IdentifyPayload); !ok || p.SessionID != "s1" || p.Type != chat.IdentifyVisitor {
		t.Fatalf("unexpected identify: %#v", in)
	}

	in, err = d.Decode([]byte(`{"event":"visitor-message","data":{"sessionId":"s1","message":"Hi","timestamp":"2026-03-01T09:00:00Z"}}`))
	if err != nil {
		t.Fatalf("Decode visitor-message err: %v", err)
	}
	if p := in.(chat.VisitorMessagePayload); p.Message != "Hi" {
		t.Fatalf("unexpected message: %#v", p)
	}

	in, err = d.Decode([]byte(`{"event":"typing","data":{"sessionId":"s1"}}`))
	if err != nil {
		t.Fatalf("Decode typing err: %v", err)
	}
	if p := in.(chat.TypingPayload); p.Typing != nil {
		t.Fatal("absent typing flag should decode as nil")
	}
}

func TestDecodeRejects(t *testing.T) {
	d := NewDecoder(10)

	cases := []struct {
		raw  string
		want error
	}{
		{`{"event":`, ErrMalformedEvent},
		{`{"event":"identify"}`, ErrMalformedEvent},
		{`{"event":"identify","data":"visitor"}`, ErrMalformedEvent},
		{`{"event":"restore-chat","data":{}}`, ErrUnknownEvent},
		{`{"event":"identify","data":{"type":"visitor"}}`, ErrInvalidEvent},
		{`{"event":"identify","data":{"type":"admin"}}`, ErrInvalidEvent},
		{`{"event":"identify","data":{"type":"robot","sessionId":"s1"}}`, ErrInvalidEvent},
		{`{"event":"visitor-message","data":{"message":""}}`, ErrInvalidEvent},
		{`{"event":"visitor-message","data":{"message":"  \n "}}`, ErrInvalidEvent},
		{`{"event":"visitor-message","data":{"message":"` + strings.Repeat("a", 11) + `"}}`, ErrInvalidEvent},
		{`{"event":"admin-response","data":{"message":"hi"}}`, ErrInvalidEvent},
	}
	for _, tc := range cases {
		if _, err := d.Decode([]byte(tc.raw)); !errors.Is(err, tc.want) {
			t.Fatalf("Decode(%s): got %v want %v", tc.raw, err, tc.want)
		}
	}
}

func TestDecodeCountsCharactersNotBytes(t *testing.T) {
	d := NewDecoder(3)
	if _, err := d.Decode([]byte(`{"event":"visitor-message","data":{"message":"空手道"}}`)); err != nil {
		t.Fatalf("three characters should fit: %v", err)
	}
}
