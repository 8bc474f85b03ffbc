package stomp

import (
	"testing"

	gostomp "github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Address: "localhost:61613"}
	cfg.applyDefaults()

	if cfg.PoolSize != 4 {
		t.Errorf("PoolSize = %d, want 4", cfg.PoolSize)
	}
	if cfg.HeartBeat == 0 {
		t.Error("HeartBeat not defaulted")
	}
}

func TestPublisherDestinationFallback(t *testing.T) {
	p := NewPublisher(Config{
		Address:     "localhost:61613",
		Destination: "/queue/default",
	})
	defer p.Close()

	if got := p.destination(""); got != "/queue/default" {
		t.Errorf("destination(\"\") = %q, want /queue/default", got)
	}
	if got := p.destination("/queue/other"); got != "/queue/other" {
		t.Errorf("destination override = %q, want /queue/other", got)
	}
}

func TestMessageHeaderAccess(t *testing.T) {
	stompMsg := &gostomp.Message{
		Header: frame.NewHeader(
			frame.MessageId, "msg-1",
			messageGroupHeader, "group-A",
		),
		Body: []byte(`{"id":"1"}`),
	}

	msg := newMessage(nil, stompMsg, "/queue/dispatch")

	if msg.ID() != "msg-1" {
		t.Errorf("ID = %q, want msg-1", msg.ID())
	}
	if msg.MessageGroup() != "group-A" {
		t.Errorf("MessageGroup = %q, want group-A", msg.MessageGroup())
	}
	if msg.Subject() != "/queue/dispatch" {
		t.Errorf("Subject = %q", msg.Subject())
	}
	if string(msg.Data()) != `{"id":"1"}` {
		t.Errorf("Data = %s", msg.Data())
	}

	meta := msg.Metadata()
	if meta[messageGroupHeader] != "group-A" {
		t.Errorf("Metadata missing group header: %v", meta)
	}
}
