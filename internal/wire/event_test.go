package wire

import (
	"errors"
	"testing"

	"github.com/zapdesk/console/internal/chat"
)

func TestDecodeMessage(t *testing.T) {
	frame := []byte(`{"event":"message","data":{"id":5,"contactId":7,"sender":"external:5511999998888:João","body":"oi","type":"chat","status":"RECEIVED","timestamp":1234,"edited":false}}`)
	evt, err := Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	me, ok := evt.(MessageEvent)
	if !ok {
		t.Fatalf("event type = %T, want MessageEvent", evt)
	}
	m := me.Msg
	if m.ID != "5" || m.Conv != (chat.ConvKey{Kind: chat.KindWhatsApp, ID: 7}) {
		t.Errorf("identity = id %s conv %s", m.ID, m.Conv)
	}
	if m.Status != chat.StatusReceived || m.Body != "oi" || m.Type != chat.TypeChat || m.Timestamp != 1234 {
		t.Errorf("payload fields wrong: %+v", m)
	}
}

func TestDecodeInternalMessage(t *testing.T) {
	frame := []byte(`{"event":"internal-message","data":{"id":"9","internalChatId":3,"sender":"user:4","body":"bom dia","type":"chat","status":"SENT","timestamp":10}}`)
	evt, err := Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	me := evt.(MessageEvent)
	if me.Msg.Conv != (chat.ConvKey{Kind: chat.KindInternal, ID: 3}) {
		t.Errorf("conv = %s, want internal/3", me.Msg.Conv)
	}
}

func TestDecodeStatus(t *testing.T) {
	frame := []byte(`{"event":"message:status","data":{"messageId":1,"contactId":7,"status":"READ"}}`)
	evt, err := Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	se := evt.(StatusEvent)
	if se.MessageID != "1" || se.Status != chat.StatusRead || se.Conv.ID != 7 {
		t.Errorf("status event = %+v", se)
	}

	frame = []byte(`{"event":"internal-message:status","data":{"internalMessageId":2,"internalChatId":3,"status":"READ"}}`)
	evt, err = Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	se = evt.(StatusEvent)
	if se.MessageID != "2" || se.Conv.Kind != chat.KindInternal {
		t.Errorf("internal status event = %+v", se)
	}
}

func TestDecodeEdit(t *testing.T) {
	frame := []byte(`{"event":"message:edit","data":{"messageId":5,"contactId":7,"newText":"corrigido"}}`)
	evt, err := Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	ee := evt.(EditEvent)
	if ee.MessageID != "5" || ee.NewText != "corrigido" || ee.Conv.ID != 7 {
		t.Errorf("edit event = %+v", ee)
	}
}

func TestDecodeChatLifecycle(t *testing.T) {
	tests := []struct {
		frame string
		want  string
		kind  chat.Kind
		id    int64
	}{
		{`{"event":"chat:started","data":{"chatId":7}}`, "started", chat.KindWhatsApp, 7},
		{`{"event":"chat:finished","data":{"chatId":7}}`, "finished", chat.KindWhatsApp, 7},
		{`{"event":"chat:transferred","data":{"chatId":7}}`, "transferred", chat.KindWhatsApp, 7},
		{`{"event":"internal-chat:started","data":{"internalChatId":3}}`, "started", chat.KindInternal, 3},
		{`{"event":"internal-chat:finished","data":{"internalChatId":3}}`, "finished", chat.KindInternal, 3},
		{`{"event":"internal-chat:transferred","data":{"internalChatId":3}}`, "transferred", chat.KindInternal, 3},
	}
	for _, tt := range tests {
		evt, err := Decode([]byte(tt.frame))
		if err != nil {
			t.Fatalf("%s: %v", tt.frame, err)
		}
		var key chat.ConvKey
		var got string
		switch e := evt.(type) {
		case ChatStartedEvent:
			key, got = e.Conv, "started"
		case ChatFinishedEvent:
			key, got = e.Conv, "finished"
		case ChatTransferredEvent:
			key, got = e.Conv, "transferred"
		default:
			t.Fatalf("%s: unexpected type %T", tt.frame, evt)
		}
		if got != tt.want || key.Kind != tt.kind || key.ID != tt.id {
			t.Errorf("%s -> %s %s, want %s %s/%d", tt.frame, got, key, tt.want, tt.kind, tt.id)
		}
	}
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := Decode([]byte(`{"event":"typing","data":{}}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("err = %v, want ErrUnknownEvent", err)
	}
}

func TestDecodeRejectsMissingConversation(t *testing.T) {
	frames := []string{
		`{"event":"message","data":{"id":5,"sender":"me","body":"x","type":"chat","status":"SENT","timestamp":1}}`,
		`{"event":"message:status","data":{"messageId":1,"status":"READ"}}`,
		`{"event":"chat:started","data":{}}`,
	}
	for _, f := range frames {
		if _, err := Decode([]byte(f)); !errors.Is(err, chat.ErrNoConversation) {
			t.Errorf("Decode(%s) err = %v, want ErrNoConversation", f, err)
		}
	}
}

func TestDecodeRejectsBadStatusAndMalformedJSON(t *testing.T) {
	if _, err := Decode([]byte(`{"event":"message:status","data":{"messageId":1,"contactId":7,"status":"ACK"}}`)); err == nil {
		t.Error("unknown status should be rejected")
	}
	if _, err := Decode([]byte(`{"event":"message","data":`)); err == nil {
		t.Error("malformed frame should be rejected")
	}
	if _, err := Decode([]byte(`{"event":"message","data":{"contactId":7,"sender":"me","status":"SENT"}}`)); err == nil {
		t.Error("missing message id should be rejected")
	}
}
