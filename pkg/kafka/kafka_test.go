package kafka

import (
	"testing"

	kafkago "github.com/segmentio/kafka-go"
)

func TestDecodeJSON(t *testing.T) {
	type request struct {
		Reason string `json:"reason"`
	}
	got, err := DecodeJSON[request]([]byte(`{"reason":"corpus updated"}`))
	if err != nil || got.Reason != "corpus updated" {
		t.Errorf("DecodeJSON = %+v, %v", got, err)
	}
	if _, err := DecodeJSON[request]([]byte(`{not json`)); err == nil {
		t.Error("expected error for malformed value")
	}
}

func TestEncode(t *testing.T) {
	msg, err := encode(Event{Key: "disk", Value: map[string]int{"tokens": 2}})
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Key) != "disk" || string(msg.Value) != `{"tokens":2}` {
		t.Errorf("message = %s / %s", msg.Key, msg.Value)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != contentType {
		t.Errorf("headers = %+v", msg.Headers)
	}
	if _, err := encode(Event{Key: "bad", Value: make(chan int)}); err == nil {
		t.Error("expected error for unencodable value")
	}
}

func TestConsumerOptions(t *testing.T) {
	o := consumerOptions{startOffset: kafkago.LastOffset}
	FromEarliest()(&o)
	if o.startOffset != kafkago.FirstOffset {
		t.Errorf("start offset = %d, want first", o.startOffset)
	}
}
