package kafka

import (
	"testing"
)

func TestEncodeSetsTypeHeader(t *testing.T) {
	msg, err := encode(Event{Key: "job-1", Type: "search.completed", Value: map[string]int{"result_count": 30}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(msg.Key) != "job-1" {
		t.Errorf("key = %q", msg.Key)
	}
	if string(msg.Value) != `{"result_count":30}` {
		t.Errorf("value = %s", msg.Value)
	}
	if len(msg.Headers) != 1 || msg.Headers[0].Key != HeaderEventType || string(msg.Headers[0].Value) != "search.completed" {
		t.Errorf("headers = %+v", msg.Headers)
	}
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	if _, err := encode(Event{Value: make(chan int)}); err == nil {
		t.Error("expected marshal error")
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		JobID int64 `json:"job_id"`
	}
	got, err := DecodeJSON[payload]([]byte(`{"job_id":12}`))
	if err != nil || got.JobID != 12 {
		t.Fatalf("DecodeJSON = %+v, %v", got, err)
	}
	if _, err := DecodeJSON[payload]([]byte(`not json`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestToMessageReadsTypeHeader(t *testing.T) {
	src, err := encode(Event{Key: "job-3", Type: "search.failed", Value: map[string]string{"reason": "shutdown"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	src.Partition, src.Offset = 2, 41
	m := toMessage(src)
	if m.Type != "search.failed" || string(m.Key) != "job-3" || m.Partition != 2 || m.Offset != 41 {
		t.Errorf("message = %+v", m)
	}
}
