package kafkax

import (
	"reflect"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestExtractEventMeta(t *testing.T) {
	msg := kafka.Message{
		Topic: "scheduling.appointment.created.v1",
		Key:   []byte("apt-1"),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte("evt-42")},
			{Key: "event_type", Value: []byte("scheduling.appointment.created.v1")},
		},
	}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "evt-42" || meta.EventType != "scheduling.appointment.created.v1" {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestExtractEventMetaFallbacks(t *testing.T) {
	msg := kafka.Message{Topic: "some.topic.v1", Key: []byte("key-1")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "key-1" {
		t.Fatalf("EventID = %q, want message key", meta.EventID)
	}
	if meta.EventType != "some.topic.v1" {
		t.Fatalf("EventType = %q, want topic", meta.EventType)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092,")
	want := []string{"kafka-1:9092", "kafka-2:9092"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if SplitBrokers("") != nil {
		t.Fatal("empty input should yield nil")
	}
}

func TestInjectTraceHeadersKeepsExisting(t *testing.T) {
	headers := []kafka.Header{{Key: "event_id", Value: []byte("evt-1")}}
	out := InjectTraceHeaders(t.Context(), headers)
	if HeaderValue(out, "event_id") != "evt-1" {
		t.Fatal("existing header lost")
	}
}
