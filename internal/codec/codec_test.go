package codec

import (
	"bytes"
	"testing"
	"time"

	"github.com/matheus3301/simchat/internal/chat"
)

func TestHistoryMapRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 4, 5, 6, 7, 891011121, time.UTC)
	in := map[string][]chat.Message{
		"personal:7": {{
			ID: 1, ClientMsgID: "c-1", SenderID: 7, Sender: "alice",
			Conversation: chat.PersonalID(7), Content: "hi",
			CreatedAt: created, Status: chat.StatusReceived,
		}},
		"group:9": {{
			ID: 2, SenderID: 42, Sender: "me",
			Conversation: chat.GroupID(9), Content: "hello",
			CreatedAt: created.Add(time.Second), Status: chat.StatusSending,
		}},
	}

	data, err := Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string][]chat.Message
	if err := Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}

	if len(out) != 2 {
		t.Fatalf("got %d conversations, want 2", len(out))
	}
	got := out["personal:7"][0]
	if got.Content != "hi" || got.Conversation != chat.PersonalID(7) || got.Status != chat.StatusReceived {
		t.Errorf("personal message = %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v (nanoseconds preserved)", got.CreatedAt, created)
	}
	if out["group:9"][0].Conversation.Kind != chat.Group {
		t.Errorf("group kind lost: %+v", out["group:9"][0].Conversation)
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	m := map[string]int{"b": 2, "a": 1, "c": 3}
	first, err := Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	for range 10 {
		again, err := Marshal(m)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding changed between calls: %x vs %x", first, again)
		}
	}
}

func TestUnmarshalAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"k": map[string]any{"n": 1}})
	if err != nil {
		t.Fatal(err)
	}
	var v any
	if err := Unmarshal(data, &v); err != nil {
		t.Fatal(err)
	}
	top, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", v)
	}
	if _, ok := top["k"].(map[string]any); !ok {
		t.Errorf("nested value %T, want map[string]any", top["k"])
	}
}

func TestUnmarshalGarbage(t *testing.T) {
	var out map[string][]chat.Message
	if err := Unmarshal([]byte{0xff, 0x00, 0x13}, &out); err == nil {
		t.Error("Unmarshal of garbage succeeded")
	}
	if _, err := Diagnose([]byte{0xa1, 0x61, 0x6b, 0x01}); err != nil {
		t.Errorf("Diagnose valid map: %v", err)
	}
}
