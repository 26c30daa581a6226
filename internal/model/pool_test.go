package model

import (
	"encoding/json"
	"testing"
)

func TestPoolEventPayloadStaysRaw(t *testing.T) {
	ev := PoolEvent{
		PoolID:    "pool-a",
		Variant:   PoolDBC,
		EventType: "dbc_swap",
		Slot:      42,
		Payload:   json.RawMessage(`{"amount_in":"10"}`),
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	payload, ok := decoded["payload"].(map[string]interface{})
	if !ok {
		t.Fatalf("payload should be an object, got %T", decoded["payload"])
	}
	if payload["amount_in"] != "10" {
		t.Fatalf("amount_in mismatch: %v", payload["amount_in"])
	}
	if decoded["variant"] != "dbc" {
		t.Fatalf("variant mismatch: %v", decoded["variant"])
	}
}

func TestMessageKeysAndSigners(t *testing.T) {
	msg := Message{
		Header:         MessageHeader{NumRequiredSignatures: 1},
		AccountKeys:    [][]byte{{1}, {2}},
		LoadedWritable: [][]byte{{3}},
		LoadedReadonly: [][]byte{{4}},
	}

	keys := msg.AllKeys()
	if len(keys) != 4 || keys[2][0] != 3 || keys[3][0] != 4 {
		t.Fatalf("unexpected key order: %v", keys)
	}
	if !msg.IsSigner(0) {
		t.Fatalf("index 0 should sign")
	}
	if msg.IsSigner(1) || msg.IsSigner(2) || msg.IsSigner(-1) {
		t.Fatalf("only index 0 should sign")
	}
}

func TestSlotStatusNames(t *testing.T) {
	for status := SlotProcessed; status <= SlotDead; status++ {
		parsed, err := ParseSlotStatus(status.String())
		if err != nil {
			t.Fatalf("parse %s: %v", status, err)
		}
		if parsed != status {
			t.Fatalf("status mismatch: %v != %v", parsed, status)
		}
	}
	if _, err := ParseSlotStatus("bogus"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}
