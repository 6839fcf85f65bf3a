package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"reflect"
	"testing"

	"github.com/nats-io/nats.go"
)

func TestAuditSubjects(t *testing.T) {
	got := auditSubjects("ehms")
	want := []string{"ehms.report.>", "ehms.appointment.>"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("auditSubjects() = %v, want %v", got, want)
	}
}

func TestAuditHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	msg := nats.NewMsg("ehms.report.deleted.P1")
	msg.Header.Set("X-Request-Id", "req-1")
	msg.Data = []byte(`{"id":"r1","url":"https://bucket/P1/DELETED/scan.pdf?X-Amz-Signature=abc","notes":"follow-up","instructions":["A"]}`)
	auditHandler(log)(msg)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if line["subject"] != "ehms.report.deleted.P1" {
		t.Errorf("subject = %v", line["subject"])
	}
	if line["request_id"] != "req-1" {
		t.Errorf("request_id = %v", line["request_id"])
	}
	payload, ok := line["payload"].(map[string]any)
	if !ok || payload["id"] != "r1" {
		t.Fatalf("payload = %v", line["payload"])
	}
	for _, field := range []string{"url", "notes"} {
		if payload[field] != "[redacted]" {
			t.Errorf("%s = %v, want [redacted]", field, payload[field])
		}
	}
	if bytes.Contains(buf.Bytes(), []byte("X-Amz-Signature")) {
		t.Errorf("signed link leaked into log: %s", buf.String())
	}
}

func TestAuditHandler_NonJSON(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	msg := nats.NewMsg("ehms.appointment.updated")
	msg.Data = []byte("not json")
	auditHandler(log)(msg)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if line["payload_bytes"] != float64(len("not json")) {
		t.Errorf("payload_bytes = %v", line["payload_bytes"])
	}
	if _, ok := line["payload"]; ok {
		t.Error("non-JSON payload logged")
	}
}
