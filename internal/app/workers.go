package app

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.uber.org/fx"

	"github.com/Alijeyrad/ehms_backend/config"
	"github.com/Alijeyrad/ehms_backend/pkg/events"
)

// WorkerModule registers the NATS event workers.
var WorkerModule = fx.Module("workers",
	fx.Invoke(RegisterWorkers),
)

type WorkerParams struct {
	fx.In

	Lc  fx.Lifecycle
	Cfg *config.Config
	NC  *nats.Conn `optional:"true"`
}

func RegisterWorkers(p WorkerParams) {
	if p.NC == nil {
		slog.Debug("nats not configured; event workers not started")
		return
	}
	var subs []*nats.Subscription
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			subs, err = startAuditWorker(p.NC, p.Cfg.Nats.SubjectPrefix, slog.Default())
			return err
		},
		OnStop: func(ctx context.Context) error {
			// Drain of the connection is handled by ProvideNatsClient.
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil
		},
	})
}

// ---------------------------------------------------------------------------
// audit_worker
// ---------------------------------------------------------------------------

// auditSubjects are the event families written to the audit log.
func auditSubjects(prefix string) []string {
	return []string{
		events.Subject(prefix, "report", ">"),
		events.Subject(prefix, "appointment", ">"),
	}
}

func startAuditWorker(nc *nats.Conn, prefix string, log *slog.Logger) ([]*nats.Subscription, error) {
	var subs []*nats.Subscription
	for _, subject := range auditSubjects(prefix) {
		sub, err := nc.Subscribe(subject, auditHandler(log))
		if err != nil {
			log.Error("audit_worker: subscribe failed", "subject", subject, "err", err)
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}
	log.Info("audit_worker: started")
	return subs, nil
}

func auditHandler(log *slog.Logger) nats.MsgHandler {
	return func(msg *nats.Msg) {
		attrs := []any{"subject", msg.Subject}
		if msg.Header != nil {
			if rid := msg.Header.Get(events.HeaderRequestID); rid != "" {
				attrs = append(attrs, "request_id", rid)
			}
		}
		var payload any
		if err := json.Unmarshal(msg.Data, &payload); err == nil {
			attrs = append(attrs, "payload", redact(payload))
		} else {
			attrs = append(attrs, "payload_bytes", len(msg.Data))
		}
		log.Info("audit_worker: event", attrs...)
	}
}

// redactedFields are masked in logged event payloads.
var redactedFields = map[string]struct{}{
	"url":   {},
	"notes": {},
}

func redact(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, inner := range t {
			if _, ok := redactedFields[k]; ok {
				t[k] = "[redacted]"
				continue
			}
			t[k] = redact(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = redact(inner)
		}
		return t
	default:
		return v
	}
}
