// Package events publishes domain events (report uploaded, appointment
// status changed, ...) on NATS. Subjects are "<prefix>.<subject>", for
// example "ehms.report.deleted.P1".
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/Alijeyrad/ehms_backend/pkg/reqctx"
)

const HeaderRequestID = "X-Request-Id"

type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Nop drops every event. Used when no NATS URL is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

type NatsPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNats returns a Nop publisher when nc is nil.
func NewNats(nc *nats.Conn, prefix string) Publisher {
	if nc == nil {
		return Nop{}
	}
	return &NatsPublisher{nc: nc, prefix: prefix}
}

func (p *NatsPublisher) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", subject, err)
	}

	msg := nats.NewMsg(Subject(p.prefix, subject))
	msg.Data = data
	if rid := reqctx.RequestIDFromContext(ctx); rid != "" {
		msg.Header.Set(HeaderRequestID, rid)
	}

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", msg.Subject, err)
	}
	return nil
}

var tokenReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

// Token makes s safe to use as a single subject token, so a patient ID
// cannot add tokens or wildcards.
func Token(s string) string {
	return tokenReplacer.Replace(s)
}

// Subject joins non-empty parts with dots.
func Subject(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, ".")
}
