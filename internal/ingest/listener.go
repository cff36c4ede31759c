// Package ingest consumes cumulative flow-meter readings from the broker and
// turns them into pour records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"

	"ontap-backend/config"
	"ontap-backend/internal/meter"
	"ontap-backend/internal/pour"
)

// Listener subscribes to meter subjects and feeds debounced tick deltas into
// the pour recorder. A bad reading is logged and dropped; the listener loop
// never dies because of one noisy sensor.
type Listener struct {
	cfg      *config.Config
	meters   *meter.Registry
	debounce *meter.Debouncer
	recorder *pour.Recorder
}

// NewListener creates an ingestion listener.
func NewListener(cfg *config.Config, meters *meter.Registry, recorder *pour.Recorder) *Listener {
	return &Listener{
		cfg:      cfg,
		meters:   meters,
		debounce: meter.NewDebouncer(cfg.Flow.MinPourTicks, cfg.Flow.MaxDeltaTicks),
		recorder: recorder,
	}
}

// Run connects to the broker and blocks until the context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	if !l.cfg.Broker.Enabled {
		log.Println("Meter ingestion is disabled. Not starting.")
		return nil
	}

	conn, err := nats.Connect(l.cfg.Broker.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer conn.Close()

	subject := l.cfg.Broker.SubjectPrefix + ".>"
	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		l.HandleMessage(ctx, msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %q: %w", subject, err)
	}
	defer sub.Unsubscribe()

	log.Printf("Meter ingestion listening on %q", subject)
	<-ctx.Done()
	log.Println("Meter ingestion shutting down.")
	return nil
}

// HandleMessage processes one broker message: the subject tail past the
// configured prefix is the meter identity ("<controller>.<port>") and the
// payload is the ASCII cumulative tick count.
func (l *Listener) HandleMessage(ctx context.Context, subject string, payload []byte) {
	meterName, ok := strings.CutPrefix(subject, l.cfg.Broker.SubjectPrefix+".")
	if !ok || meterName == "" {
		log.Printf("ignoring message on unexpected subject %q", subject)
		return
	}

	cumulative, err := strconv.ParseInt(strings.TrimSpace(string(payload)), 10, 64)
	if err != nil {
		log.Printf("meter %s: unparseable tick payload %q: %v", meterName, payload, err)
		return
	}

	m, err := l.meters.GetOrCreateByName(ctx, meterName)
	if err != nil {
		log.Printf("meter %s: unresolvable identity, dropping reading: %v", meterName, err)
		return
	}

	ticks, emit := l.debounce.Observe(m.MeterName(), cumulative)
	if !emit {
		return
	}

	if m.TapID == nil {
		log.Printf("meter %s: not bound to a tap, dropping %d ticks", meterName, ticks)
		return
	}

	p, err := l.recorder.Record(ctx, pour.Request{
		MeterName: meterName,
		Ticks:     ticks,
	})
	switch {
	case errors.Is(err, pour.ErrNoActiveKeg):
		log.Printf("meter %s: %v, dropping %d ticks", meterName, err, ticks)
	case err != nil:
		log.Printf("meter %s: failed to record pour: %v", meterName, err)
	case p != nil:
		log.Printf("meter %s: recorded pour of %.1f mL (%d ticks)", meterName, p.VolumeML, p.Ticks)
	}
}
