// Package events carries outbound protocol events: the ordered write to the controller's
// stream, an asynchronous fan-out bus for secondary consumers, and an optional transcript.
package events

import (
	"go.uber.org/zap"

	"github.com/msageha/craftbridge/internal/model"
	"github.com/msageha/craftbridge/internal/transport"
)

// Emitter is the single path for outbound events. The protocol write is synchronous so
// callers observe events in the order they emit them.
type Emitter struct {
	enc        *transport.Encoder
	bus        *Bus
	transcript *Transcript
	logger     *zap.Logger
}

func NewEmitter(enc *transport.Encoder, bus *Bus, transcript *Transcript, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{enc: enc, bus: bus, transcript: transcript, logger: logger}
}

func (e *Emitter) Emit(ev model.Event) {
	if err := e.enc.Encode(ev); err != nil {
		e.logger.Error("write event", zap.String("event", ev.Name), zap.Error(err))
	}
	if e.transcript != nil {
		if err := e.transcript.RecordEvent(ev); err != nil {
			e.logger.Warn("transcript event", zap.String("event", ev.Name), zap.Error(err))
		}
	}
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

// RecordCommand notes an inbound command in the transcript, if one is configured.
func (e *Emitter) RecordCommand(cmd model.Command) {
	if e.transcript == nil {
		return
	}
	if err := e.transcript.RecordCommand(cmd); err != nil {
		e.logger.Warn("transcript command", zap.String("kind", cmd.Kind), zap.Error(err))
	}
}
