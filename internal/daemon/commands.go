package daemon

import (
	"go.uber.org/zap"

	"github.com/msageha/craftbridge/internal/model"
	"github.com/msageha/craftbridge/internal/transport"
)

// handle takes one decoded command on the stdin reader goroutine. Exclusive work is
// started or queued without blocking; immediate commands run here, synchronously.
func (d *Daemon) handle(cmd model.Command) {
	if cmd.ID == "" {
		id, err := model.GenerateID(model.IDTypeCommand)
		if err != nil {
			d.logger.Warn("command id", zap.Error(err))
		}
		cmd.ID = id
	}
	d.emitter.RecordCommand(cmd)
	d.logger.Debug("command received", zap.String("id", cmd.ID), zap.String("kind", cmd.Kind))

	if !d.exec.Admit(cmd) {
		return
	}
	d.queue.Dispatch(cmd)
}

func (d *Daemon) malformed(me *transport.MalformedError) {
	d.emitter.Emit(model.ErrorEvent("", me.Error(), model.ErrCodeMalformed))
}
