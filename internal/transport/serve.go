package transport

import (
	"context"
	"errors"
	"io"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/msageha/craftbridge/internal/model"
)

type HandlerFunc func(cmd model.Command)

// Serve feeds each decoded command to handle until the stream ends (nil) or a read
// fails. Malformed lines are reported through malformed and skipped. ctx is checked
// between lines; a blocked read is not interrupted.
func Serve(ctx context.Context, r io.Reader, handle HandlerFunc, malformed func(*MalformedError), logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	dec := NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd, err := dec.Next()
		if errors.Is(err, io.EOF) {
			logger.Info("command stream closed", zap.Int("lines", dec.Line()))
			return nil
		}
		var me *MalformedError
		if errors.As(err, &me) {
			logger.Debug("malformed command", zap.Int("line", dec.Line()), zap.Error(me.Err))
			malformed(me)
			continue
		}
		if err != nil {
			return err
		}
		dispatch(handle, cmd, logger)
	}
}

func dispatch(handle HandlerFunc, cmd model.Command, logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in command handler", zap.String("kind", cmd.Kind), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()
	handle(cmd)
}
