package server

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/manimchat/manimchat/internal/logging"
)

func contextWithLogger(ctx context.Context, l logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func loggerFrom(ctx context.Context) logrus.FieldLogger {
	if l, ok := ctx.Value(ctxKey{}).(logrus.FieldLogger); ok {
		return l
	}
	return logging.Discard()
}
