package room

import "go.uber.org/zap"

// Observer is notified of every room slot or status mutation.
type Observer interface {
	StateChanged(field, from, to string)
}

// ZapObserver logs mutations at debug level.
type ZapObserver struct {
	Logger *zap.Logger
}

var _ Observer = (*ZapObserver)(nil)

// StateChanged records a single field transition.
func (o *ZapObserver) StateChanged(field, from, to string) {
	logger := o.Logger
	if logger == nil {
		logger = zap.L()
	}
	logger.Debug("room state changed",
		zap.String("field", field),
		zap.String("from", from),
		zap.String("to", to))
}
