package cart

import "go.uber.org/zap"

// Notifier receives the single user-facing message each cart operation produces.
type Notifier interface {
	Success(message string)
	Failure(message string)
}

type logNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier writes notifications to the logger.
func NewLogNotifier(logger *zap.Logger) Notifier {
	return &logNotifier{logger: logger}
}

func (n *logNotifier) Success(message string) {
	n.logger.Info("Cart notification", zap.String("message", message))
}

func (n *logNotifier) Failure(message string) {
	n.logger.Warn("Cart notification", zap.String("message", message))
}
