package observability

import "log/slog"

// Alerter is the monitoring sink fed by background jobs. It logs with the
// given severity and counts alerts so the threshold breach is visible on a
// dashboard without a dedicated error-tracking vendor.
type Alerter struct {
	logger *slog.Logger
}

func NewAlerter(logger *slog.Logger) *Alerter {
	return &Alerter{logger: logger}
}

func (a *Alerter) CaptureException(err error, tags map[string]string) {
	attrs := []any{"error", err}
	for k, v := range tags {
		attrs = append(attrs, k, v)
	}
	a.logger.Error("captured exception", attrs...)
	RecordAlert("error")
}

func (a *Alerter) CaptureMessage(msg, severity string) {
	switch severity {
	case "fatal", "error":
		a.logger.Error(msg, "severity", severity)
	case "warning":
		a.logger.Warn(msg, "severity", severity)
	default:
		a.logger.Info(msg, "severity", severity)
	}
	RecordAlert(severity)
}
