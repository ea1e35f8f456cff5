package monitor

import (
	"github.com/riskpulse/riskpulse/internal/ring"
	"github.com/riskpulse/riskpulse/internal/types"
)

// DefaultAlertRetention is the number of alerts kept when none is configured
const DefaultAlertRetention = 10

// SeriesBuffer is the rolling window of samples. Timestamps never decrease.
type SeriesBuffer struct {
	buf *ring.Buffer[types.Sample]
}

// NewSeriesBuffer creates a series buffer holding up to maxDataPoints samples
func NewSeriesBuffer(maxDataPoints int) *SeriesBuffer {
	return &SeriesBuffer{buf: ring.New[types.Sample](maxDataPoints)}
}

// Append adds a sample, evicting the oldest one when full
func (b *SeriesBuffer) Append(s types.Sample) error {
	if last, ok := b.buf.Newest(); ok && s.Timestamp.Before(last.Timestamp) {
		return ErrOutOfOrder
	}
	b.buf.Append(s)
	return nil
}

// Items returns a copy of the samples, oldest first
func (b *SeriesBuffer) Items() []types.Sample { return b.buf.Items() }

// Newest returns the most recent sample
func (b *SeriesBuffer) Newest() (types.Sample, bool) { return b.buf.Newest() }

func (b *SeriesBuffer) Len() int { return b.buf.Len() }
func (b *SeriesBuffer) Cap() int { return b.buf.Cap() }
func (b *SeriesBuffer) Clear() { b.buf.Clear() }
func (b *SeriesBuffer) Resize(size int) { b.buf.Resize(size) }

// AlertLog is the bounded history of raised alerts
type AlertLog struct {
	buf *ring.Buffer[types.Alert]
}

// NewAlertLog creates an alert log keeping the last retention alerts
func NewAlertLog(retention int) *AlertLog {
	if retention <= 0 {
		retention = DefaultAlertRetention
	}
	return &AlertLog{buf: ring.New[types.Alert](retention)}
}

// Append adds an alert, evicting the oldest one when full
func (l *AlertLog) Append(a types.Alert) { l.buf.Append(a) }

// Items returns a copy of the alerts, oldest first
func (l *AlertLog) Items() []types.Alert { return l.buf.Items() }

func (l *AlertLog) Len() int { return l.buf.Len() }
func (l *AlertLog) Cap() int { return l.buf.Cap() }
func (l *AlertLog) Clear() { l.buf.Clear() }
