package groundlink

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

// NewLogScope returns a metrics scope whose values are written to the log
// at Info every interval and once more on Close.
func NewLogScope(prefix string, interval time.Duration) (tally.Scope, io.Closer) {
	return tally.NewRootScope(tally.ScopeOptions{
		Prefix:   prefix,
		Reporter: logReporter{},
	}, interval)
}

// logReporter is a tally.StatsReporter backed by logrus.
type logReporter struct{}

func (logReporter) ReportCounter(name string, tags map[string]string, value int64) {
	logrus.WithFields(logrus.Fields{
		"function": "ReportCounter",
		"metric":   name,
		"value":    value,
	}).Info("Metric")
}

func (logReporter) ReportGauge(name string, tags map[string]string, value float64) {
	logrus.WithFields(logrus.Fields{
		"function": "ReportGauge",
		"metric":   name,
		"value":    value,
	}).Info("Metric")
}

func (logReporter) ReportTimer(name string, tags map[string]string, interval time.Duration) {
	logrus.WithFields(logrus.Fields{
		"function": "ReportTimer",
		"metric":   name,
		"value":    interval.String(),
	}).Debug("Metric")
}

func (logReporter) ReportHistogramValueSamples(name string, tags map[string]string, buckets tally.Buckets, bucketLowerBound, bucketUpperBound float64, samples int64) {
}

func (logReporter) ReportHistogramDurationSamples(name string, tags map[string]string, buckets tally.Buckets, bucketLowerBound, bucketUpperBound time.Duration, samples int64) {
}

func (logReporter) Capabilities() tally.Capabilities {
	return logReporter{}
}

func (logReporter) Reporting() bool { return true }

func (logReporter) Tagging() bool { return false }

func (logReporter) Flush() {}
