//go:build !darwin && !windows

package logger

import (
	"bytes"
	"fmt"
	"log/syslog"
	"time"
)

// destinationSysLog forwards log lines to the host's syslog daemon, one
// severity call per Level. buf is reused across calls so logging at
// Debug under load doesn't churn an allocation per line.
type destinationSysLog struct {
	w   *syslog.Writer
	buf bytes.Buffer
}

func newDestinationSyslog(prefix string) (destination, error) {
	w, err := syslog.New(syslog.LOG_DAEMON, prefix)
	if err != nil {
		return nil, err
	}

	return &destinationSysLog{w: w}, nil
}

func (d *destinationSysLog) log(_ time.Time, level Level, format string, args ...any) {
	d.buf.Reset()
	fmt.Fprintf(&d.buf, format, args...)
	line := d.buf.String()

	switch level {
	case Debug:
		d.w.Debug(line) //nolint:errcheck
	case Info:
		d.w.Info(line) //nolint:errcheck
	case Warn:
		d.w.Warning(line) //nolint:errcheck
	case Error:
		d.w.Err(line) //nolint:errcheck
	}
}

func (d *destinationSysLog) close() {
	d.w.Close() //nolint:errcheck
}
