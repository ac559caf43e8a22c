package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

const slowQueryThreshold = 500 * time.Millisecond

// gormLogger routes gorm's log into google/logger at matching severity.
// Errors the ledger handles itself, missing rows and unique violations, are
// only logged when verbose.
type gormLogger struct {
	level gormlogger.LogLevel
	slow  time.Duration

	infof    func(format string, args ...any)
	warningf func(format string, args ...any)
	errorf   func(format string, args ...any)
}

func newGormLogger(verbose bool) *gormLogger {
	level := gormlogger.Warn
	if verbose {
		level = gormlogger.Info
	}
	return &gormLogger{
		level:    level,
		slow:     slowQueryThreshold,
		infof:    logger.Infof,
		warningf: logger.Warningf,
		errorf:   logger.Errorf,
	}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.infof("gorm: "+msg, args...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.warningf("gorm: "+msg, args...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.errorf("gorm: "+msg, args...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	line := func() string {
		sql, rows := fc()
		return fmt.Sprintf("%s [%.3fms] [rows:%d] %s", utils.FileWithLineNum(), float64(elapsed.Nanoseconds())/1e6, rows, sql)
	}

	switch {
	case err != nil && (errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, gorm.ErrDuplicatedKey)):
		if l.level >= gormlogger.Info {
			l.infof("gorm: %v: %s", err, line())
		}
	case err != nil && l.level >= gormlogger.Error:
		l.errorf("gorm: %v: %s", err, line())
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		l.warningf("gorm: slow query over %s: %s", l.slow, line())
	case l.level >= gormlogger.Info:
		l.infof("gorm: %s", line())
	}
}
