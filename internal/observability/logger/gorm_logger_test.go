package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

var errUnique = errors.New("UNIQUE constraint failed: ledger_entries.principal")

func newObservedGormLogger(level gormlogger.LogLevel) (*GormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := DefaultGormLoggerConfig()
	cfg.Level = level
	cfg.ExpectedError = func(err error) bool { return errors.Is(err, errUnique) }
	return NewGormLogger(zap.New(core), cfg), logs
}

func TestGormTraceLevels(t *testing.T) {
	ctx := context.Background()
	insert := func() (string, int64) { return `INSERT INTO "ledger_entries" ("id") VALUES ($1)`, 0 }

	log, logs := newObservedGormLogger(gormlogger.Warn)
	log.Trace(ctx, time.Now(), insert, errUnique)
	log.Trace(ctx, time.Now(), insert, errors.New("connection reset"))
	log.Trace(ctx, time.Now(), insert, gormlogger.ErrRecordNotFound)

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
		assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
		assert.Equal(t, "ledger_entries", entries[1].ContextMap()["table"])
		assert.Equal(t, "INSERT", entries[1].ContextMap()["operation"])
	}
}

func TestGormTraceSlowQuery(t *testing.T) {
	log, logs := newObservedGormLogger(gormlogger.Warn)
	begin := time.Now().Add(-time.Second)
	log.Trace(context.Background(), begin, func() (string, int64) { return "SELECT used_count FROM quota_states", 1 }, nil)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		assert.Equal(t, "quota_states", entries[0].ContextMap()["table"])
	}
}

func TestGormSilent(t *testing.T) {
	log, logs := newObservedGormLogger(gormlogger.Warn)
	silent := log.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 0 }, errors.New("boom"))
	assert.Zero(t, logs.Len())
}

func TestTableFromSQL(t *testing.T) {
	assert.Equal(t, "quota_states", tableFromSQL(`UPDATE quota_states SET used_count = used_count - 1`))
	assert.Equal(t, "ledger_incidents", tableFromSQL("SELECT * FROM `ledger_incidents` ORDER BY id"))
	assert.Equal(t, "unknown", tableFromSQL("PRAGMA busy_timeout = 5000"))
}
