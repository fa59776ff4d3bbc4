package logger

import (
	"time"

	"go.uber.org/zap"
)

func RequestID(v string) zap.Field         { return zap.String("request_id", v) }
func Method(v string) zap.Field            { return zap.String("method", v) }
func Path(v string) zap.Field              { return zap.String("path", v) }
func Status(v int) zap.Field               { return zap.Int("status", v) }
func Bytes(v int) zap.Field                { return zap.Int("bytes", v) }
func DurationMs(v time.Duration) zap.Field { return zap.Int64("dur_ms", v.Milliseconds()) }
func Component(v string) zap.Field         { return zap.String("component", v) }
func Op(v string) zap.Field                { return zap.String("op", v) }
func Collection(v string) zap.Field        { return zap.String("collection", v) }
func EntityID(v string) zap.Field          { return zap.String("entity_id", v) }
func Event(v string) zap.Field             { return zap.String("event", v) }
func Err(err error) zap.Field              { return zap.Error(err) }
