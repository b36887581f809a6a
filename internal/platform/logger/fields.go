package logger

import (
	"time"

	"go.uber.org/zap"
)

// HTTP

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

func Method(v string) zap.Field { return zap.String("method", v) }

func Path(v string) zap.Field { return zap.String("path", v) }

func Status(v int) zap.Field { return zap.Int("status", v) }

func DurationMs(v time.Duration) zap.Field { return zap.Int64("duration_ms", v.Milliseconds()) }

func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }

// Domain

func OrgID(v string) zap.Field { return zap.String("org_id", v) }

func UserID(v string) zap.Field { return zap.String("user_id", v) }

func CredentialID(v string) zap.Field { return zap.String("credential_id", v) }

func FamilyID(v string) zap.Field { return zap.String("family_id", v) }

// Reason is the internal cause of a rejected request. Never returned to clients.
func Reason(v string) zap.Field { return zap.String("reason", v) }

func Source(v string) zap.Field { return zap.String("source", v) }

func Component(v string) zap.Field { return zap.String("component", v) }

func Op(v string) zap.Field { return zap.String("op", v) }

func Err(err error) zap.Field { return zap.Error(err) }
