package vad

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/ema-realtime/core/vad"

var logger = otelslog.NewLogger(scopeName)
