package tscommunity

import (
	"tscommunity/lib/telemetry"

	"go.opentelemetry.io/otel"
)

var tracer = telemetry.Tracer("tscommunity.services.tscommunity")
var meter = otel.Meter("tscommunity.services.tscommunity")

var toolCalls, _ = meter.Int64Counter("tool_calls")
