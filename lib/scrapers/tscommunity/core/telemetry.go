package core

import (
	"tscommunity/lib/telemetry"

	"go.opentelemetry.io/otel"
)

var tracer = telemetry.Tracer("tscommunity.lib.scrapers.tscommunity.core")
var meter = otel.Meter("tscommunity.lib.scrapers.tscommunity.core")

var attempts, _ = meter.Int64Counter("forum_http_attempts")
var responses, _ = meter.Int64Counter("forum_http_responses")
