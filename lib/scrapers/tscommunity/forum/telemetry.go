package forum

import (
	"tscommunity/lib/telemetry"

	"go.opentelemetry.io/otel"
)

var tracer = telemetry.Tracer("tscommunity.lib.scrapers.tscommunity.forum")
var meter = otel.Meter("tscommunity.lib.scrapers.tscommunity.forum")

var sessionInvalidations, _ = meter.Int64Counter("forum_session_invalidations")
var parseFailures, _ = meter.Int64Counter("forum_parse_failures")
