package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWithoutExport(t *testing.T) {
	tel, err := Setup(context.Background(), "test:telemetry", Config{})
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
	require.Nil(t, tel.MeterProvider)
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestSetupRejectsBadMetricInterval(t *testing.T) {
	_, err := Setup(context.Background(), "test:telemetry", Config{
		Otlp: OtlpConfig{
			Metrics:        OtlpConnConfig{HttpEndpoint: "http://127.0.0.1:4318/v1/metrics", Insecure: true},
			MetricInterval: "often",
		},
	})
	require.ErrorContains(t, err, "metric_interval")
}

func TestRedactHeader(t *testing.T) {
	require.Equal(t, "<redacted>", RedactHeader("Cookie", "ASP.NET_SessionId=abc"))
	require.Equal(t, "<redacted>", RedactHeader("set-cookie", "x=1"))
	require.Equal(t, "text/html", RedactHeader("Content-Type", "text/html"))
}
