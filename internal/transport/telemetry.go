package transport

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("platewatch/internal/transport")
