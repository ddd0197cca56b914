// Package telemetry wires observability for the webhook pipeline: a
// prometheus registry scraped from the admin server, OpenTelemetry metric
// counters describing event and submission outcomes, and the OTLP trace
// provider bootstrap.
package telemetry
