// Package monitor samples pipeline health on a timer and raises alerts when
// a KPI crosses its threshold.
//
// Every cycle gathers ingestion, enrichment, query and system metrics in
// parallel, persists them as one snapshot and evaluates the snapshot against
// the KPI table. A failing cycle is logged and recorded as a failed health
// check; the loop keeps running. Alerts are advisory: they are persisted,
// handed to listeners and published on the bus, and stay until someone
// acknowledges them.
package monitor
