// Package logx is the structured logger shared by every dealboard component.
//
// A Logger is a value type over zerolog. Loggers derived from a Service
// follow its configuration, so a config reload changes level and sinks for
// every component at once. The zero Logger discards everything.
package logx
