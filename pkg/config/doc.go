// Package config defines the matbridge configuration surface: the engine
// worker and its transport, supervisor timings, execution history, figure
// export, and telemetry. Configuration is explicit YAML with enumerated
// values; there are no environment-variable toggles.
package config
