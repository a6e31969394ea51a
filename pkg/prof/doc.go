// Package prof adds opt-in profiling to the simulator.
//
// Profiling is compiled in only with the "profile" build tag:
//
//	go build -tags profile ./cmd/tmcsim
//
// Without the tag every function is a no-op and Enabled is false, so call
// sites stay in place at no cost.
//
// With the tag, tmcsim's --cpu-profile and --heap-profile flags write pprof
// files, and the diagnostics server mounts the pprof HTTP handlers under
// /debug/pprof/ through Register.
package prof
