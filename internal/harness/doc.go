// Package harness runs task-sync scenarios against a scripted connector and
// records a deterministic trace.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: create_task
//	description: "Choosing a product fills in its component"
//	repository: ../repos/bugs.cue
//	remembered: { product: Widgets, component: A }
//	task:
//	  id: "42"
//	  fields: { short_desc: [Crash], product: [Widgets] }
//	steps:
//	  - set: { attribute: product, values: [Widgets] }
//	  - set: { key: summary, values: ["Crash on start"] }
//	  - submit: { reply: accepted, reference: "42" }
//	  - expect:
//	      values: { component: [A] }
//	      clean: true
//	      state: accepted
//
// The repository is a CUE definition loaded with package config. Without a
// task the scenario creates a new one. Paths are relative to the scenario
// file.
//
// # Steps
//
// set writes an attribute, by native id or by generic key, and records the
// dependency cascade it caused. submit scripts the connector's reply
// (accepted, rejected or transport) and runs the submission pipeline,
// recording each state transition and the posted field names. expect checks
// the session without adding to the trace.
//
// # Golden Traces
//
// RunWithGolden compares the trace with testdata/golden/<name>.golden.
// Regenerate with:
//
//	go test ./internal/harness -update
package harness
