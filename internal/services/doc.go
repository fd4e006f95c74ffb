// Package services holds cross-cutting helpers shared by the external service
// clients: a sentinel error taxonomy with wrapping helpers, and context
// annotation utilities for correlating log output with pipeline runs.
//
// Concrete clients live in subpackages (gpuserver, modal, localwhisper,
// analysis, drive); all of them classify failures with the markers defined
// here so the orchestrator can tell transient network trouble apart from
// configuration mistakes.
package services
