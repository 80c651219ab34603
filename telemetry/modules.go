package telemetry

// Module label values for the "module" metric attribute. Every
// subsystem stamps its metrics with one of these so dashboards can
// slice request volume, latency, and errors per component under a
// single metric name.
const (
	ModuleCore          = "core"
	ModuleReasoning     = "reasoning"
	ModuleResearch      = "research"
	ModulePlanning      = "planning"
	ModuleMedia         = "media"
	ModuleStorage       = "storage"
	ModuleOrchestration = "orchestration"
)
