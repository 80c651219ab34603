package tripsmith

// Version information for the TripSmith planner
const (
	// Version is the current planner version
	Version = "development"

	// APIVersion is the current API version
	APIVersion = "v1alpha1"

	// BuildDate is set during build time
	BuildDate = "development"

	// GitCommit is set during build time
	GitCommit = "unknown"
)
