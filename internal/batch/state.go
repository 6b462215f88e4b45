package batch

// State is a step of the per-file state machine.
type State string

const (
	StateLoading          State = "loading"
	StateRegionSearch     State = "region_search"
	StateSubsetExtraction State = "subset_extraction"
	StateFineGridBuild    State = "fine_grid_build"
	StateQualityFilter    State = "quality_filter"
	StateReprojection     State = "reprojection"
	StateClipping         State = "clipping"
	StateExport           State = "export"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

var stateProgress = map[State]float64{
	StateLoading:          0.0,
	StateRegionSearch:     0.1,
	StateSubsetExtraction: 0.2,
	StateFineGridBuild:    0.3,
	StateQualityFilter:    0.4,
	StateReprojection:     0.5,
	StateClipping:         0.7,
	StateExport:           0.8,
	StateDone:             1.0,
	StateFailed:           1.0,
}

var stateMessages = map[State]string{
	StateRegionSearch:     "Loading geometry and red band data",
	StateSubsetExtraction: "Extracting regional subset",
	StateFineGridBuild:    "Creating fine resolution grid",
	StateQualityFilter:    "Applying QA filtering",
	StateReprojection:     "Reprojecting to WGS84",
	StateClipping:         "Clipping to polygons",
	StateExport:           "Exporting results",
	StateDone:             "Processing complete",
}

// Progress is the fraction reported when s starts.
func (s State) Progress() float64 { return stateProgress[s] }

// Terminal reports whether s ends a file.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

func (s State) String() string { return string(s) }
