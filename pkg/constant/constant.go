package constant

const (
	// CommentPrefix binds scheduler-visible output back to the internal job id.
	CommentPrefix = "LICO-"

	// MaxJobNameLen job names longer than this are truncated on ingestion.
	MaxJobNameLen = 128
)

// Measurement time-series store measurement names, compile-time constants.
type Measurement string

func (m Measurement) String() string {
	return string(m)
}

const (
	NodeMetric Measurement = "node_metric"
	GpuMetric  Measurement = "gpu_metric"
)

// CsresCode cross scheduler resource code
type CsresCode string

func (c CsresCode) String() string {
	return string(c)
}

const (
	CsresPort CsresCode = "port"
)

// JobEvent downstream event names
const (
	EventCharge = "charge"
	EventNotify = "notify"
)

// SummaryScope rollup scopes
const (
	SummaryCluster = "cluster"
	SummaryGroup   = "group"
	SummaryLatest  = "latest"
	SummaryVnc     = "vnc"
)
