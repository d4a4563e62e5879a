package entity

// MetricKind scanned metric families
type MetricKind string

const (
	MetricCpuUsage          MetricKind = "CPUSAGE"
	MetricMemoryUtil        MetricKind = "MEMORY_UTIL"
	MetricDisk              MetricKind = "DISK"
	MetricElectric          MetricKind = "ELECTRIC"
	MetricTemp              MetricKind = "TEMP"
	MetricHardware          MetricKind = "HARDWARE"
	MetricNodeActive        MetricKind = "NODE_ACTIVE"
	MetricGpuUtil           MetricKind = "GPU_UTIL"
	MetricGpuTemp           MetricKind = "GPU_TEMP"
	MetricGpuMem            MetricKind = "GPU_MEM"
	MetricHardwareDiscovery MetricKind = "HARDWARE_DISCOVERY"
)

func (m MetricKind) String() string {
	return string(m)
}

var MetricKinds = []MetricKind{
	MetricCpuUsage, MetricMemoryUtil, MetricDisk, MetricElectric, MetricTemp,
	MetricHardware, MetricNodeActive, MetricGpuUtil, MetricGpuTemp, MetricGpuMem,
	MetricHardwareDiscovery,
}

// PortalOp threshold predicate operator
type PortalOp string

const (
	OpLt  PortalOp = "$lt"
	OpLte PortalOp = "$lte"
	OpGt  PortalOp = "$gt"
	OpGte PortalOp = "$gte"
)

type PolicyStatus string

const (
	PolicyOn  PolicyStatus = "ON"
	PolicyOff PolicyStatus = "OFF"
)

// Policy table alert_policy
type Policy struct {
	Id         int64        `json:"id" db:"id"`
	Name       string       `json:"name" db:"name"`
	Metric     MetricKind   `json:"metric" db:"metric"`
	PortalOp   PortalOp     `json:"portal_op" db:"portal_op"`
	Threshold  float64      `json:"threshold" db:"threshold"`
	Duration   int64        `json:"duration" db:"duration"`
	NodeFilter string       `json:"node_filter" db:"node_filter"`
	Level      string       `json:"level" db:"level"`
	Status     PolicyStatus `json:"status" db:"status"`
	Targets    string       `json:"targets" db:"targets"`
	Script     string       `json:"script" db:"script"`
	Language   string       `json:"language" db:"language"`
	CreateTime int64        `json:"create_time" db:"create_time"`
	UpdateTime int64        `json:"update_time" db:"update_time"`
}

type AlertStatus string

const (
	AlertPresent   AlertStatus = "present"
	AlertConfirmed AlertStatus = "confirmed"
	AlertResolved  AlertStatus = "resolved"
)

// Alert table alert. Index is -1 for single-index metrics.
type Alert struct {
	Id         int64       `json:"id" db:"id"`
	PolicyId   int64       `json:"policy_id" db:"policy_id"`
	Node       string      `json:"node" db:"node"`
	Index      int64       `json:"index" db:"index_id"`
	Status     AlertStatus `json:"status" db:"status"`
	Comment    string      `json:"comment" db:"comment"`
	CreateTime int64       `json:"create_time" db:"create_time"`
}
