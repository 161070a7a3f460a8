package dispatch

import "time"

// DataPacket is one inbound unit of telemetry. SourceID correlates the
// packet to a persisted data source; Payload is opaque to this package
// and its semantics are owned by the caller. Packets are immutable once
// constructed and are consumed read-only.
type DataPacket struct {
	SourceID string
	Payload  any
}

// DataSource is a persisted registration that an external signal,
// identified by SourceID and Type, is relevant to zero or more
// detectors.
type DataSource struct {
	ID        string
	SourceID  string
	Type      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Detector is a configured rule evaluator attached to one or more data
// sources. Disabled detectors are excluded from all dispatch results.
type Detector struct {
	ID                     string
	Name                   string
	Type                   string
	Enabled                bool
	WorkflowConditionGroup *ConditionGroup
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Logic types for combining the conditions of a group.
const (
	LogicAny  = "any"
	LogicAll  = "all"
	LogicNone = "none"
)

// ConditionGroup is a logical grouping of conditions with a combination
// rule. A group is owned by at most one detector.
type ConditionGroup struct {
	ID         string
	LogicType  string
	Conditions []Condition
}

// Comparison operator types for conditions.
const (
	ConditionEq  = "eq"
	ConditionNe  = "ne"
	ConditionGt  = "gt"
	ConditionGte = "gte"
	ConditionLt  = "lt"
	ConditionLte = "lte"
)

// Condition compares an input value against a comparison operand. When
// the comparison matches, the condition yields ConditionResult.
type Condition struct {
	ID              string
	Type            string
	Comparison      any
	ConditionResult bool
}

// PacketDetectors pairs a data packet with the enabled detectors that
// should evaluate it. Detectors is never empty in dispatch results.
type PacketDetectors struct {
	Packet    DataPacket
	Detectors []Detector
}
