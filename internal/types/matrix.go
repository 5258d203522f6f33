package types

// ExpressionKind tags a node in the flat AST (spec §3 "ExpressionNode").
type ExpressionKind uint8

const (
	NodeSignal ExpressionKind = iota
	NodeConstantNumber
	NodeConstantBool
	NodeWindow
	NodeArithmeticAdd
	NodeArithmeticSub
	NodeArithmeticMul
	NodeArithmeticDiv
	NodeCompareLT
	NodeCompareLE
	NodeCompareGT
	NodeCompareGE
	NodeCompareEQ
	NodeCompareNE
	NodeBooleanAnd
	NodeBooleanOr
	NodeBooleanNot
)

// WindowAggregate selects which trailing/preceding window statistic a
// NodeWindow node computes.
type WindowAggregate uint8

const (
	LastWindowMin WindowAggregate = iota
	LastWindowMax
	LastWindowAvg
	PrevLastWindowMin
	PrevLastWindowMax
	PrevLastWindowAvg
)

// ExpressionNode is one node of the flat, arena-indexed AST. Left/Right are
// indices into the owning InspectionMatrix's NodeStorage; a negative index
// means "no child". Per spec invariant (b), child indices are strictly
// less than the parent's own index — the arena is laid out depth-first
// pre-order, so no node ever points forward.
type ExpressionNode struct {
	Kind  ExpressionKind
	Left  int
	Right int

	SignalID        SignalID
	ConstantNumber  float64
	ConstantBool    bool
	WindowAggregate WindowAggregate
	WindowPeriodMs  uint32
}

// NoChild is the sentinel Left/Right value for a node with no such child.
const NoChild = -1

// MaxEquationDepth is the deepest an ExpressionNode tree may be; matrices
// violating this are rejected at load (spec §3, §6).
const MaxEquationDepth = 10

// MaxActiveConditions bounds the number of conditions the engine runs at
// once; a matrix with more conditions is rejected at load as a whole.
const MaxActiveConditions = 256

// MaxDistinctSignalIDs bounds the number of distinct signal ids referenced
// across the whole matrix (spec §3, §6).
const MaxDistinctSignalIDs = 50000

// EvaluateIntervalMs is the trigger engine's tick period (spec §4.5, §6).
const EvaluateIntervalMs Timestamp = 1

// SignalCollectionInfo describes how one signal is buffered for a
// condition (spec §3 "InspectionMatrixSignalInfo").
type SignalCollectionInfo struct {
	SignalID               SignalID
	SampleBufferSize       uint32
	MinimumSampleIntervalMs uint32
	FixedWindowPeriod      uint32
	ConditionOnly          bool
	SignalType             SignalType
}

// CANFrameCollectionInfo describes how one raw CAN frame id/channel is
// buffered for a condition.
type CANFrameCollectionInfo struct {
	FrameID                 CANFrameID
	ChannelID               ChannelID
	SampleBufferSize        uint32
	MinimumSampleIntervalMs uint32
}

// PassThroughMetadata carries collection-scheme metadata through to the
// published TriggeredCollectionSchemeData (spec §3).
type PassThroughMetadata struct {
	Compress           bool
	Persist            bool
	Priority           uint32
	DecoderID          string
	CollectionSchemeID string
}

// Condition is one collection condition: an AST root plus the signals and
// frames it is allowed to collect, and its publish gating (spec §3
// "Condition").
type Condition struct {
	ASTRoot                 int
	MinimumPublishIntervalMs uint32
	AfterDurationMs          uint32
	Signals                  []SignalCollectionInfo
	CANFrames                []CANFrameCollectionInfo
	IncludeActiveDTCs        bool
	TriggerOnlyOnRisingEdge  bool
	Metadata                 PassThroughMetadata
}

// InspectionMatrix is the active set of collection conditions plus their
// shared AST arena (spec §3 "InspectionMatrix").
type InspectionMatrix struct {
	Conditions  []Condition
	NodeStorage []ExpressionNode
}
