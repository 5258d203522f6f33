package types

// CollectedSignal is one decoded sample as produced by a bus adapter and,
// later, as copied into a TriggeredCollectionSchemeData.
type CollectedSignal struct {
	SignalID    SignalID
	ReceiveTime Timestamp
	Value       TypedValue
}

// CollectedCANRawFrame is one raw CAN frame as produced by a bus adapter.
type CollectedCANRawFrame struct {
	FrameID     CANFrameID
	ChannelID   ChannelID
	ReceiveTime Timestamp
	Data        [MaxCANFrameByteSize]byte
	Size        uint8
}

// DTCInfo is an opaque active-DTC snapshot, attached to a trigger when a
// condition requests it. The decoding of individual codes is the OBD/DTC
// collector's concern (spec §1 "out of scope"); the engine only stores and
// forwards the most recent snapshot.
type DTCInfo struct {
	ReceiveTime Timestamp
	ECUID       uint32
	DTCCodes    []string
}

// CollectedDataFrame is the ingress queue's element type: any combination
// of decoded signals, one raw CAN frame, and a DTC snapshot, produced by
// bus adapters, the OBD/DTC collector, or the camera subscriber (spec §3
// "CollectedDataFrame").
type CollectedDataFrame struct {
	Signals      []CollectedSignal
	CANRawFrame  *CollectedCANRawFrame
	ActiveDTCs   *DTCInfo
}

// TriggeredCollectionSchemeData is the engine's output: everything that
// should be published because one condition fired (spec §3, §6).
type TriggeredCollectionSchemeData struct {
	Metadata    PassThroughMetadata
	TriggerTime Timestamp
	EventID     EventID
	Signals     []CollectedSignal
	CANFrames   []CollectedCANRawFrame
	DTCs        *DTCInfo
}
