// Package types holds the plain-data contract between the collection and
// inspection engine and its collaborators: bus adapters, the schema
// manager, the serializer, and the MQTT transport.
package types

// SignalID identifies a decoded signal across the whole inspection matrix.
type SignalID = uint32

// CANFrameID identifies a raw CAN frame by its arbitration id.
type CANFrameID = uint32

// ChannelID identifies the physical or virtual CAN channel a frame arrived on.
type ChannelID = uint32

// EventID is a monotonically increasing identifier assigned to each trigger.
type EventID = uint32

// Timestamp is monotonic milliseconds, as produced by the injected Clock.
type Timestamp = int64

// InvalidSignalID marks an unset SignalID, mirroring INVALID_SIGNAL_ID in
// the original CollectionInspectionAPITypes.h.
const InvalidSignalID SignalID = 0xFFFFFFFF

// InvalidCANFrameID marks an unset CANFrameID.
const InvalidCANFrameID CANFrameID = 0xFFFFFFFF

// AllConditions selects every active condition; used by collaborators that
// need to address "every condition" rather than one by collectionSchemeID.
const AllConditions uint32 = 0xFFFFFFFF

// MaxCANFrameByteSize is the largest payload a classic CAN frame can carry.
const MaxCANFrameByteSize = 8
