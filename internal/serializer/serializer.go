// Package serializer provides the single jsoniter codec used to encode
// TriggeredCollectionSchemeData for both the MQTT Channel and the Payload
// Spool, grounded on the teacher's use of json-iterator/go for message
// encoding (cmd/mqtt-kafka-bridge/message/message.go).
package serializer

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/edgefleet/inspection-engine/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Marshal encodes a fired snapshot for transport or spooling.
func Marshal(data *types.TriggeredCollectionSchemeData) ([]byte, error) {
	return json.Marshal(data)
}

// Unmarshal decodes a snapshot previously produced by Marshal, used when
// the spool replays a retained payload.
func Unmarshal(payload []byte) (*types.TriggeredCollectionSchemeData, error) {
	var data types.TriggeredCollectionSchemeData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, err
	}
	return &data, nil
}
