package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DmytroIE/Monapps-v5/pkg/rawdata"
)

// chirpstackEnvelope is the subset of a Chirpstack uplink payload this
// engine cares about: the device identity and the decoded application
// object, which carries the same ts-keyed row shape as the generic ingress
// format (spec.md §6.2; run_mqtt_sub.py dispatches on exactly these two
// keys).
type chirpstackEnvelope struct {
	DeviceInfo struct {
		DevEui string `json:"devEui"`
	} `json:"deviceInfo"`
	Object map[string]json.RawMessage `json:"object"`
}

// IsChirpstackTopic reports whether topic should be routed through
// DecodeChirpstack rather than DecodeGeneric, matching run_mqtt_sub.py's
// `"chirpstack" in msg.topic` check.
func IsChirpstackTopic(topic string) bool {
	return strings.Contains(topic, "chirpstack")
}

// DecodeChirpstack parses a Chirpstack uplink payload (spec.md §6.2): the
// payload must contain deviceInfo.devEui and object. devEui is lowercased
// before lookup like every other dev_ui.
func DecodeChirpstack(raw []byte) (devUi string, rows map[string]rawdata.DeviceRowInput, err error) {
	var env chirpstackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("mqtt: decode chirpstack payload: %w", err)
	}
	if env.DeviceInfo.DevEui == "" || env.Object == nil {
		return "", nil, fmt.Errorf("mqtt: chirpstack payload missing deviceInfo.devEui or object")
	}

	devUi = strings.ToLower(env.DeviceInfo.DevEui)
	rows = make(map[string]rawdata.DeviceRowInput, len(env.Object))
	for tsKey, rawRow := range env.Object {
		row, err := decodeDeviceRow(rawRow)
		if err != nil {
			return "", nil, fmt.Errorf("mqtt: chirpstack device %q ts %q: %w", devUi, tsKey, err)
		}
		rows[tsKey] = row
	}
	return devUi, rows, nil
}
