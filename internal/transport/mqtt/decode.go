// Package mqtt is the ingress/egress transport (spec.md §6): an MQTT client
// that decodes both accepted payload shapes into pkg/rawdata inputs and
// publishes the publish-on-save egress message, with a circuit breaker
// around the publish path per §7's IOError policy. Grounded on
// original_source/monapps/apps/mqtt_sub/management/commands/run_mqtt_sub.py
// and services/mqtt_publisher.py.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DmytroIE/Monapps-v5/pkg/alarmmap"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
	"github.com/DmytroIE/Monapps-v5/pkg/rawdata"
)

// dsRawRow is one datastream's raw JSON shape within a device's ts row:
// {"v"?: number, "e"?: {...}, "w"?: {...}, "i"?: [str,...]}.
type dsRawRow struct {
	V *float64        `json:"v"`
	E json.RawMessage `json:"e"`
	W json.RawMessage `json:"w"`
	I []string        `json:"i"`
}

// decodeAlarmEvents parses the "e"/"w" object shape {name: {"st"?: "in"|
// "out"} | {}} into alarmmap.Merge's incoming map (spec.md §6, §4.3).
func decodeAlarmEvents(raw json.RawMessage) (map[string]alarmmap.Event, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	out := make(map[string]alarmmap.Event, len(m))
	for name, body := range m {
		ev := alarmmap.Event{}
		if st, ok := body["st"]; ok {
			s := model.AlarmState(st)
			ev.St = &s
		}
		out[name] = ev
	}
	return out, nil
}

// decodeDeviceRow parses one timestamp's device payload row: reserved keys
// "e"/"w"/"i" at the device level, every other key is a datastream name.
func decodeDeviceRow(raw json.RawMessage) (rawdata.DeviceRowInput, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return rawdata.DeviceRowInput{}, err
	}

	row := rawdata.DeviceRowInput{Datastreams: make(map[string]rawdata.DsRowInput, len(generic))}
	for key, val := range generic {
		switch key {
		case "e":
			ev, err := decodeAlarmEvents(val)
			if err != nil {
				return rawdata.DeviceRowInput{}, fmt.Errorf("device errors: %w", err)
			}
			row.Errors = ev
		case "w":
			ev, err := decodeAlarmEvents(val)
			if err != nil {
				return rawdata.DeviceRowInput{}, fmt.Errorf("device warnings: %w", err)
			}
			row.Warnings = ev
		case "i":
			var infos []string
			if err := json.Unmarshal(val, &infos); err != nil {
				return rawdata.DeviceRowInput{}, fmt.Errorf("device infos: %w", err)
			}
			row.Infos = infos
		default:
			var dsRaw dsRawRow
			if err := json.Unmarshal(val, &dsRaw); err != nil {
				return rawdata.DeviceRowInput{}, fmt.Errorf("datastream %q: %w", key, err)
			}
			dsRow := rawdata.DsRowInput{Value: dsRaw.V, Infos: dsRaw.I}
			if len(dsRaw.E) > 0 {
				ev, err := decodeAlarmEvents(dsRaw.E)
				if err != nil {
					return rawdata.DeviceRowInput{}, fmt.Errorf("datastream %q errors: %w", key, err)
				}
				dsRow.Errors = ev
			}
			if len(dsRaw.W) > 0 {
				ev, err := decodeAlarmEvents(dsRaw.W)
				if err != nil {
					return rawdata.DeviceRowInput{}, fmt.Errorf("datastream %q warnings: %w", key, err)
				}
				dsRow.Warnings = ev
			}
			row.Datastreams[key] = dsRow
		}
	}
	return row, nil
}

// DecodeGeneric parses the generic ESF-style ingress shape (spec.md §6.1):
// {"<dev_ui>": {"<ts_ms_decimal_string>": {...}, ...}, ...}. dev_ui keys
// are lowercased before lookup, matching run_mqtt_sub.py's on_message.
func DecodeGeneric(raw []byte) (map[string]map[string]rawdata.DeviceRowInput, error) {
	var top map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("mqtt: decode generic payload: %w", err)
	}

	out := make(map[string]map[string]rawdata.DeviceRowInput, len(top))
	for devUi, tsRows := range top {
		devUi = strings.ToLower(devUi)
		rows := make(map[string]rawdata.DeviceRowInput, len(tsRows))
		for tsKey, rawRow := range tsRows {
			row, err := decodeDeviceRow(rawRow)
			if err != nil {
				return nil, fmt.Errorf("mqtt: device %q ts %q: %w", devUi, tsKey, err)
			}
			rows[tsKey] = row
		}
		out[devUi] = rows
	}
	return out, nil
}
