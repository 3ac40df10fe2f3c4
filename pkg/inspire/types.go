package inspire

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Record is a flat snapshot of vendor-reported values. There is no
// schema: the vendor's tag names pass through verbatim, so different
// unit models expose different keys. Callers own returned Records;
// the client keeps no reference to them.
type Record map[string]string

// DeviceId returns the device identifier of a listing or merged
// record, whichever of the two names the vendor used.
func (r Record) DeviceId() string {
	if id, ok := r["device_id"]; ok && id != "" {
		return id
	}
	return r["id"]
}

// Name returns the human-readable device name, falling back to the
// device id.
func (r Record) Name() string {
	if name, ok := r["name"]; ok && name != "" {
		return name
	}
	return r.DeviceId()
}

// Merge returns a new Record with other's keys written over r's.
func (r Record) Merge(other Record) Record {
	merged := Record{}
	for k, v := range r {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// Summary is the account-level report. Scalar children of the summary
// element land in Fields; children that carry a sequence of repeated
// sub-elements are preserved as ordered groups instead of being
// flattened.
type Summary struct {
	Fields Record
	Groups map[string][]Record
}

// Empty reports whether the summary carries no data at all.
func (s *Summary) Empty() bool {
	return len(s.Fields) == 0 && len(s.Groups) == 0
}

// DeviceState is the typed projection of a merged device Record used
// by the bridge modules. Only the well-known fields are mapped;
// everything else stays available on the Record itself.
type DeviceState struct {
	DeviceId           string  `mapstructure:"device_id"`
	Name               string  `mapstructure:"name"`
	UnitType           string  `mapstructure:"Unit_Type"`
	UnitModel          string  `mapstructure:"Unit_Model"`
	CurrentTemperature float64 `mapstructure:"Current_Temperature"`
	OnTemperature      float64 `mapstructure:"On_Temperature"`
	ProfileTemperature float64 `mapstructure:"Profile_Temperature"`
	CurrentFunction    string  `mapstructure:"Current_Function"`
	Battery            string  `mapstructure:"Battery"`
	BatteryVoltage     float64 `mapstructure:"Battery_Voltage"`
}

// DecodeRecord decodes a Record into the given structure using weak
// typing, so numeric vendor strings land in float fields.
func DecodeRecord[T any](record Record) (*T, error) {
	res := new(T)
	config := &mapstructure.DecoderConfig{
		Result:           res,
		WeaklyTypedInput: true,
		ErrorUnset:       false,
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return nil, fmt.Errorf("error building decoder: %w", err)
	}
	// Empty vendor values would fail the string to number conversion,
	// leave those fields at their zero value instead.
	present := map[string]string{}
	for k, v := range record {
		if v != "" {
			present[k] = v
		}
	}
	if err := decoder.Decode(present); err != nil {
		return nil, fmt.Errorf("error decoding record: %w", err)
	}
	return res, nil
}
