package inspire

import "time"

// DefaultBaseUrl is the production endpoint of the Inspire Home
// Automation API. Every operation goes through this single URL, the
// "action" parameter selects the operation.
const DefaultBaseUrl = "https://www.inspirehomeautomation.co.uk/client/api1_4/api.php"

const (
	// DefaultRequestTimeout bounds every HTTP request.
	DefaultRequestTimeout = 30 * time.Second
	// MinRequestInterval is the floor the API enforces between request
	// starts. Going faster gets the account throttled server side.
	MinRequestInterval = time.Second
)

// Temperature constraints for thermostat set points.
const (
	MinTemperature  float64 = 10.0
	MaxTemperature  float64 = 30.0
	TemperatureStep float64 = 0.5
)

// Status codes returned in the <status><code> node of API responses.
const (
	StatusInvalidLogin        = 1
	StatusUserNotValidated    = 2
	StatusInvalidKey          = 3
	StatusGatewayNotConnected = 4
	StatusDeviceNotConnected  = 5
	StatusInvalidDeviceId     = 6
	StatusSpecifyDeviceId     = 8
	StatusRateLimit           = 11
	StatusUnitActive          = 13
	StatusMessageSent         = 14
	StatusNoLogData           = 23
)

// Actions understood by the API endpoint.
const (
	actionConnect          = "connect"
	actionGetDevices       = "get_devices"
	actionGetDeviceInfo    = "get_device_information"
	actionCheckConnection  = "check_connection"
	actionGetSummary       = "get_summary"
	actionGetConfirmations = "get_confirmations"
	actionGetLog           = "get_log"
	actionSendMessage      = "send_message"
)

// Message types for the send_message action.
const (
	messageSetSetPoint     = "set_set_point"
	messageSetFunction     = "set_function"
	messageSetTime         = "set_time"
	messageSetProgramTime  = "set_program_time"
	messageSetStartTime    = "set_start_time"
	messageCancelStartTime = "cancel_start_time"
	messageSetPgmType      = "set_pgmtype"
	messageSetAdvance      = "set_advance"
)

// Function is a thermostat operating mode as transmitted in the
// set_function message.
type Function int

const (
	FunctionOff Function = iota + 1
	FunctionProgram1
	FunctionProgram2
	FunctionBothPrograms
	FunctionOn
	FunctionBoost
)

// Valid reports whether the function value is one the API accepts.
func (f Function) Valid() bool {
	return f >= FunctionOff && f <= FunctionBoost
}

func (f Function) String() string {
	switch f {
	case FunctionOff:
		return "Off"
	case FunctionProgram1:
		return "Program1"
	case FunctionProgram2:
		return "Program2"
	case FunctionBothPrograms:
		return "Both"
	case FunctionOn:
		return "On"
	case FunctionBoost:
		return "Boost"
	default:
		return "Unknown"
	}
}
