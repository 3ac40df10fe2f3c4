package inspire

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Client is the interface definition as used by this library, the
// interface is primarily to allow mocking tests.
//
// The Inspire API is a single HTTP endpoint returning XML documents.
// Read operations go out as GET query parameters, authentication and
// control operations as form-encoded POST bodies; this split is a
// protocol contract, not a style choice. Every operation authenticates
// lazily, paces itself to one request per second and retries exactly
// once with a fresh session key when the server reports the current
// one expired.
type Client interface {
	// Connect performs the authentication call and stores the returned
	// session key. Operations call it lazily, so using it directly is
	// only needed to validate credentials up front.
	Connect() error
	// Close releases the HTTP client if this client created it. An
	// externally supplied HTTP client is never touched.
	Close() error
	// Connected reports whether a session key is currently held.
	Connected() bool

	// GetDevices returns the minimal listing record of every device on
	// the account.
	GetDevices() ([]Record, error)
	// GetDeviceInformation returns the detailed record of one device,
	// with one level of nested groups flattened into the top level.
	GetDeviceInformation(deviceId string) (Record, error)
	// CheckConnection reports whether the unit is reachable. It is
	// advisory: authentication and device classifications degrade to
	// false instead of propagating.
	CheckConnection(deviceId string) (bool, error)
	// GetSummary returns the account summary. A device-error response
	// yields an empty summary, the vendor misreports this endpoint for
	// some accounts.
	GetSummary() (*Summary, error)
	// GetConfirmations returns the pending confirmation records of a
	// device.
	GetConfirmations(deviceId string) ([]Record, error)
	// GetLog returns the device log, empty when the server reports no
	// log data.
	GetLog(deviceId string) ([]Record, error)

	// SetTemperature sets the target temperature in degrees. The value
	// must be within [10, 30] and is rounded to the nearest 0.5 before
	// transmission.
	SetTemperature(deviceId string, temperature float64) error
	// SetFunction sets the operating mode.
	SetFunction(deviceId string, function Function) error
	// SetTime sets the device clock. The value is an opaque
	// passthrough.
	SetTime(deviceId string, timeValue string) error
	// SetProgramTime updates one slot of a program schedule.
	SetProgramTime(deviceId string, program int, day int, period int, timeValue string, temperature float64) error
	// SetScheduledStart schedules a one-off heating start.
	SetScheduledStart(deviceId string, datetime string) error
	// CancelScheduledStart cancels a previously scheduled start.
	CancelScheduledStart(deviceId string) error
	// SetAdvance advances the running program to its next period.
	SetAdvance(deviceId string) error
	// SetProgramType sets the program type. The value is an opaque
	// passthrough.
	SetProgramType(deviceId string, programType string) error
}

// client implements the Inspire interface.
type client struct {
	options    ClientOptions
	httpClient *http.Client
	ownsHttp   bool
	limiter    *rate.Limiter

	// mu serializes every operation: the session key and the request
	// pacing are single-owner state and the retry-after-reconnect
	// sequence must not interleave with other calls.
	mu         sync.Mutex
	sessionKey string
}

// NewClient will create an Inspire API client with all the options
// specified in the provided ClientOptions. No network activity happens
// until the first operation.
func NewClient(options *ClientOptions) Client {
	httpClient := options.HttpClient
	ownsHttp := false
	if httpClient == nil {
		httpClient = &http.Client{}
		ownsHttp = true
	}
	interval := options.MinRequestInterval
	if interval <= 0 {
		interval = MinRequestInterval
	}
	return &client{
		options:    *options,
		httpClient: httpClient,
		ownsHttp:   ownsHttp,
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
	}
}

func (c *client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connect()
}

func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionKey = ""
	if c.ownsHttp {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}

func (c *client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionKey != ""
}

// connect issues the authentication POST and stores the session key.
// Callers must hold mu.
func (c *client) connect() error {
	params := url.Values{}
	params.Set("action", actionConnect)
	params.Set("apikey", c.options.ApiKey)
	params.Set("username", c.options.Username)
	params.Set("password", c.options.Password)

	root, err := c.request(http.MethodPost, params)
	if err != nil {
		return err
	}
	keyElem := root.find("key")
	if keyElem == nil || keyElem.text() == "" {
		return newError(KindAPI, "no session key returned from connect")
	}
	c.sessionKey = keyElem.text()
	log.Debug().Msg("Connected to Inspire API, session key obtained.")
	return nil
}

// ensureConnected authenticates if no session key is held. Callers
// must hold mu.
func (c *client) ensureConnected() error {
	if c.sessionKey == "" {
		return c.connect()
	}
	return nil
}

// authedRequest runs one operation against the API: ensure a session,
// send, and on an authentication classification reconnect once and
// replay the request with the fresh key. A second authentication
// failure propagates unmodified, so permanently invalid credentials
// cannot loop. Callers must hold mu.
func (c *client) authedRequest(method string, action string, fields url.Values) (*element, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}
	root, err := c.send(method, action, fields)
	if err != nil && IsKind(err, KindAuth) {
		log.Debug().Str("action", action).Msg("Session rejected, reconnecting once.")
		if err := c.connect(); err != nil {
			return nil, err
		}
		return c.send(method, action, fields)
	}
	return root, err
}

// send builds the parameter set common to all authenticated
// operations and performs the request. The session key is read at send
// time so a reconnect in between is picked up by the replay.
func (c *client) send(method string, action string, fields url.Values) (*element, error) {
	params := url.Values{}
	params.Set("action", action)
	params.Set("apikey", c.options.ApiKey)
	params.Set("key", c.sessionKey)
	for name, values := range fields {
		for _, value := range values {
			params.Add(name, value)
		}
	}
	return c.request(method, params)
}

// request performs one paced HTTP call and returns the parsed
// document after status classification.
func (c *client) request(method string, params url.Values) (*element, error) {
	// The floor applies to every call including the reconnect replay,
	// Wait only blocks for the remainder of the current interval.
	if err := c.limiter.Wait(context.Background()); err != nil {
		return nil, wrapError(KindConnection, "request pacing interrupted", err)
	}

	action := params.Get("action")
	requestsTotal.WithLabelValues(action).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), c.options.RequestTimeout)
	defer cancel()

	var req *http.Request
	var err error
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.options.BaseUrl, strings.NewReader(params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.options.BaseUrl+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, c.fail(wrapError(KindConnection, "error building the request", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(wrapError(KindConnection, "error doing the request", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(wrapError(KindConnection, "error reading the response", err))
	}
	if resp.StatusCode >= 300 {
		return nil, c.fail(newError(KindConnection, fmt.Sprintf("error response from server, httpStatus=%d", resp.StatusCode)))
	}

	log.Debug().
		Str("action", action).
		Str("status", resp.Status).
		Msg("Response received")
	log.Trace().
		Str("body", string(body)).
		Msg("Response body")

	root, err := parseDocument(body)
	if err != nil {
		// The raw body goes to the log for diagnosis, never into the
		// error text.
		log.Error().Err(err).Str("body", string(body)).Msg("Failed to parse XML response")
		return nil, c.fail(wrapError(KindAPI, "invalid XML response", err))
	}

	if classified := c.classify(root); classified != nil {
		return nil, c.fail(classified)
	}
	return root, nil
}

// classify inspects the optional status envelope and maps the known
// codes onto the error taxonomy. Unknown codes are logged and let
// through so that new vendor codes do not break the pipeline.
func (c *client) classify(root *element) *Error {
	code, message, ok := root.statusCode()
	if !ok {
		return nil
	}
	switch code {
	case StatusInvalidLogin, StatusUserNotValidated:
		return newStatusError(KindAuth, code, message)
	case StatusInvalidKey:
		// The server invalidated the session, clear it so the next
		// attempt authenticates again.
		c.sessionKey = ""
		return newStatusError(KindAuth, code, message)
	case StatusGatewayNotConnected, StatusDeviceNotConnected:
		return newStatusError(KindDevice, code, message)
	case StatusInvalidDeviceId, StatusSpecifyDeviceId:
		return newStatusError(KindDevice, code, message)
	case StatusRateLimit:
		return newStatusError(KindRateLimit, code, message)
	case StatusUnitActive, StatusMessageSent, StatusNoLogData:
		// Success and no-data markers, not errors.
		return nil
	default:
		log.Warn().Int("code", code).Str("message", message).Msg("Unknown API status code")
		return nil
	}
}

func (c *client) fail(err *Error) *Error {
	errorsTotal.WithLabelValues(err.Kind.String()).Inc()
	return err
}

func (c *client) GetDevices() ([]Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	root, err := c.authedRequest(http.MethodGet, actionGetDevices, nil)
	if err != nil {
		return nil, err
	}
	devices := []Record{}
	if container := root.find("devices"); container != nil {
		for i := range container.Children {
			child := &container.Children[i]
			if strings.EqualFold(child.XMLName.Local, "device") {
				devices = append(devices, child.record())
			}
		}
	}
	return devices, nil
}

func (c *client) GetDeviceInformation(deviceId string) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	root, err := c.authedRequest(http.MethodGet, actionGetDeviceInfo, deviceParams(deviceId))
	if err != nil {
		return nil, err
	}
	info := root.find("Device_Information")
	if info == nil {
		return Record{}, nil
	}
	return info.flattened(), nil
}

func (c *client) CheckConnection(deviceId string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	root, err := c.authedRequest(http.MethodGet, actionCheckConnection, deviceParams(deviceId))
	if err != nil {
		// Advisory operation used for liveness polling: degrade to
		// "not connected" on auth and device classifications.
		if IsKind(err, KindAuth) || IsKind(err, KindDevice) {
			return false, nil
		}
		return false, err
	}
	code, _, ok := root.statusCode()
	return ok && code == StatusUnitActive, nil
}

func (c *client) GetSummary() (*Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	root, err := c.authedRequest(http.MethodGet, actionGetSummary, nil)
	if err != nil {
		if IsKind(err, KindDevice) {
			// Known vendor quirk: some accounts get "Invalid Device
			// ID" here. Treat as no summary available.
			log.Debug().Err(err).Msg("Summary unavailable for this account")
			return &Summary{Fields: Record{}, Groups: map[string][]Record{}}, nil
		}
		return nil, err
	}
	container := root.find("summary")
	if container == nil {
		return &Summary{Fields: Record{}, Groups: map[string][]Record{}}, nil
	}
	return container.summary(), nil
}

func (c *client) GetConfirmations(deviceId string) ([]Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	root, err := c.authedRequest(http.MethodGet, actionGetConfirmations, deviceParams(deviceId))
	if err != nil {
		return nil, err
	}
	container := root.find("confirmations")
	if container == nil {
		return []Record{}, nil
	}
	return container.records(), nil
}

func (c *client) GetLog(deviceId string) ([]Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	root, err := c.authedRequest(http.MethodGet, actionGetLog, deviceParams(deviceId))
	if err != nil {
		return nil, err
	}
	// A "no log data" status passes classification and the document
	// then carries no log element: the result is an empty slice, not
	// an error.
	container := root.find("log")
	if container == nil {
		return []Record{}, nil
	}
	return container.records(), nil
}

func (c *client) SetTemperature(deviceId string, temperature float64) error {
	if temperature < MinTemperature || temperature > MaxTemperature {
		return ErrTemperatureOutOfRange
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendMessage(deviceId, messageSetSetPoint, formatTemperature(roundTemperature(temperature)), nil)
}

func (c *client) SetFunction(deviceId string, function Function) error {
	if !function.Valid() {
		return ErrInvalidFunction
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendMessage(deviceId, messageSetFunction, strconv.Itoa(int(function)), nil)
}

func (c *client) SetTime(deviceId string, timeValue string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendMessage(deviceId, messageSetTime, timeValue, nil)
}

func (c *client) SetProgramTime(deviceId string, program int, day int, period int, timeValue string, temperature float64) error {
	if temperature < MinTemperature || temperature > MaxTemperature {
		return ErrTemperatureOutOfRange
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// The five slot fields travel as one comma-joined value, in this
	// fixed order.
	value := fmt.Sprintf("%d,%d,%d,%s,%s",
		program, day, period, timeValue, formatTemperature(roundTemperature(temperature)))
	return c.sendMessage(deviceId, messageSetProgramTime, value, nil)
}

func (c *client) SetScheduledStart(deviceId string, datetime string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendMessage(deviceId, messageSetStartTime, datetime, nil)
}

func (c *client) CancelScheduledStart(deviceId string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendMessage(deviceId, messageCancelStartTime, "", nil)
}

func (c *client) SetAdvance(deviceId string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendMessage(deviceId, messageSetAdvance, "", nil)
}

func (c *client) SetProgramType(deviceId string, programType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendMessage(deviceId, messageSetPgmType, programType, nil)
}

// sendMessage is the shared builder behind every control operation: a
// message carries the device id, a message_type identifying the
// control and an optional value. Extra named fields can be merged in
// for controls needing more than one payload field. Callers must hold
// mu.
func (c *client) sendMessage(deviceId string, messageType string, value string, extra url.Values) error {
	fields := url.Values{}
	fields.Set("device_id", deviceId)
	fields.Set("message_type", messageType)
	if value != "" {
		fields.Set("value", value)
	}
	for name, values := range extra {
		for _, v := range values {
			fields.Add(name, v)
		}
	}
	_, err := c.authedRequest(http.MethodPost, actionSendMessage, fields)
	return err
}

func deviceParams(deviceId string) url.Values {
	params := url.Values{}
	params.Set("device_id", deviceId)
	return params
}

// roundTemperature rounds to the nearest half degree, ties away from
// zero.
func roundTemperature(temperature float64) float64 {
	return math.Round(temperature*2) / 2
}

func formatTemperature(temperature float64) string {
	return strconv.FormatFloat(temperature, 'f', 1, 64)
}
