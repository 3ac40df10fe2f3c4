package inspire

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const connectResponse = `<response><key>session-key-1</key></response>`

func statusResponse(code int, message string) string {
	return fmt.Sprintf(
		`<response><status><code>%d</code><message>%s</message></status></response>`,
		code, message)
}

type recordedRequest struct {
	Method string
	Action string
	Params url.Values
	Time   time.Time
}

// fakeAPI is a canned-XML stand-in for the vendor endpoint. The
// handler receives the action and the merged query/form parameters
// and returns the response document.
type fakeAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(action string, params url.Values) string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	action := r.Form.Get("action")

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Action: action,
		Params: r.Form,
		Time:   time.Now(),
	})
	handler := f.handler
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(handler(action, r.Form)))
}

func (f *fakeAPI) requestsFor(action string) []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []recordedRequest{}
	for _, req := range f.requests {
		if req.Action == action {
			out = append(out, req)
		}
	}
	return out
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestClient(t *testing.T, handler func(action string, params url.Values) string) (Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{handler: handler}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	options := NewClientOptions().
		SetBaseUrl(server.URL).
		SetApiKey("test-api-key").
		SetUsername("user@example.com").
		SetPassword("secret").
		SetMinRequestInterval(time.Millisecond)
	client := NewClient(options)
	t.Cleanup(func() { _ = client.Close() })
	return client, api
}

func okHandler(response string) func(string, url.Values) string {
	return func(action string, _ url.Values) string {
		if action == actionConnect {
			return connectResponse
		}
		return response
	}
}

func TestConnectStoresSessionKey(t *testing.T) {
	client, api := newTestClient(t, okHandler(""))

	require.NoError(t, client.Connect())
	assert.True(t, client.Connected())

	connects := api.requestsFor(actionConnect)
	require.Len(t, connects, 1)
	assert.Equal(t, http.MethodPost, connects[0].Method, "connect must be a form POST")
	assert.Equal(t, "test-api-key", connects[0].Params.Get("apikey"))
	assert.Equal(t, "user@example.com", connects[0].Params.Get("username"))
	assert.Equal(t, "secret", connects[0].Params.Get("password"))
}

func TestConnectWithoutKeyIsAPIError(t *testing.T) {
	client, _ := newTestClient(t, func(string, url.Values) string {
		return `<response><message>hello</message></response>`
	})

	err := client.Connect()
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAPI))
	assert.False(t, client.Connected())
}

func TestGetDevices(t *testing.T) {
	client, api := newTestClient(t, okHandler(
		`<response><devices>
			<device><id>100</id><name>Hall</name><type>thermostat</type></device>
			<device><id>101</id><name>Kitchen</name><type>thermostat</type></device>
		</devices></response>`))

	devices, err := client.GetDevices()
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "100", devices[0]["id"])
	assert.Equal(t, "Hall", devices[0]["name"])
	assert.Equal(t, "Kitchen", devices[1].Name())

	lists := api.requestsFor(actionGetDevices)
	require.Len(t, lists, 1)
	assert.Equal(t, http.MethodGet, lists[0].Method, "read operations must use query parameters")
	assert.Equal(t, "session-key-1", lists[0].Params.Get("key"))
}

func TestGetDeviceInformationFlattensOneLevel(t *testing.T) {
	client, api := newTestClient(t, okHandler(
		`<response><Device_Information>
			<Current_Temperature>21.5</Current_Temperature>
			<Current_Function>Program1</Current_Function>
			<Set_Temperatures>
				<On_Temperature>22.0</On_Temperature>
				<Off_Temperature>12.0</Off_Temperature>
			</Set_Temperatures>
		</Device_Information></response>`))

	info, err := client.GetDeviceInformation("100")
	require.NoError(t, err)
	assert.Equal(t, "21.5", info["Current_Temperature"])
	assert.Equal(t, "22.0", info["On_Temperature"], "nested group values must merge to the top level")
	assert.Equal(t, "12.0", info["Off_Temperature"])
	assert.NotContains(t, info, "Set_Temperatures")

	infos := api.requestsFor(actionGetDeviceInfo)
	require.Len(t, infos, 1)
	assert.Equal(t, "100", infos[0].Params.Get("device_id"))
}

func TestAuthRetryReplaysWithFreshKey(t *testing.T) {
	connects := 0
	client, api := newTestClient(t, func(action string, params url.Values) string {
		switch action {
		case actionConnect:
			connects++
			if connects == 1 {
				return `<response><key>stale-key</key></response>`
			}
			return `<response><key>fresh-key</key></response>`
		case actionGetDevices:
			if params.Get("key") == "stale-key" {
				return statusResponse(StatusInvalidKey, "Invalid Key")
			}
			return `<response><devices><device><id>100</id></device></devices></response>`
		}
		return ""
	})

	devices, err := client.GetDevices()
	require.NoError(t, err)
	require.Len(t, devices, 1)

	assert.Equal(t, 2, connects, "expired session must trigger exactly one reconnect")
	lists := api.requestsFor(actionGetDevices)
	require.Len(t, lists, 2)
	assert.Equal(t, "stale-key", lists[0].Params.Get("key"))
	assert.Equal(t, "fresh-key", lists[1].Params.Get("key"))
}

func TestAuthErrorSurfacesAfterSecondFailure(t *testing.T) {
	client, api := newTestClient(t, func(action string, _ url.Values) string {
		if action == actionConnect {
			return connectResponse
		}
		return statusResponse(StatusInvalidKey, "Invalid Key")
	})

	_, err := client.GetDevices()
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuth))
	assert.False(t, client.Connected(), "invalid key status must clear the session")
	assert.Len(t, api.requestsFor(actionGetDevices), 2, "exactly one retry, never more")
}

func TestInvalidLoginSurfacesWithoutRetry(t *testing.T) {
	client, api := newTestClient(t, func(string, url.Values) string {
		return statusResponse(StatusInvalidLogin, "Invalid Login")
	})

	_, err := client.GetDevices()
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuth))
	// The failure happened during connect itself, the operation was
	// never issued.
	assert.Empty(t, api.requestsFor(actionGetDevices))
}

func TestCheckConnection(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		connected bool
	}{
		{"unit active", statusResponse(StatusUnitActive, "Unit Active"), true},
		{"message sent", statusResponse(StatusMessageSent, "Message Sent"), false},
		{"device not connected", statusResponse(StatusDeviceNotConnected, "Not Connected"), false},
		{"invalid device id", statusResponse(StatusInvalidDeviceId, "Invalid Device ID"), false},
		{"no status", `<response></response>`, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client, _ := newTestClient(t, okHandler(test.response))
			connected, err := client.CheckConnection("100")
			require.NoError(t, err)
			assert.Equal(t, test.connected, connected)
		})
	}
}

func TestGetSummary(t *testing.T) {
	client, _ := newTestClient(t, okHandler(
		`<response><summary>
			<Account_Name>Home</Account_Name>
			<Credit>12.50</Credit>
			<entries>
				<entry><date>2026-01-01</date><event>boost</event></entry>
				<entry><date>2026-01-02</date><event>off</event></entry>
				<entry><date>2026-01-03</date><event>on</event></entry>
			</entries>
		</summary></response>`))

	summary, err := client.GetSummary()
	require.NoError(t, err)
	assert.Equal(t, "Home", summary.Fields["Account_Name"])
	assert.Equal(t, "12.50", summary.Fields["Credit"])
	require.Len(t, summary.Groups["entries"], 3, "repeated sub-elements must stay a sequence")
	assert.Equal(t, "boost", summary.Groups["entries"][0]["event"])
	assert.NotContains(t, summary.Fields, "entries")
}

func TestGetSummaryDeviceErrorMeansEmpty(t *testing.T) {
	client, _ := newTestClient(t, okHandler(statusResponse(StatusInvalidDeviceId, "Invalid Device ID")))

	summary, err := client.GetSummary()
	require.NoError(t, err)
	assert.True(t, summary.Empty())
}

func TestGetLogNoDataIsEmptyNotError(t *testing.T) {
	client, _ := newTestClient(t, okHandler(statusResponse(StatusNoLogData, "No Log Data")))

	entries, err := client.GetLog("100")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetLogEntries(t *testing.T) {
	client, _ := newTestClient(t, okHandler(
		`<response><log>
			<entry><time>08:00</time><temperature>19.0</temperature></entry>
			<entry><time>09:00</time><temperature>20.5</temperature></entry>
		</log></response>`))

	entries, err := client.GetLog("100")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "20.5", entries[1]["temperature"])
}

func TestGetConfirmations(t *testing.T) {
	client, _ := newTestClient(t, okHandler(
		`<response><confirmations>
			<confirmation><message_type>set_set_point</message_type><state>pending</state></confirmation>
		</confirmations></response>`))

	confirmations, err := client.GetConfirmations("100")
	require.NoError(t, err)
	require.Len(t, confirmations, 1)
	assert.Equal(t, "set_set_point", confirmations[0]["message_type"])
}

func TestSetTemperatureRoundsToHalfDegrees(t *testing.T) {
	tests := []struct {
		input       float64
		transmitted string
	}{
		{21.5, "21.5"},
		{21.26, "21.5"},
		{21.24, "21.0"},
		{21.25, "21.5"}, // ties away from zero
		{10.0, "10.0"},
		{30.0, "30.0"},
	}
	for _, test := range tests {
		client, api := newTestClient(t, okHandler(statusResponse(StatusMessageSent, "Message Sent")))
		require.NoError(t, client.SetTemperature("100", test.input))

		messages := api.requestsFor(actionSendMessage)
		require.Len(t, messages, 1)
		assert.Equal(t, http.MethodPost, messages[0].Method, "control operations must use a form body")
		assert.Equal(t, "set_set_point", messages[0].Params.Get("message_type"))
		assert.Equal(t, test.transmitted, messages[0].Params.Get("value"), "input %v", test.input)
	}
}

func TestSetTemperatureOutOfRangeNeverTouchesNetwork(t *testing.T) {
	for _, temperature := range []float64{9.9, 30.1, -5, 100} {
		client, api := newTestClient(t, okHandler(""))
		err := client.SetTemperature("100", temperature)
		assert.ErrorIs(t, err, ErrTemperatureOutOfRange)
		assert.Zero(t, api.count(), "validation failures must be local")
	}
}

func TestSetFunction(t *testing.T) {
	client, api := newTestClient(t, okHandler(statusResponse(StatusMessageSent, "Message Sent")))
	require.NoError(t, client.SetFunction("100", FunctionBothPrograms))

	messages := api.requestsFor(actionSendMessage)
	require.Len(t, messages, 1)
	assert.Equal(t, "set_function", messages[0].Params.Get("message_type"))
	assert.Equal(t, "4", messages[0].Params.Get("value"))
}

func TestSetFunctionInvalidNeverTouchesNetwork(t *testing.T) {
	for _, function := range []Function{0, 7, -1} {
		client, api := newTestClient(t, okHandler(""))
		err := client.SetFunction("100", function)
		assert.ErrorIs(t, err, ErrInvalidFunction)
		assert.Zero(t, api.count())
	}
}

func TestSetProgramTimeJoinsFields(t *testing.T) {
	client, api := newTestClient(t, okHandler(statusResponse(StatusMessageSent, "Message Sent")))
	require.NoError(t, client.SetProgramTime("100", 1, 3, 2, "07:30", 19.25))

	messages := api.requestsFor(actionSendMessage)
	require.Len(t, messages, 1)
	assert.Equal(t, "set_program_time", messages[0].Params.Get("message_type"))
	assert.Equal(t, "1,3,2,07:30,19.5", messages[0].Params.Get("value"))
}

func TestControlMessages(t *testing.T) {
	tests := []struct {
		name        string
		call        func(Client) error
		messageType string
		value       string
	}{
		{"sync time", func(c Client) error { return c.SetTime("100", "12:34") }, "set_time", "12:34"},
		{"schedule start", func(c Client) error { return c.SetScheduledStart("100", "2026-09-01 06:00") }, "set_start_time", "2026-09-01 06:00"},
		{"cancel start", func(c Client) error { return c.CancelScheduledStart("100") }, "cancel_start_time", ""},
		{"advance", func(c Client) error { return c.SetAdvance("100") }, "set_advance", ""},
		{"program type", func(c Client) error { return c.SetProgramType("100", "5_2") }, "set_pgmtype", "5_2"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client, api := newTestClient(t, okHandler(statusResponse(StatusMessageSent, "Message Sent")))
			require.NoError(t, test.call(client))

			messages := api.requestsFor(actionSendMessage)
			require.Len(t, messages, 1)
			assert.Equal(t, "100", messages[0].Params.Get("device_id"))
			assert.Equal(t, test.messageType, messages[0].Params.Get("message_type"))
			assert.Equal(t, test.value, messages[0].Params.Get("value"))
		})
	}
}

func TestRateLimitErrorSurfaces(t *testing.T) {
	client, _ := newTestClient(t, okHandler(statusResponse(StatusRateLimit, "Rate limit exceeded")))

	_, err := client.GetDevices()
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRateLimit))
}

func TestUnknownStatusCodeIsForwardCompatible(t *testing.T) {
	client, _ := newTestClient(t, okHandler(
		`<response><status><code>99</code><message>Future code</message></status>`+
			`<devices><device><id>100</id></device></devices></response>`))

	devices, err := client.GetDevices()
	require.NoError(t, err, "unknown codes must not break the pipeline")
	assert.Len(t, devices, 1)
}

func TestMalformedXMLIsAPIError(t *testing.T) {
	client, _ := newTestClient(t, okHandler(`<response><devices>`))

	_, err := client.GetDevices()
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAPI))
	assert.NotContains(t, err.Error(), "<response>", "raw body must not leak into the error text")
}

func TestRequestPacingEnforcesFloor(t *testing.T) {
	api := &fakeAPI{handler: okHandler(statusResponse(StatusUnitActive, "Unit Active"))}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	interval := 300 * time.Millisecond
	client := NewClient(NewClientOptions().
		SetBaseUrl(server.URL).
		SetApiKey("k").
		SetUsername("u").
		SetPassword("p").
		SetMinRequestInterval(interval))
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Connect())
	_, err := client.CheckConnection("100")
	require.NoError(t, err)
	_, err = client.CheckConnection("100")
	require.NoError(t, err)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.requests, 3)
	for i := 1; i < len(api.requests); i++ {
		gap := api.requests[i].Time.Sub(api.requests[i-1].Time)
		// Allow a small scheduling slack below the configured floor.
		assert.GreaterOrEqual(t, gap, interval-50*time.Millisecond,
			"request %d started %v after the previous one", i, gap)
	}
}
