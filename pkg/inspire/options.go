package inspire

import (
	"net/http"
	"time"
)

// ClientOptions contains configurable options for an Inspire API
// client.
type ClientOptions struct {
	BaseUrl        string
	ApiKey         string
	Username       string
	Password       string
	RequestTimeout time.Duration

	// MinRequestInterval is the floor enforced between request starts.
	// The API requires one second; lowering it is only sensible
	// against a test server.
	MinRequestInterval time.Duration

	// HttpClient, when set, is used for all requests and its lifetime
	// stays with the caller: Close() will not touch it. When nil the
	// client creates and owns one.
	HttpClient *http.Client
}

// NewClientOptions will create a new ClientOptions type with some
// default values.
//
//	BaseUrl: DefaultBaseUrl
//	RequestTimeout: 30 seconds
//	MinRequestInterval: 1 second
func NewClientOptions() *ClientOptions {
	return &ClientOptions{
		BaseUrl:            DefaultBaseUrl,
		RequestTimeout:     DefaultRequestTimeout,
		MinRequestInterval: MinRequestInterval,
	}
}

// SetMinRequestInterval will set the floor between request starts.
func (o *ClientOptions) SetMinRequestInterval(d time.Duration) *ClientOptions {
	o.MinRequestInterval = d
	return o
}

// SetBaseUrl will set the endpoint of the Inspire API. Mostly useful
// for tests against a local server.
func (o *ClientOptions) SetBaseUrl(u string) *ClientOptions {
	o.BaseUrl = u
	return o
}

// SetApiKey will set the vendor-issued API key sent with every
// request.
func (o *ClientOptions) SetApiKey(k string) *ClientOptions {
	o.ApiKey = k
	return o
}

// SetUsername will set the account username used on connect.
func (o *ClientOptions) SetUsername(u string) *ClientOptions {
	o.Username = u
	return o
}

// SetPassword will set the account password used on connect.
func (o *ClientOptions) SetPassword(p string) *ClientOptions {
	o.Password = p
	return o
}

// SetRequestTimeout will set the upper bound on the duration of a
// single request.
func (o *ClientOptions) SetRequestTimeout(d time.Duration) *ClientOptions {
	o.RequestTimeout = d
	return o
}

// SetHttpClient will set an externally owned HTTP client to be used
// for all requests.
func (o *ClientOptions) SetHttpClient(c *http.Client) *ClientOptions {
	o.HttpClient = c
	return o
}
