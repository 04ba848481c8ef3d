package service_test

import (
	"context"
	"net"
	"sync"
	"time"

	. "github.com/onsi/gomega"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/pageinfo/pageinfo/internal/capture"
)

const samplePage = `<!DOCTYPE html><html lang="en"><head><title>Sample Shop</title>
<meta name="description" content="Things for sale"></head><body><h1>Shop</h1></body></html>`

type fakeCapturer struct {
	mu      sync.Mutex
	err     error
	block   chan struct{}
	settles []time.Duration
}

func (f *fakeCapturer) Capture(ctx context.Context, url string) (*capture.Result, error) {
	return f.CaptureWithSettle(ctx, url, 0)
}

func (f *fakeCapturer) CaptureWithSettle(ctx context.Context, url string, settle time.Duration) (*capture.Result, error) {
	f.mu.Lock()
	f.settles = append(f.settles, settle)
	block, err := f.block, f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	events := []capture.Event{
		capture.NewRequestEvent("1", 20, capture.RequestPayload{URL: url, Method: "GET", ResourceType: "Document"}),
		capture.NewResponseEvent("1", 20.2, capture.ResponsePayload{URL: url, Status: 200, MimeType: "text/html", EncodedDataLength: 3000}),
		capture.NewRequestEvent("2", 20.3, capture.RequestPayload{URL: "https://cdn.other.net/app.js", Method: "GET", ResourceType: "Script"}),
		capture.NewResponseEvent("2", 20.4, capture.ResponsePayload{URL: "https://cdn.other.net/app.js", Status: 200, EncodedDataLength: 500}),
	}
	return &capture.Result{
		URL:       url,
		Content:   samplePage,
		Report:    capture.NewAnalyzer(url).Analyze(events, 400*time.Millisecond),
		StartedAt: time.Now(),
		Events:    events,
	}, nil
}

func (f *fakeCapturer) lastSettle() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.settles) == 0 {
		return -1
	}
	return f.settles[len(f.settles)-1]
}

type fakeBrowser struct {
	alive bool
}

func (f *fakeBrowser) IsAlive(context.Context) bool { return f.alive }
func (f *fakeBrowser) Version() string              { return "Chrome/137.0.7151.55" }
func (f *fakeBrowser) PagesOpen() int               { return 0 }
func (f *fakeBrowser) Uptime() time.Duration        { return time.Minute }

type fakeRecorder struct {
	mu         sync.Mutex
	requests   map[string]int
	rejections int
}

func (f *fakeRecorder) RecordHTTPRequest(endpoint, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requests == nil {
		f.requests = map[string]int{}
	}
	f.requests[endpoint+" "+status]++
}

func (f *fakeRecorder) RecordQueueRejection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejections++
}

func (f *fakeRecorder) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[key]
}

func (f *fakeRecorder) rejected() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rejections
}

// testClient serves a handler over an in-memory listener
type testClient struct {
	ln     *fasthttputil.InmemoryListener
	client *fasthttp.Client
}

func newTestClient(handler fasthttp.RequestHandler) *testClient {
	ln := fasthttputil.NewInmemoryListener()
	go func() {
		_ = fasthttp.Serve(ln, handler)
	}()
	return &testClient{
		ln: ln,
		client: &fasthttp.Client{
			Dial: func(string) (net.Conn, error) { return ln.Dial() },
		},
	}
}

func (c *testClient) do(method, path string, body []byte) (int, []byte) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI("http://capture.test" + path)
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}
	Expect(c.client.DoTimeout(req, resp, 10*time.Second)).To(Succeed())
	return resp.StatusCode(), append([]byte(nil), resp.Body()...)
}

func (c *testClient) close() {
	_ = c.ln.Close()
}
