package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/chromedp/cdproto/network"
)

// fakePage replays scripted notifications on Navigate and records every call.
type fakePage struct {
	mu      sync.Mutex
	streams map[Kind]chan any
	calls   []string
	closed  bool

	enableErr    error
	subscribeErr map[Kind]error
	navigateErr  error
	waitErr      error
	contentErr   error
	content      string
	// onNavigate is sent through the streams when Navigate is called
	onNavigate []fakeNotification
	// blockWait makes WaitNavigated block until ctx is done
	blockWait bool
}

type fakeNotification struct {
	kind Kind
	raw  any
}

func newFakePage() *fakePage {
	return &fakePage{
		streams:      make(map[Kind]chan any),
		subscribeErr: make(map[Kind]error),
		content:      "<html><head><title>ok</title></head></html>",
	}
}

func (p *fakePage) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePage) EnableNetwork(context.Context) error {
	p.record("enable")
	return p.enableErr
}

func (p *fakePage) Subscribe(_ context.Context, kind Kind) (<-chan any, error) {
	p.record("subscribe:" + kind.String())
	if err := p.subscribeErr[kind]; err != nil {
		return nil, err
	}
	ch := make(chan any, 1024)
	p.mu.Lock()
	p.streams[kind] = ch
	p.mu.Unlock()
	return ch, nil
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.record("navigate:" + url)
	if p.navigateErr != nil {
		return p.navigateErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range p.onNavigate {
		p.streams[n.kind] <- n.raw
	}
	return nil
}

func (p *fakePage) WaitNavigated(ctx context.Context) error {
	p.record("wait")
	if p.blockWait {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.waitErr
}

func (p *fakePage) Content(context.Context) (string, error) {
	p.record("content")
	if p.contentErr != nil {
		return "", p.contentErr
	}
	return p.content, nil
}

func (p *fakePage) Close() error {
	p.record("close")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type fakeBrowser struct {
	page *fakePage
	err  error
}

func (b *fakeBrowser) NewPage(context.Context) (Page, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.page, nil
}

// countingObserver records captured and dropped events per kind
type countingObserver struct {
	mu       sync.Mutex
	captured map[Kind]int
	dropped  map[Kind]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{captured: make(map[Kind]int), dropped: make(map[Kind]int)}
}

func (o *countingObserver) EventCaptured(kind Kind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.captured[kind]++
}

func (o *countingObserver) EventDropped(kind Kind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped[kind]++
}

func (o *countingObserver) Captured(kind Kind) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.captured[kind]
}

func (o *countingObserver) Dropped(kind Kind) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped[kind]
}

var errBoom = errors.New("boom")

func rawRequest(id, url string, resourceType network.ResourceType) fakeNotification {
	return fakeNotification{KindRequest, &network.EventRequestWillBeSent{
		RequestID: network.RequestID(id),
		Type:      resourceType,
		Request:   &network.Request{URL: url, Method: "GET"},
	}}
}

func rawResponse(id, url string, status int64, length float64) fakeNotification {
	return fakeNotification{KindResponse, &network.EventResponseReceived{
		RequestID: network.RequestID(id),
		Response:  &network.Response{URL: url, Status: status, MimeType: "text/html", EncodedDataLength: length},
	}}
}

func rawFinished(id string) fakeNotification {
	return fakeNotification{KindFinished, &network.EventLoadingFinished{RequestID: network.RequestID(id)}}
}

func rawFailed(id, text string) fakeNotification {
	return fakeNotification{KindFailed, &network.EventLoadingFailed{RequestID: network.RequestID(id), ErrorText: text}}
}
