package orch

import (
	"context"
	"sync"

	"github.com/peppoasap/InVeritas/internal/core"
	"github.com/peppoasap/InVeritas/internal/domain"
)

// eventLog records the order of side effects across fakes.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(ev string) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	copy(out, l.events)
	return out
}

type fakeResource struct {
	id string

	mu     sync.Mutex
	closed bool
}

func (r *fakeResource) ID() string { return r.id }

func (r *fakeResource) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeResource) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type fakeEngine struct {
	mu      sync.Mutex
	routers int
	router  *fakeRouter
}

func (e *fakeEngine) CreateRouter(_ context.Context, room domain.RoomKey) (core.Router, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routers++
	e.router = &fakeRouter{
		fakeResource: fakeResource{id: "router-" + string(room)},
		canConsume:   true,
	}
	return e.router, nil
}

type fakeRouter struct {
	fakeResource
	canConsume bool
	plainErr   error

	mu        sync.Mutex
	webrtc    []*fakeWebRTCTransport
	plain     []*fakePlainTransport
	log       *eventLog
	resumeOK  func() bool
	onProduce func() // runs inside Produce, before it returns
}

func (r *fakeRouter) Capabilities() domain.RTPCapabilities {
	return domain.RTPCapabilities{Codecs: []domain.RTPCodecCapability{{
		Kind: domain.MediaVideo, MimeType: "video/VP8", ClockRate: 90000, PayloadType: 96,
	}}}
}

func (r *fakeRouter) CanConsume(string, domain.RTPCapabilities) bool { return r.canConsume }

func (r *fakeRouter) CreateWebRTCTransport(context.Context) (core.WebRTCTransport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &fakeWebRTCTransport{
		fakeResource: fakeResource{id: "webrtc-transport"},
		onProduce:    r.onProduce,
	}
	r.webrtc = append(r.webrtc, t)
	return t, nil
}

func (r *fakeRouter) CreatePlainTransport(context.Context) (core.PlainTransport, error) {
	if r.plainErr != nil {
		return nil, r.plainErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &fakePlainTransport{
		fakeResource: fakeResource{id: "plain-transport"},
		log:          r.log,
		resumeOK:     r.resumeOK,
	}
	r.plain = append(r.plain, t)
	return t, nil
}

func (r *fakeRouter) plainCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plain)
}

type fakeWebRTCTransport struct {
	fakeResource
	onClosed  func()
	onProduce func()

	mu        sync.Mutex
	connected bool
	producers []*fakeProducer
	consumers []*fakeConsumer
}

func (t *fakeWebRTCTransport) Info() domain.TransportInfo {
	return domain.TransportInfo{ID: t.id}
}

func (t *fakeWebRTCTransport) Connect(context.Context, domain.TransportConnect) error {
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

func (t *fakeWebRTCTransport) Produce(_ context.Context, kind domain.MediaKind, params domain.RTPParameters) (core.Producer, error) {
	if t.onProduce != nil {
		t.onProduce()
	}
	p := &fakeProducer{
		fakeResource: fakeResource{id: "producer-1"},
		kind:         kind,
		params:       params,
	}
	t.mu.Lock()
	t.producers = append(t.producers, p)
	t.mu.Unlock()
	return p, nil
}

func (t *fakeWebRTCTransport) Consume(_ context.Context, producer core.Producer, _ domain.RTPCapabilities, paused bool) (core.Consumer, error) {
	c := &fakeConsumer{
		fakeResource: fakeResource{id: "consumer-1"},
		kind:         producer.Kind(),
		paused:       paused,
	}
	t.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	return c, nil
}

func (t *fakeWebRTCTransport) OnClosed(fn func()) { t.onClosed = fn }

type fakePlainTransport struct {
	fakeResource
	log      *eventLog
	resumeOK func() bool

	mu       sync.Mutex
	remote   domain.PlainConnect
	consumer *fakeConsumer
}

func (t *fakePlainTransport) Tuple() domain.TransportTuple {
	return domain.TransportTuple{LocalIP: "127.0.0.1", LocalPort: 40000, Protocol: "udp"}
}

func (t *fakePlainTransport) Connect(_ context.Context, remote domain.PlainConnect) error {
	t.mu.Lock()
	t.remote = remote
	t.mu.Unlock()
	if t.log != nil {
		t.log.add("connect")
	}
	return nil
}

func (t *fakePlainTransport) Consume(_ context.Context, producer core.Producer, paused bool) (core.Consumer, error) {
	c := &fakeConsumer{
		fakeResource: fakeResource{id: "recording-consumer"},
		kind:         producer.Kind(),
		paused:       paused,
		log:          t.log,
		resumeOK:     t.resumeOK,
	}
	t.mu.Lock()
	t.consumer = c
	t.mu.Unlock()
	if t.log != nil {
		if paused {
			t.log.add("consume-paused")
		} else {
			t.log.add("consume")
		}
	}
	return c, nil
}

type fakeProducer struct {
	fakeResource
	kind   domain.MediaKind
	params domain.RTPParameters
}

func (p *fakeProducer) Kind() domain.MediaKind       { return p.kind }
func (p *fakeProducer) Params() domain.RTPParameters { return p.params }

type fakeConsumer struct {
	fakeResource
	kind     domain.MediaKind
	paused   bool
	log      *eventLog
	resumeOK func() bool
}

func (c *fakeConsumer) Kind() domain.MediaKind { return c.kind }

func (c *fakeConsumer) Info() domain.ConsumerInfo {
	return domain.ConsumerInfo{ID: c.id, Kind: c.kind}
}

func (c *fakeConsumer) Resume() error {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
	if c.resumeOK != nil && !c.resumeOK() {
		if c.log != nil {
			c.log.add("resume-before-persist")
		}
	} else if c.log != nil {
		c.log.add("resume")
	}
	return nil
}

type fakePipeline struct {
	fakeResource
}

type fakeStarter struct {
	err error

	mu       sync.Mutex
	starts   int
	sdpPath  string
	log      *eventLog
	pipeline *fakePipeline
}

func (f *fakeStarter) Start(_ context.Context, room domain.RoomKey, sdpPath string, _ core.AnalysisSink) (core.AnalysisPipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.sdpPath = sdpPath
	if f.log != nil {
		f.log.add("pipeline-start")
	}
	if f.err != nil {
		return nil, f.err
	}
	f.pipeline = &fakePipeline{fakeResource: fakeResource{id: "pipeline-" + string(room)}}
	return f.pipeline, nil
}

type nullSink struct{}

func (nullSink) AnalysisEvent(domain.RoomKey, core.AnalysisEvent) {}
