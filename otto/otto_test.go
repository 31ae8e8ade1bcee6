package otto

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/a-bouts/helm/alarm"
	"github.com/a-bouts/helm/state"
)

// fakePort discards everything written until it has seen the handshake
// magic, then answers it. Reads drain the scripted input.
type fakePort struct {
	mu     sync.Mutex
	in     bytes.Buffer
	out    bytes.Buffer
	synced bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out.Write(b)
	if !p.synced && bytes.Contains(p.out.Bytes(), []byte("@@CQ!")) {
		p.synced = true
		p.in.WriteString("+CQOK\r\n")
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.in.Len() == 0 {
		// behave like a serial read timeout
		return 0, nil
	}
	return p.in.Read(b)
}

func (p *fakePort) sent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

func (p *fakePort) feed(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in.WriteString(s)
}

func newTestLink(p *fakePort) (*Link, *state.Memory) {
	st := state.NewMemory()
	return New(p, st, alarm.NewRaiser(st, nil)), st
}

func TestSyncHandshake(t *testing.T) {
	port := &fakePort{}
	l, _ := newTestLink(port)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !l.Synced() {
		t.Error("link not synchronized after handshake")
	}
	if !strings.Contains(port.sent(), "@@CQ!") {
		t.Errorf("handshake line not sent; wire: %q", port.sent())
	}
}

func TestSyncIgnoresNoise(t *testing.T) {
	port := &fakePort{}
	port.feed("spurious line\r\n")
	l, _ := newTestLink(port)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !l.Synced() {
		t.Error("link not synchronized")
	}
}

func TestLoopsRefuseUnsynced(t *testing.T) {
	l, _ := newTestLink(&fakePort{})
	if err := l.ReadLoop(context.Background()); err != ErrNotSynced {
		t.Errorf("ReadLoop = %v; want ErrNotSynced", err)
	}
	if err := l.WriteLoop(context.Background()); err != ErrNotSynced {
		t.Errorf("WriteLoop = %v; want ErrNotSynced", err)
	}
}

func TestStatusFrame(t *testing.T) {
	l, st := newTestLink(&fakePort{})
	ctx := context.Background()

	if err := l.handleFrame(ctx, []byte("$A05F:D440:80FF")); err != nil {
		t.Fatalf("handleFrame: %v", err)
	}

	var o state.OttoState
	if err := st.Load(ctx, &o); err != nil {
		t.Fatalf("load: %v", err)
	}
	if o.AlarmStatus != 0xA05F {
		t.Errorf("alarms = %04X; want A05F", o.AlarmStatus)
	}
	if o.ActualAwa != 0xD4 {
		t.Errorf("awa = %02X; want D4", o.ActualAwa)
	}
	if o.ActualCompass != 0x40 {
		t.Errorf("compass = %02X; want 40", o.ActualCompass)
	}
	if o.ActualRudder != 0x80 {
		t.Errorf("rudder = %02X; want 80", o.ActualRudder)
	}
	if o.ActualSail != 0xFF {
		t.Errorf("sail = %02X; want FF", o.ActualSail)
	}
	if st.Counter("otto") != 1 {
		t.Errorf("otto counter = %d; want 1", st.Counter("otto"))
	}
}

func TestTimestampFrameAndRestart(t *testing.T) {
	l, st := newTestLink(&fakePort{})
	ctx := context.Background()

	if err := l.handleFrame(ctx, []byte("@0000FF")); err != nil {
		t.Fatalf("handleFrame: %v", err)
	}
	var o state.OttoState
	st.Load(ctx, &o)
	if o.Timestamp != 0xFF {
		t.Errorf("timestamp = %d; want 255", o.Timestamp)
	}

	// a smaller timestamp means the controller rebooted
	if err := l.handleFrame(ctx, []byte("@000005")); err != nil {
		t.Fatalf("handleFrame: %v", err)
	}
	var a state.Alarms
	st.Load(ctx, &a)
	if a.Raised&alarm.OttoRestart == 0 {
		t.Error("OTTO_RESTART not raised on timestamp regression")
	}
	select {
	case w := <-l.writes:
		if w.reg != resetShadow {
			t.Errorf("queued reg %d; want shadow reset", w.reg)
		}
	default:
		t.Error("no shadow reset queued on restart")
	}
}

func TestModeAndTelemetryFrames(t *testing.T) {
	l, st := newTestLink(&fakePort{})
	ctx := context.Background()

	if err := l.handleFrame(ctx, []byte("!02")); err != nil {
		t.Fatalf("mode frame: %v", err)
	}
	if err := l.handleFrame(ctx, []byte(">3A7C")); err != nil {
		t.Fatalf("telemetry frame: %v", err)
	}

	var o state.OttoState
	st.Load(ctx, &o)
	if o.Mode != 2 {
		t.Errorf("mode = %d; want 2", o.Mode)
	}
	if o.Telemetry[3] != 0xA7C {
		t.Errorf("telemetry[3] = %03X; want A7C", o.Telemetry[3])
	}
}

func TestMalformedFramesDiscarded(t *testing.T) {
	l, st := newTestLink(&fakePort{})
	ctx := context.Background()

	for _, frame := range []string{"$bogus", "$A05F:D440", "@xyz", ">12", "?what", "!zz"} {
		if err := l.handleFrame(ctx, []byte(frame)); err == nil {
			t.Errorf("handleFrame(%q): expected error", frame)
		}
	}
	if st.Counter("otto") != 0 {
		t.Errorf("malformed frames were published (%d saves)", st.Counter("otto"))
	}
}

func TestDebugFrameNotPublished(t *testing.T) {
	l, st := newTestLink(&fakePort{})
	if err := l.handleFrame(context.Background(), []byte("*hello from otto")); err != nil {
		t.Fatalf("debug frame: %v", err)
	}
	if st.Counter("otto") != 0 {
		t.Error("debug frame published otto state")
	}
}

func waitForWire(t *testing.T, port *fakePort, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if port.sent() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("wire = %q; want %q", port.sent(), want)
}

func TestWriterFramingAndModes(t *testing.T) {
	port := &fakePort{}
	l, _ := newTestLink(port)
	l.synced = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.WriteLoop(ctx)

	l.SetRudder(0)
	waitForWire(t, port, "R2=1\r\nR4=80\r\n")

	// same mode again is idempotent, same value is suppressed
	l.SetRudder(0)
	l.SetRudder(10)
	waitForWire(t, port, "R2=1\r\nR4=80\r\nR4=A0\r\n")

	l.TrackCompass(0)
	waitForWire(t, port, "R2=1\r\nR4=80\r\nR4=A0\r\nR2=2\r\nR6=0\r\n")
}

func TestWriterShadowResetAfterRestart(t *testing.T) {
	port := &fakePort{}
	l, _ := newTestLink(port)
	l.synced = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.WriteLoop(ctx)

	l.TrackCompass(0)
	waitForWire(t, port, "R2=2\r\nR6=0\r\n")

	l.writes <- regWrite{reg: resetShadow}
	l.TrackCompass(0)
	waitForWire(t, port, "R2=2\r\nR6=0\r\nR2=2\r\nR6=0\r\n")
}
