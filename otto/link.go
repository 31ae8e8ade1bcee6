package otto

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/a-bouts/helm/alarm"
	"github.com/a-bouts/helm/state"
)

// ErrNotSynced is returned when the controller never answered the boot
// handshake.
var ErrNotSynced = errors.New("otto: controller not synchronized")

// errTimeout marks an empty read: the port timed out without data. Not
// fatal, the caller resumes.
var errTimeout = errors.New("otto: read timeout")

// ReadTimeout bounds every blocking serial read.
const ReadTimeout = 10 * time.Second

// backoff ladder for handshake retries and persistent device errors,
// capped at the last value.
var backoff = []time.Duration{
	1 * time.Second, 1 * time.Second, 1 * time.Second, 1 * time.Second,
	2 * time.Second, 2 * time.Second, 3 * time.Second, 5 * time.Second,
	10 * time.Second, 10 * time.Second, 20 * time.Second, 30 * time.Second,
	60 * time.Second,
}

func backoffDelay(attempt int) time.Duration {
	if attempt >= len(backoff) {
		return backoff[len(backoff)-1]
	}
	return backoff[attempt]
}

const writeQueueSize = 32

type regWrite struct {
	reg   int
	value int
}

// resetShadow is queued by the reader on controller reboot so the writer
// stops suppressing registers the controller has forgotten.
const resetShadow = -1

// Link is the register-based channel to the low-level controller. The
// reader and writer tasks share the full-duplex port; the link owns it
// exclusively.
type Link struct {
	rw     io.ReadWriter
	closer io.Closer
	store  state.Store
	alarms *alarm.Raiser
	log    *log.Entry

	writes chan regWrite
	buf    []byte

	// reader-owned
	st       state.OttoState
	lastBoot uint32
	synced   bool
}

// New wraps an existing transport. Tests inject synthetic ones.
func New(rw io.ReadWriter, store state.Store, alarms *alarm.Raiser) *Link {
	return &Link{
		rw:     rw,
		store:  store,
		alarms: alarms,
		log:    log.WithField("task", "otto"),
		writes: make(chan regWrite, writeQueueSize),
	}
}

// Open opens the controller serial device.
func Open(device string, baud int, store state.Store, alarms *alarm.Raiser) (*Link, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("otto: open %s: %w", device, err)
	}
	if err := port.SetReadTimeout(ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("otto: read timeout on %s: %w", device, err)
	}

	l := New(port, store, alarms)
	l.closer = port
	return l, nil
}

func (l *Link) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Synced reports whether the boot handshake completed.
func (l *Link) Synced() bool {
	return l.synced
}

// Sync runs the boot handshake. The controller discards line noise until
// it sees the magic line; we retry with backoff until it answers, because
// the controller may just be rebooting.
func (l *Link) Sync(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := io.WriteString(l.rw, "@@CQ!\r\n"); err != nil {
			l.log.WithError(err).Error("Cannot send handshake")
		} else {
			line, err := l.readLine()
			if err == nil && (bytes.HasPrefix(line, []byte("+CQOK")) || bytes.HasPrefix(line, []byte("+OK"))) {
				l.synced = true
				l.log.Info("Controller synchronized")
				return nil
			}
			if err != nil && err != errTimeout {
				l.log.WithError(err).Error("Handshake read failed")
			}
		}

		l.log.Infof("Controller not answering, retry in %s", backoffDelay(attempt))
		if !sleep(ctx, backoffDelay(attempt)) {
			return ctx.Err()
		}
	}
}

// readLine returns the next newline-terminated frame without the line
// ending. An empty read means the port timed out: errTimeout.
func (l *Link) readLine() ([]byte, error) {
	for {
		if i := bytes.IndexByte(l.buf, '\n'); i >= 0 {
			line := bytes.TrimRight(l.buf[:i], "\r")
			l.buf = l.buf[i+1:]
			return line, nil
		}

		tmp := make([]byte, 256)
		n, err := l.rw.Read(tmp)
		if n > 0 {
			l.buf = append(l.buf, tmp[:n]...)
			continue
		}
		if err != nil {
			return nil, err
		}
		return nil, errTimeout
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
