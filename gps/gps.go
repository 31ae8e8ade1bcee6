package gps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/adrianmo/go-nmea"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/a-bouts/helm/alarm"
	"github.com/a-bouts/helm/latlon"
	"github.com/a-bouts/helm/state"
)

// ReadTimeout bounds every blocking serial read.
const ReadTimeout = 10 * time.Second

var errTimeout = errors.New("gps: read timeout")

// Ingest reads NMEA sentences from the receiver and publishes fixes. Only
// GPRMC is interpreted; everything else is logged and discarded.
type Ingest struct {
	r      io.Reader
	closer io.Closer
	store  state.Store
	alarms *alarm.Raiser
	log    *log.Entry
	buf    []byte
}

// New wraps an existing byte stream. Tests inject synthetic ones.
func New(r io.Reader, store state.Store, alarms *alarm.Raiser) *Ingest {
	return &Ingest{
		r:      r,
		store:  store,
		alarms: alarms,
		log:    log.WithField("task", "gps"),
	}
}

// Open opens the receiver serial device.
func Open(device string, baud int, store state.Store, alarms *alarm.Raiser) (*Ingest, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("gps: open %s: %w", device, err)
	}
	if err := port.SetReadTimeout(ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("gps: read timeout on %s: %w", device, err)
	}

	g := New(port, store, alarms)
	g.closer = port
	return g, nil
}

func (g *Ingest) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer.Close()
}

// Run reads sentences until the context ends. Parse failures discard the
// line and keep going; read timeouts are routine while the receiver hunts
// for satellites.
func (g *Ingest) Run(ctx context.Context) error {
	errs := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := g.readLine()
		if err == errTimeout {
			continue
		}
		if err != nil {
			errs++
			g.log.WithError(err).Error("Serial read failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(min(errs, 10)) * time.Second):
			}
			continue
		}
		errs = 0

		if len(line) == 0 {
			continue
		}
		g.handleLine(ctx, string(line))
	}
}

func (g *Ingest) handleLine(ctx context.Context, line string) {
	s, err := nmea.Parse(line)
	if err != nil {
		g.log.WithError(err).Debugf("Discarding sentence '%s'", line)
		return
	}

	if s.DataType() != nmea.TypeRMC {
		g.log.Debugf("Ignoring sentence type %s", s.DataType())
		return
	}

	rmc := s.(nmea.RMC)
	fix := fixFromRMC(rmc)

	if err := g.store.Save(ctx, fix); err != nil {
		g.log.WithError(err).Error("Cannot save fix")
		return
	}
	if err := g.store.Publish(ctx, fix.RecordName()); err != nil {
		g.log.WithError(err).Error("Cannot publish fix")
		return
	}

	if !fix.Valid {
		g.alarms.Raise(ctx, alarm.GpsInvalid)
	}
}

func fixFromRMC(rmc nmea.RMC) state.GpsFix {
	fix := state.GpsFix{
		Time:     rmcTime(rmc),
		Location: latlon.None,
		Sog:      rmc.Speed,
		Cmg:      latlon.ToRadians(rmc.Course),
		Magvar:   latlon.ToRadians(rmc.Variation),
		Valid:    rmc.Validity == nmea.ValidRMC,
	}
	if fix.Valid {
		fix.Location = latlon.FromDegrees(rmc.Latitude, rmc.Longitude)
	}
	return fix
}

func rmcTime(rmc nmea.RMC) time.Time {
	year := rmc.Date.YY
	if year >= 80 {
		year += 1900
	} else {
		year += 2000
	}
	return time.Date(
		year, time.Month(rmc.Date.MM), rmc.Date.DD,
		rmc.Time.Hour, rmc.Time.Minute, rmc.Time.Second,
		rmc.Time.Millisecond*int(time.Millisecond), time.UTC)
}

func (g *Ingest) readLine() ([]byte, error) {
	for {
		if i := bytes.IndexByte(g.buf, '\n'); i >= 0 {
			line := bytes.TrimRight(g.buf[:i], "\r")
			g.buf = g.buf[i+1:]
			return line, nil
		}

		tmp := make([]byte, 256)
		n, err := g.r.Read(tmp)
		if n > 0 {
			g.buf = append(g.buf, tmp[:n]...)
			continue
		}
		if err != nil {
			return nil, err
		}
		return nil, errTimeout
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
