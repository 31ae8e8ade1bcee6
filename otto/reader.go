package otto

import (
	"context"
	"fmt"
	"strconv"

	"github.com/a-bouts/helm/alarm"
)

// ReadLoop parses controller frames until the context ends. Malformed
// frames are logged and discarded; read timeouts are routine on a quiet
// link.
func (l *Link) ReadLoop(ctx context.Context) error {
	if !l.synced {
		return ErrNotSynced
	}

	errs := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := l.readLine()
		if err == errTimeout {
			continue
		}
		if err != nil {
			errs++
			l.log.WithError(err).Error("Serial read failed")
			if !sleep(ctx, backoffDelay(errs)) {
				return ctx.Err()
			}
			continue
		}
		errs = 0

		if len(line) == 0 {
			continue
		}
		if err := l.handleFrame(ctx, line); err != nil {
			l.log.WithError(err).Warnf("Discarding frame '%s'", line)
		}
	}
}

func (l *Link) handleFrame(ctx context.Context, line []byte) error {
	tag, payload := line[0], string(line[1:])

	switch tag {
	case '$':
		if err := l.parseStatus(payload); err != nil {
			return err
		}
	case '@':
		if err := l.parseTimestamp(ctx, payload); err != nil {
			return err
		}
	case '!':
		v, err := strconv.ParseUint(payload, 16, 8)
		if err != nil {
			return fmt.Errorf("bad mode frame: %v", err)
		}
		l.st.Mode = uint8(v)
	case '>':
		if err := l.parseTelemetry(payload); err != nil {
			return err
		}
	case '*':
		l.log.Debugf("otto: %s", payload)
		return nil
	default:
		return fmt.Errorf("unknown tag %q", tag)
	}

	if err := l.store.Save(ctx, l.st); err != nil {
		return err
	}
	return l.store.Publish(ctx, l.st.RecordName())
}

// parseStatus handles "$AAAA:WWCC:RRSS": alarm bitmap, awa and compass,
// rudder and sail, all hex.
func (l *Link) parseStatus(payload string) error {
	if len(payload) != 14 || payload[4] != ':' || payload[9] != ':' {
		return fmt.Errorf("bad status frame %q", payload)
	}

	alarms, err := strconv.ParseUint(payload[0:4], 16, 16)
	if err != nil {
		return fmt.Errorf("bad alarm bitmap: %v", err)
	}
	awa, err := strconv.ParseUint(payload[5:7], 16, 8)
	if err != nil {
		return fmt.Errorf("bad awa: %v", err)
	}
	compass, err := strconv.ParseUint(payload[7:9], 16, 8)
	if err != nil {
		return fmt.Errorf("bad compass: %v", err)
	}
	rudder, err := strconv.ParseUint(payload[10:12], 16, 8)
	if err != nil {
		return fmt.Errorf("bad rudder: %v", err)
	}
	sail, err := strconv.ParseUint(payload[12:14], 16, 8)
	if err != nil {
		return fmt.Errorf("bad sail: %v", err)
	}

	l.st.AlarmStatus = uint16(alarms)
	l.st.ActualAwa = uint8(awa)
	l.st.ActualCompass = uint8(compass)
	l.st.ActualRudder = uint8(rudder)
	l.st.ActualSail = uint8(sail)
	return nil
}

// parseTimestamp handles "@HHHHHH", seconds since controller boot. A value
// going backwards means the controller rebooted.
func (l *Link) parseTimestamp(ctx context.Context, payload string) error {
	v, err := strconv.ParseUint(payload, 16, 24)
	if err != nil {
		return fmt.Errorf("bad timestamp frame: %v", err)
	}

	if uint32(v) < l.lastBoot {
		l.log.Warnf("Controller rebooted (%d < %d)", v, l.lastBoot)
		l.alarms.Raise(ctx, alarm.OttoRestart)
		l.writes <- regWrite{reg: resetShadow}
	}
	l.lastBoot = uint32(v)
	l.st.Timestamp = uint32(v)
	return nil
}

// parseTelemetry handles ">CVVV": channel in the high nibble, 12-bit
// sample below.
func (l *Link) parseTelemetry(payload string) error {
	v, err := strconv.ParseUint(payload, 16, 16)
	if err != nil || len(payload) != 4 {
		return fmt.Errorf("bad telemetry frame %q", payload)
	}

	channel := v >> 12
	l.st.Telemetry[channel] = uint16(v & 0x0fff)
	return nil
}
