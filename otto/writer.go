package otto

import (
	"context"
	"fmt"
)

// WriteLoop drains the register queue and frames writes onto the wire. A
// write that would repeat the register's last sent value is suppressed;
// the shadow table is dropped when the controller reboots.
func (l *Link) WriteLoop(ctx context.Context) error {
	if !l.synced {
		return ErrNotSynced
	}

	shadow := make(map[int]int)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case w := <-l.writes:
			if w.reg == resetShadow {
				shadow = make(map[int]int)
				continue
			}
			if v, ok := shadow[w.reg]; ok && v == w.value {
				continue
			}
			if _, err := fmt.Fprintf(l.rw, "R%d=%X\r\n", w.reg, w.value); err != nil {
				l.log.WithError(err).Errorf("Cannot write register %d", w.reg)
				continue
			}
			shadow[w.reg] = w.value
		}
	}
}

// enqueue hands a register write to the writer task. Callers only ever
// block on a full queue.
func (l *Link) enqueue(reg, value int) {
	l.writes <- regWrite{reg: reg, value: value}
}

// SetRegister writes a raw register value.
func (l *Link) SetRegister(reg, value int) {
	l.enqueue(reg, value)
}

// SetRudder steers the rudder to an angle in degrees, forcing manual mode.
func (l *Link) SetRudder(deg float64) {
	l.enqueue(RegMode, int(ModeManual))
	l.enqueue(RegRudderAngle, int(RudderToReg(deg)))
}

// SetSail trims the sail to a percentage, forcing manual mode.
func (l *Link) SetSail(pct float64) {
	l.enqueue(RegMode, int(ModeManual))
	l.enqueue(RegSailAngle, int(SailToReg(pct)))
}

// TrackCompass asks the controller to hold a compass heading in radians.
func (l *Link) TrackCompass(rad float64) {
	l.enqueue(RegMode, int(ModeTrackCompass))
	l.enqueue(RegCompassHeading, int(CompassToReg(rad)))
}

// TrackAwa asks the controller to hold an apparent wind angle in radians.
func (l *Link) TrackAwa(rad float64) {
	l.enqueue(RegMode, int(ModeTrackAwa))
	l.enqueue(RegAwaHeading, int(AwaToReg(rad)))
}

// ClearAlarms acknowledges controller alarm bits.
func (l *Link) ClearAlarms(mask uint16) {
	l.enqueue(RegAlarmClear, int(mask))
}
