package otto

import (
	"math"

	"github.com/a-bouts/helm/latlon"
)

// Writable controller registers. The numbering is part of the wire
// contract with the microcontroller.
const (
	RegAlarmClear     = 0
	RegMissionControl = 1
	RegMode           = 2
	RegBuzzer         = 3
	RegRudderAngle    = 4
	RegSailAngle      = 5
	RegCompassHeading = 6
	RegMinCompass     = 7
	RegMaxCompass     = 8
	RegAwaHeading     = 9
	RegMinAwa         = 10
	RegMaxAwa         = 11
	RegWakeDuration   = 12
	RegNextWakeup     = 13
	RegRudderPidP     = 14
	RegRudderPidI     = 15
	RegRudderPidD     = 16
	RegRudderPidENum  = 17
	RegRudderPidEDen  = 18
	RegRudderPidUDiv  = 19
	RegSailMxcM       = 20
	RegSailMxcC       = 21
	RegSailMxcUDiv    = 22
)

// Controller modes, written to RegMode.
const (
	ModeIdle uint8 = iota
	ModeManual
	ModeTrackCompass
	ModeTrackAwa
)

// RudderToReg converts rudder degrees in [-40, 40] to register units.
func RudderToReg(deg float64) uint8 {
	if deg > 40 {
		deg = 40
	} else if deg < -40 {
		deg = -40
	}
	v := math.Round(3.175*deg + 128)
	if v > 255 {
		v = 255
	} else if v < 0 {
		v = 0
	}
	return uint8(v)
}

// RegToRudder converts register units back to rudder degrees.
func RegToRudder(v uint8) float64 {
	return (float64(v) - 128) / 3.175
}

// SailToReg converts sail percent in [0, 100] to register units.
func SailToReg(pct float64) uint8 {
	if pct > 100 {
		pct = 100
	} else if pct < 0 {
		pct = 0
	}
	return uint8(math.Round(2.55 * pct))
}

// RegToSail converts register units back to sail percent.
func RegToSail(v uint8) float64 {
	return float64(v) / 2.55
}

// CompassToReg converts a heading in radians to register units; 0 is north
// and the value wraps mod 256.
func CompassToReg(rad float64) uint8 {
	v := int(math.Round(latlon.Absolute(rad) * 128 / math.Pi))
	return uint8(v & 0xff)
}

// RegToCompass converts register units back to radians.
func RegToCompass(v uint8) float64 {
	return float64(v) * math.Pi / 128
}

// AwaToReg converts an apparent wind angle in (-π, π] to register units.
// Negative angles occupy the upper half of the byte.
func AwaToReg(rad float64) uint8 {
	v := int(math.Round(latlon.NormalizePi(rad) * 128 / math.Pi))
	if v < 0 {
		v += 256
	}
	return uint8(v & 0xff)
}

// RegToAwa converts register units back to radians; values above 128 are
// negative.
func RegToAwa(v uint8) float64 {
	x := int(v)
	if x > 128 {
		x -= 256
	}
	return float64(x) * math.Pi / 128
}
