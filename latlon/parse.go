package latlon

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports a lat/long string that could not be understood.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %q: %s", e.Input, e.Reason)
}

// ParseAngle parses one coordinate component into degrees. Accepted forms
// are "D.ddd", "D M.mmm" and "D M S.sss", fields separated by whitespace,
// with an optional NSEW hemisphere suffix. S and W negate the value.
func ParseAngle(s string) (float64, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return 0, &ParseError{Input: s, Reason: "empty"}
	}

	sign := 1.0
	last := fields[len(fields)-1]
	if suffix := hemisphereSuffix(last); suffix != "" {
		switch suffix {
		case "N", "E":
		case "S", "W":
			sign = -1.0
		default:
			return 0, &ParseError{Input: s, Reason: "unrecognized suffix " + strconv.Quote(suffix)}
		}
		if rest := last[:len(last)-1]; rest == "" {
			fields = fields[:len(fields)-1]
		} else {
			fields[len(fields)-1] = rest
		}
	}

	if len(fields) == 0 {
		return 0, &ParseError{Input: s, Reason: "no numeric field"}
	}
	if len(fields) > 3 {
		return 0, &ParseError{Input: s, Reason: "too many fields"}
	}

	div := 1.0
	deg := 0.0
	neg := false
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, &ParseError{Input: s, Reason: "bad number " + strconv.Quote(f)}
		}
		if i == 0 && strings.HasPrefix(f, "-") {
			neg = true
			v = -v
		}
		deg += v / div
		div *= 60.0
	}
	if neg {
		deg = -deg
	}

	return sign * deg, nil
}

// ParseLocation parses a "lat, lon" pair. The two components are separated
// by a comma, or by whitespace when both are single decimal fields.
func ParseLocation(s string) (Location, error) {
	var latPart, lonPart string

	if i := strings.IndexByte(s, ','); i >= 0 {
		latPart, lonPart = s[:i], s[i+1:]
	} else {
		fields := strings.Fields(s)
		if i := hemisphereIndex(fields, "N", "S"); i >= 0 {
			latPart = strings.Join(fields[:i+1], " ")
			lonPart = strings.Join(fields[i+1:], " ")
		} else if len(fields) == 2 {
			latPart, lonPart = fields[0], fields[1]
		} else {
			return None, &ParseError{Input: s, Reason: "cannot split latitude and longitude"}
		}
	}

	lat, err := ParseAngle(latPart)
	if err != nil {
		return None, err
	}
	lon, err := ParseAngle(lonPart)
	if err != nil {
		return None, err
	}

	return FromDegrees(lat, lon), nil
}

func hemisphereIndex(fields []string, letters ...string) int {
	for i, f := range fields {
		for _, l := range letters {
			if strings.EqualFold(f, l) {
				return i
			}
		}
	}
	return -1
}

// hemisphereSuffix returns the trailing letter of a field, uppercased, or
// "" when the field is purely numeric.
func hemisphereSuffix(f string) string {
	if f == "" {
		return ""
	}
	c := f[len(f)-1]
	if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return strings.ToUpper(string(c))
	}
	return ""
}
