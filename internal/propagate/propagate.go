// Package propagate turns validated element sets into positions using the
// SGP4 model from go-satellite.
package propagate

import (
	"errors"
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"example.com/tlegate/internal/format"
	"example.com/tlegate/internal/tle"
)

// Vector is a TEME vector in km or km/s.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vector) Norm() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// State is the propagated position of a satellite at one instant.
type State struct {
	Time       time.Time `json:"time"`
	Satellite  string    `json:"satellite"`
	Position   Vector    `json:"position"`
	Velocity   Vector    `json:"velocity"`
	Latitude   float64   `json:"latitudeDeg"`
	Longitude  float64   `json:"longitudeDeg"`
	AltitudeKm float64   `json:"altitudeKm"`
}

// Propagator wraps one initialised SGP4 model.
type Propagator struct {
	sat       satellite.Satellite
	satellite string
	epoch     time.Time
}

var ErrInvalidElements = errors.New("propagate: invalid element set")

// New validates rec before handing it to go-satellite, which exits the
// process on malformed lines.
func New(rec *tle.ParsedTLE) (*Propagator, error) {
	if rec == nil {
		return nil, ErrInvalidElements
	}
	l1, l2, err := format.Lines(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidElements, err)
	}
	opts := tle.DefaultOptions()
	opts.IncludeWarnings = false
	res := tle.Validate(l1+"\n"+l2, opts)
	if !res.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidElements, res.Errors[0].Message)
	}
	epoch, err := res.Record.Epoch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidElements, err)
	}

	sat := satellite.TLEToSat(l1, l2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for %s: code=%d %s", rec.SatelliteNumber1, sat.Error, sat.ErrorStr)
	}
	return &Propagator{sat: sat, satellite: rec.SatelliteNumber1, epoch: epoch}, nil
}

func (p *Propagator) Epoch() time.Time { return p.epoch }

// At propagates to t at one-second resolution.
func (p *Propagator) At(t time.Time) (State, error) {
	t = t.UTC()
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	pos, vel := satellite.Propagate(p.sat, y, int(mo), d, h, mi, s)

	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return State{}, fmt.Errorf("sgp4 propagation failed for %s: output is NaN/Inf", p.satellite)
	}
	st := State{
		Time:      t.Truncate(time.Second),
		Satellite: p.satellite,
		Position:  Vector{pos.X, pos.Y, pos.Z},
		Velocity:  Vector{vel.X, vel.Y, vel.Z},
	}
	if mag := st.Position.Norm(); mag < 6200.0 || mag > 50000.0 {
		return State{}, fmt.Errorf("sgp4 propagation failed for %s: unreasonable position magnitude %.1f km", p.satellite, mag)
	}

	gmst := satellite.GSTimeFromDate(y, int(mo), d, h, mi, s)
	alt, _, ll := satellite.ECIToLLA(pos, gmst)
	deg := satellite.LatLongDeg(ll)
	st.Latitude, st.Longitude, st.AltitudeKm = deg.Latitude, deg.Longitude, alt
	return st, nil
}

// Track propagates n points starting at start, step apart.
func (p *Propagator) Track(start time.Time, step time.Duration, n int) ([]State, error) {
	if n <= 0 {
		return nil, nil
	}
	if step <= 0 {
		return nil, fmt.Errorf("propagate: step must be positive")
	}
	out := make([]State, 0, n)
	for i := 0; i < n; i++ {
		st, err := p.At(start.Add(time.Duration(i) * step))
		if err != nil {
			return out, err
		}
		out = append(out, st)
	}
	return out, nil
}
