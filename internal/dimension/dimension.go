// Package dimension models a single dimension of an input or output
// dataset: its values, units, and — for temporal dimensions — the epoch
// they are relative to. It is the Go binding of the "Dimension record" in
// spec.md §3, built directly off an internal/netcdf.Variable the same way
// the original harmony-netcdf-to-zarr collaborator's mosaic_utilities.py
// builds a dimension record off a netCDF4.Variable.
package dimension

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/harmony-services/netcdf-to-zarr/internal/netcdf"
)

// TimeUnit is the unit a temporal dimension's values are expressed in,
// relative to its Epoch.
type TimeUnit int

const (
	// NotTemporal marks a dimension with no recognized "<unit> since
	// <timestamp>" units string.
	NotTemporal TimeUnit = iota
	Second
	Minute
	Hour
	Day
)

func (u TimeUnit) String() string {
	switch u {
	case Second:
		return "second"
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case Day:
		return "day"
	default:
		return ""
	}
}

// duration returns the time.Duration one unit of u represents.
func (u TimeUnit) duration() time.Duration {
	switch u {
	case Second:
		return time.Second
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	case Day:
		return 24 * time.Hour
	default:
		return 0
	}
}

// unitAliases is the Go rendering of the original collaborator's
// time_unit_to_delta_map: every spelling CF conventions allow for each of
// the four fixed-duration units this converter supports. Calendar units
// (month, year) are deliberately absent — spec.md §3 enumerates only
// second/minute/hour/day, and fixed-duration arithmetic via the standard
// library time package is sufficient for them (a calendar library is only
// needed for month/year units, which are out of scope here).
var unitAliases = map[string]TimeUnit{
	"second": Second, "seconds": Second, "sec": Second, "secs": Second, "s": Second,
	"minute": Minute, "minutes": Minute, "min": Minute, "mins": Minute,
	"hour": Hour, "hours": Hour, "hr": Hour, "hrs": Hour, "h": Hour,
	"day": Day, "days": Day, "d": Day,
}

var sinceRE = regexp.MustCompile(`(?i)^\s*([a-zA-Z]+)\s+since\s+(.+?)\s*$`)

// epochLayouts lists the timestamp layouts accepted after "since", in
// addition to RFC3339 — the common CF-convention renderings that omit a
// timezone offset or use a space instead of "T".
var epochLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTemporalUnits recognizes the "<unit> since <timestamp>" pattern and
// returns the matching TimeUnit and epoch. ok is false for any non-matching
// or unrecognized units string, in which case the dimension is not temporal.
func parseTemporalUnits(units string) (unit TimeUnit, epoch time.Time, ok bool) {
	m := sinceRE.FindStringSubmatch(units)
	if m == nil {
		return NotTemporal, time.Time{}, false
	}
	unit, found := unitAliases[strings.ToLower(m[1])]
	if !found {
		return NotTemporal, time.Time{}, false
	}
	ts := m[2]
	for _, layout := range epochLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return unit, t.UTC(), true
		}
	}
	return NotTemporal, time.Time{}, false
}

// Record is one dimension's metadata, aggregated or not.
type Record struct {
	Path         string
	Values       []float64
	Units        *string
	Epoch        *time.Time
	TimeUnit     TimeUnit
	BoundsPath   *string
	BoundsValues [][2]float64
}

// IsTemporal reports whether r carries a recognized epoch.
func (r *Record) IsTemporal() bool { return r.Epoch != nil }

// FromVariable builds a Record from a dimension variable: its own values,
// optional units (parsed for an epoch), and optional bounds companion
// resolved via ds.
func FromVariable(ds *netcdf.Dataset, v *netcdf.Variable) (*Record, error) {
	values, err := v.Float64Values()
	if err != nil {
		return nil, fmt.Errorf("dimension %s: %w", v.Path, err)
	}

	r := &Record{Path: v.Path, Values: values}

	if u, ok := v.Attributes["units"]; ok {
		if s, ok := u.AsString(); ok {
			r.Units = &s
			if unit, epoch, isTemporal := parseTemporalUnits(s); isTemporal {
				r.TimeUnit = unit
				r.Epoch = &epoch
			}
		}
	}

	if boundsPath, ok := v.BoundsAttr(); ok {
		resolved := resolveReferencePath(v.Path, boundsPath)
		if bv, ok := ds.Variable(resolved); ok {
			boundsFlat, err := bv.Float64Values()
			if err != nil {
				return nil, fmt.Errorf("dimension %s: bounds: %w", v.Path, err)
			}
			if len(bv.Shape) == 2 && bv.Shape[1] == 2 {
				rows := make([][2]float64, bv.Shape[0])
				for i := range rows {
					rows[i] = [2]float64{boundsFlat[2*i], boundsFlat[2*i+1]}
				}
				r.BoundsPath = &resolved
				r.BoundsValues = rows
			}
		}
	}

	return r, nil
}

// resolveReferencePath resolves a bounds/dimension-name reference the same
// way spec.md §4.C step 1 resolves dimension names: a leading slash is
// absolute, otherwise the reference is relative to the referencing
// variable's own group.
func resolveReferencePath(fromPath, ref string) string {
	if strings.HasPrefix(ref, "/") {
		return ref
	}
	idx := strings.LastIndex(fromPath, "/")
	if idx <= 0 {
		return "/" + ref
	}
	return fromPath[:idx] + "/" + ref
}

// ValuesIn returns r.Values converted to the given epoch/unit, the
// "get_values(output_units?)" helper of spec.md §4.B. Non-temporal records
// return their values unchanged regardless of the requested epoch/unit.
func (r *Record) ValuesIn(epoch time.Time, unit TimeUnit) []float64 {
	if !r.IsTemporal() {
		out := make([]float64, len(r.Values))
		copy(out, r.Values)
		return out
	}
	out := make([]float64, len(r.Values))
	for i, v := range r.Values {
		out[i] = ConvertTemporal(v, *r.Epoch, r.TimeUnit, epoch, unit)
	}
	return out
}

// ConvertTemporal re-expresses a single value given in fromUnit since
// fromEpoch as the equivalent value in toUnit since toEpoch. Shared by
// ValuesIn (whole-record conversion) and internal/aggregate's bounds
// derivation (single bounds-row endpoint conversion, spec.md §4.C.3).
func ConvertTemporal(v float64, fromEpoch time.Time, fromUnit TimeUnit, toEpoch time.Time, toUnit TimeUnit) float64 {
	offset := fromEpoch.Sub(toEpoch)
	scale := float64(fromUnit.duration()) / float64(toUnit.duration())
	offsetInUnit := float64(offset) / float64(toUnit.duration())
	return v*scale + offsetInUnit
}
