package zones

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gopkg.in/yaml.v3"

	"zoneroute/internal/errs"
)

// RuleSet maps zone names to their rules.
type RuleSet map[string]Rules

type ruleFile struct {
	Zones map[string]ruleDoc `yaml:"zones"`
}

type ruleDoc struct {
	Classes     map[string]string `yaml:"classes"`
	Windows     map[string][]int  `yaml:"windows"`
	Plates      map[string][]int  `yaml:"plates"`
	HolidayFree bool              `yaml:"holidayFree"`
}

// LoadRules parses a YAML rule file:
//
//	zones:
//	  ZMRC:
//	    classes: {Truck: forbidden, VUC: permit}
//	    windows: {Monday: [5, 6, 7]}
//	    plates:  {Monday: [1, 2]}
//	    holidayFree: true
func LoadRules(data []byte) (RuleSet, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errs.E(errs.DataError, "load rules", "", err)
	}
	out := RuleSet{}
	for name, doc := range f.Zones {
		r, err := doc.rules()
		if err != nil {
			return nil, errs.E(errs.DataError, "load rules", name, err)
		}
		out[name] = r
	}
	return out, nil
}

func (d ruleDoc) rules() (Rules, error) {
	r := Rules{Classes: map[Class]Access{}, HolidayFree: d.HolidayFree}
	for cls, acc := range d.Classes {
		c, err := ParseClass(cls)
		if err != nil {
			return Rules{}, err
		}
		a, err := parseAccess(acc)
		if err != nil {
			return Rules{}, err
		}
		r.Classes[c] = a
	}
	var err error
	if r.Windows, err = byWeekday(d.Windows); err != nil {
		return Rules{}, err
	}
	if r.Plates, err = byWeekday(d.Plates); err != nil {
		return Rules{}, err
	}
	return r, nil
}

func parseAccess(s string) (Access, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "permitted", "allow", "allowed":
		return Permitted, nil
	case "forbidden", "deny", "denied":
		return Forbidden, nil
	case "permit", "needs-permit", "needspermit":
		return NeedsPermit, nil
	}
	return 0, fmt.Errorf("unknown access %q", s)
}

func byWeekday(in map[string][]int) (map[time.Weekday][]int, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[time.Weekday][]int, len(in))
	for k, v := range in {
		d, err := ParseWeekday(k)
		if err != nil {
			return nil, err
		}
		out[d] = append([]int(nil), v...)
	}
	return out, nil
}

// ParseWeekday accepts English day names or their three-letter prefixes.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) == 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// LoadGeoJSON builds an index from a feature collection. Each feature needs a
// "name" property and polygon geometry. Bad features are skipped and returned
// as data-error warnings; zones without rules get an empty rule set.
func LoadGeoJSON(data []byte, rules RuleSet) (*Index, []error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return NewIndex(), []error{errs.E(errs.DataError, "load zones", "", err)}
	}
	var (
		zs       []*Zone
		warnings []error
	)
	for i, f := range fc.Features {
		name := f.Properties.MustString("name", "")
		if name == "" {
			name = f.Properties.MustString("Name", "")
		}
		if name == "" {
			warnings = append(warnings, errs.Ef(errs.DataError, "load zones", fmt.Sprintf("feature %d", i), "missing name"))
			continue
		}
		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		default:
			warnings = append(warnings, errs.Ef(errs.DataError, "load zones", name, "unsupported geometry %T", f.Geometry))
			continue
		}
		if len(mp) == 0 || len(mp[0]) == 0 || len(mp[0][0]) < 4 {
			warnings = append(warnings, errs.Ef(errs.DataError, "load zones", name, "empty polygon"))
			continue
		}
		zs = append(zs, NewZone(name, mp, rules[name]))
	}
	return NewIndex(zs...), warnings
}

// DefaultRules is the São Paulo rule set: the ZMRC truck zone, the
// municipal plate rotation and the restricted structural roads.
func DefaultRules() RuleSet {
	weekdays := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	hours := func(spans ...[2]int) map[time.Weekday][]int {
		out := map[time.Weekday][]int{}
		for _, d := range weekdays {
			for _, s := range spans {
				for h := s[0]; h < s[1]; h++ {
					out[d] = append(out[d], h)
				}
			}
		}
		return out
	}
	return RuleSet{
		"ZMRC": {
			Classes: map[Class]Access{Truck: Forbidden, VUC: NeedsPermit},
		},
		"Rodizio": {
			Windows: hours([2]int{7, 10}, [2]int{17, 20}),
			Plates: map[time.Weekday][]int{
				time.Monday:    {1, 2},
				time.Tuesday:   {3, 4},
				time.Wednesday: {5, 6},
				time.Thursday:  {7, 8},
				time.Friday:    {9, 0},
			},
			HolidayFree: true,
		},
		"VER": {
			Classes:     map[Class]Access{Truck: Forbidden, VUC: NeedsPermit},
			Windows:     hours([2]int{5, 10}, [2]int{17, 22}),
			HolidayFree: true,
		},
	}
}
