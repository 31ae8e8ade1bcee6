package wind

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jasonlvhit/gocron"
	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/helm/latlon"
)

const msToKnots = 1.9438444924406

// ForecastWinds is one forecast stamp, possibly two files to blend.
type ForecastWinds []*Wind

func (w ForecastWinds) String() string {
	res := ""
	res += w[0].Date.Format("2006010215") + "(" + w[0].File
	if len(w) > 1 {
		res += "," + w[1].File
	}
	res += ")"
	return res
}

// Forecast serves the wind prior from a directory of grib files, named
// "<yyyymmddhh>.f<hour>". The directory is re-merged on a schedule so a
// downloader can drop in fresh forecasts while the boat is at sea.
type Forecast struct {
	dir   string
	winds map[string](ForecastWinds)
	lock  sync.RWMutex
}

// InitForecast loads the grib directory and schedules the merge job.
func InitForecast(dir string) *Forecast {
	f := &Forecast{
		dir:   dir,
		winds: map[string](ForecastWinds){},
	}
	if err := f.Merge(); err != nil {
		log.WithError(err).Error("Error loading grib files")
	}

	s := gocron.NewScheduler()
	job := s.Every(5).Minutes()
	job.Do(f.Merge)
	go s.Start()

	return f
}

// WindAt interpolates the forecast at a location and time. The returned
// bearing carries the direction the wind comes from and its speed in
// knots.
func (f *Forecast) WindAt(l latlon.Location, m time.Time) (latlon.Bearing, error) {
	w1, w2, h := f.findWinds(m)
	if w1 == nil {
		return latlon.Bearing{}, fmt.Errorf("no forecast for %s", m.Format("2006010215"))
	}

	deg, ms := Interpolate(w1, w2, l.LatDegrees(), l.LonDegrees(), h)
	return latlon.Bearing{Angle: latlon.ToRadians(deg), Distance: ms * msToKnots}, nil
}

func (f *Forecast) findWinds(m time.Time) (ForecastWinds, ForecastWinds, float64) {
	f.lock.RLock()
	defer f.lock.RUnlock()

	if len(f.winds) == 0 {
		return nil, nil, 0
	}

	stamp := m.Format("2006010215")

	keys := make([]string, 0, len(f.winds))
	for k := range f.winds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if keys[0] > stamp {
		return f.winds[keys[0]], nil, 0
	}
	for i := range keys {
		if keys[i] > stamp {
			h := m.Sub(f.winds[keys[i-1]][0].Date).Minutes()
			delta := f.winds[keys[i]][0].Date.Sub(f.winds[keys[i-1]][0].Date).Minutes()
			return f.winds[keys[i-1]], f.winds[keys[i]], h / delta
		}
	}
	return f.winds[keys[len(keys)-1]], nil, 0
}

// Merge reconciles the in-memory forecasts with the grib directory:
// vanished files are dropped, new ones loaded.
func (f *Forecast) Merge() error {
	f.lock.Lock()
	defer f.lock.Unlock()

	var toRemove []string
	for k, ws := range f.winds {
		if _, err := os.Stat(filepath.Join(f.dir, ws[0].File)); os.IsNotExist(err) {
			toRemove = append(toRemove, k)
		}
	}
	for _, k := range toRemove {
		log.Println("Remove from winds", k)
		delete(f.winds, k)
	}

	var files []string
	err := filepath.Walk(f.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.WithError(err).Errorf("Error walking file '%s'", path)
		} else if info.Mode().IsRegular() && !strings.HasSuffix(info.Name(), ".tmp") {
			files = append(files, info.Name())
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Error walking grib files")
		return nil
	}

	sort.Strings(files)

	forecasts := make(map[int][]string)

	for cpt, file := range files {

		d := strings.Split(file, ".")[0]

		h, err := strconv.Atoi(strings.Split(file, ".")[1][1:])
		if err != nil {
			log.WithError(err).Errorf("Error getting hour from file '%s'", file)
			continue
		}
		t, err := time.Parse("2006010215", d)
		if err != nil {
			log.WithError(err).Errorf("Error parsing date '%s'", d)
			continue
		}

		t = t.Add(time.Hour * time.Duration(h))

		forecastHour := int(math.Round(t.Sub(time.Now()).Hours()))

		if forecastHour < -3 && cpt < len(files)-1 {
			continue
		}

		_, found := forecasts[forecastHour]

		// keep the previous run's forecast for past hours even when a
		// newer run has arrived
		if !found || forecastHour >= 0 {
			forecasts[forecastHour] = append(forecasts[forecastHour], file)
		}
	}

	var keys []int
	for k := range forecasts {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		for _, file := range forecasts[k] {
			d := strings.Split(file, ".")[0]
			date, _ := time.Parse("2006010215", d)
			fh, _ := strconv.Atoi(strings.Split(file, ".")[1][1:])
			date = date.Add(time.Hour * time.Duration(fh))
			sdate := date.Format("2006010215")

			ws, found := f.winds[sdate]
			if found {
				if len(ws) == 2 || ws[0].File == file {
					continue
				}
			}

			w, err := Init(f.dir, date, file)
			if err != nil {
				log.WithError(err).Errorf("Error loading grib file '%s'", file)
			} else {
				log.Debugf("Init %s %s", sdate, w.File)
				f.winds[sdate] = append(f.winds[sdate], &w)
			}
		}
	}

	return nil
}
