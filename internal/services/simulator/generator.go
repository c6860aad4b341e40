package simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
)

const (
	// percentage points per minute while the pump runs
	gainPerMin = 1.5
	// rain adds this much moisture per minute at full rain level
	rainGainPerMin = 0.8

	defaultSeed = 45.0
)

// Generator evolves a small environment model: soil dries over time, the pump and
// rain wet it, temperature and humidity drift on a daily cycle.
type Generator struct {
	mu          sync.Mutex
	rnd         *rand.Rand
	last        time.Time
	moisture    float64 // percent 0..100
	rain        float64 // percent 0..100
	decayPerMin float64
}

// NewGenerator starts at seed percent moisture. A zero seed means the default.
func NewGenerator(seed, decayPerMin float64, src rand.Source) *Generator {
	if seed <= 0 {
		seed = defaultSeed
	}
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Generator{rnd: rand.New(src), moisture: clamp(seed, 0, 100), decayPerMin: math.Max(0, decayPerMin)}
}

// Next advances the model to now and samples every sensor.
func (g *Generator) Next(now time.Time, motorOn bool) model.SensorReading {
	g.mu.Lock()
	defer g.mu.Unlock()

	now = now.UTC()
	if g.last.IsZero() {
		g.last = now
	}
	dtMin := math.Max(0, now.Sub(g.last).Minutes())
	g.last = now

	// rain comes and goes as a random walk
	g.rain = clamp(g.rain+g.rnd.NormFloat64()*5*math.Sqrt(math.Max(dtMin, 0.1))-1*dtMin, 0, 100)

	delta := -g.decayPerMin * dtMin
	if motorOn {
		delta += gainPerMin * dtMin
	}
	delta += rainGainPerMin * dtMin * g.rain / 100
	g.moisture = clamp(g.moisture+delta, 0, 100)

	hour := float64(now.Hour()) + float64(now.Minute())/60
	daily := math.Sin((hour - 9) / 24 * 2 * math.Pi)
	temp := round1(22 + 6*daily + g.rnd.NormFloat64()*0.3)
	hum := round1(clamp(60-15*daily+g.rain/5+g.rnd.NormFloat64(), 5, 100))

	return model.SensorReading{
		Time:         now,
		Temperature:  model.Float(temp),
		Humidity:     model.Float(hum),
		HeatIndex:    model.Float(round1(HeatIndex(temp, hum))),
		SoilMoisture: model.Float(round1(g.moisture)),
		RainLevel:    model.Float(round1(g.rain)),
		RainDetected: model.Bool(g.rain > 10),
	}
}

// Moisture is the current soil moisture percentage.
func (g *Generator) Moisture() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.moisture
}

// HeatIndex is the NWS heat index for a Celsius temperature and relative humidity,
// returned in Celsius. The Rothfusz regression only applies once the simple estimate
// reaches 80°F.
func HeatIndex(tempC, rh float64) float64 {
	t := tempC*9/5 + 32
	hi := 0.5 * (t + 61 + (t-68)*1.2 + rh*0.094)
	if (hi+t)/2 >= 80 {
		hi = -42.379 + 2.04901523*t + 10.14333127*rh -
			0.22475541*t*rh - 0.00683783*t*t - 0.05481717*rh*rh +
			0.00122874*t*t*rh + 0.00085282*t*rh*rh - 0.00000199*t*t*rh*rh
		if rh < 13 && t >= 80 && t <= 112 {
			hi -= (13 - rh) / 4 * math.Sqrt((17-math.Abs(t-95))/17)
		} else if rh > 85 && t >= 80 && t <= 87 {
			hi += (rh - 85) / 10 * (87 - t) / 5
		}
	}
	return (hi - 32) * 5 / 9
}

func clamp(x, lo, hi float64) float64 { return math.Min(hi, math.Max(lo, x)) }

func round1(x float64) float64 { return math.Round(x*10) / 10 }
