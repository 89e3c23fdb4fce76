package qnet

import (
	"github.com/iti/evt/evtm"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

// JobSink is where jobs leave the network.  It records the sojourn time of
// every job it accepts and, optionally, arrival times.
type JobSink struct {
	name string

	// RecordArrivals turns on the arrivals series.  With AbsoluteTime the
	// arrival clock is recorded, otherwise the time since the previous arrival.
	RecordArrivals bool
	AbsoluteTime   bool
	RecordWaits    bool
	Debug          bool

	// Selector, when not nil, restricts the statistics to the jobs it accepts
	Selector func(Job) bool

	arrivals    []float64
	waits       []float64
	jobs        int
	bytes       float64
	lastArrival float64
}

// CreateJobSink is a constructor.  Waits are recorded, arrivals are not.
func CreateJobSink(name string) *JobSink {
	js := new(JobSink)
	js.name = name
	js.RecordWaits = true
	js.arrivals = make([]float64, 0)
	js.waits = make([]float64, 0)
	return js
}

// Put accepts a job leaving the network
func (js *JobSink) Put(evtMgr *evtm.EventManager, job Job) {
	if js.Selector != nil && !js.Selector(job) {
		return
	}
	now := evtMgr.CurrentSeconds()
	if js.RecordWaits {
		js.waits = append(js.waits, now-job.ArrivalTime)
	}
	if js.RecordArrivals {
		if js.AbsoluteTime {
			js.arrivals = append(js.arrivals, now)
		} else {
			js.arrivals = append(js.arrivals, now-js.lastArrival)
		}
		js.lastArrival = now
	}
	js.jobs += 1
	js.bytes += job.Size
	if js.Debug {
		logrus.Debugf("sink %s received %s", js.name, job)
	}
}

// WaitStats summarises the waits recorded by a sink
type WaitStats struct {
	Count  int     `json:"count" yaml:"count"`
	Mean   float64 `json:"mean" yaml:"mean"`
	StdDev float64 `json:"stddev" yaml:"stddev"`
	P50    float64 `json:"p50" yaml:"p50"`
	P95    float64 `json:"p95" yaml:"p95"`
	Max    float64 `json:"max" yaml:"max"`
}

// Stats computes the wait summary; all zero when nothing was recorded
func (js *JobSink) Stats() WaitStats {
	ws := WaitStats{Count: len(js.waits)}
	if ws.Count == 0 {
		return ws
	}
	sorted := slices.Clone(js.waits)
	slices.Sort(sorted)

	ws.Mean = stat.Mean(sorted, nil)
	if ws.Count > 1 {
		ws.StdDev = stat.StdDev(sorted, nil)
	}
	ws.P50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	ws.P95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	ws.Max = sorted[ws.Count-1]
	return ws
}

func (js *JobSink) Name() string           { return js.name }
func (js *JobSink) Arrivals() []float64    { return slices.Clone(js.arrivals) }
func (js *JobSink) Waits() []float64       { return slices.Clone(js.waits) }
func (js *JobSink) JobsReceived() int      { return js.jobs }
func (js *JobSink) BytesReceived() float64 { return js.bytes }
func (js *JobSink) LastArrival() float64   { return js.lastArrival }
