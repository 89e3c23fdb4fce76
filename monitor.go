package qnet

import (
	"fmt"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

// tickSubscriber is a one-shot callback waiting for the next sample
type tickSubscriber struct {
	context any
	handler evtm.EventHandlerFunction
}

// PortMonitor samples the occupancy of a SwitchPort at intervals drawn from a
// Sampler (a constant in the usual configuration).  It keeps the
// time-unweighted average of the samples, the samples themselves, and the
// running average after each sample.
type PortMonitor struct {
	name       string
	port       *SwitchPort
	interval   Sampler
	rng        RandSource
	countBytes bool

	average  float64
	samples  int
	history  []float64
	averages []float64

	nextAt      float64
	subscribers []tickSubscriber
	started     bool
}

// CreatePortMonitor is a constructor.  The monitor counts bytes exactly when the port does.
func CreatePortMonitor(name string, port *SwitchPort, interval Sampler, rng RandSource) (*PortMonitor, error) {
	if port == nil {
		return nil, fmt.Errorf("monitor %s has no port", name)
	}
	if interval == nil {
		return nil, fmt.Errorf("monitor %s has no interval", name)
	}
	pm := new(PortMonitor)
	pm.name = name
	pm.port = port
	pm.interval = interval
	pm.rng = rng
	pm.countBytes = port.LimitBytes()
	pm.history = make([]float64, 0)
	pm.averages = make([]float64, 0)
	return pm, nil
}

// Start schedules the first sample
func (pm *PortMonitor) Start(evtMgr *evtm.EventManager) {
	if pm.started {
		panic(fmt.Errorf("monitor %s started twice", pm.name))
	}
	pm.started = true
	pm.scheduleSample(evtMgr)
}

func (pm *PortMonitor) scheduleSample(evtMgr *evtm.EventManager) {
	delay := pm.interval.Sample(pm.rng)
	if !(delay > 0.0) {
		panic(fmt.Errorf("monitor %s drew non-positive interval %g", pm.name, delay))
	}
	pm.nextAt = evtMgr.CurrentSeconds() + delay
	evtMgr.Schedule(pm, nil, takeSample, vrtime.SecondsToTime(delay))
}

// takeSample is the event handler for a monitor tick
func takeSample(evtMgr *evtm.EventManager, context any, data any) any {
	pm := context.(*PortMonitor)
	pm.scheduleSample(evtMgr)
	pm.Record(pm.occupancy())

	// subscribers are one-shot; anything they register lands on the next tick
	subscribers := pm.subscribers
	pm.subscribers = nil
	for _, sub := range subscribers {
		sub.handler(evtMgr, sub.context, pm)
	}
	return nil
}

// occupancy is what the monitor sees in the port right now: buffered jobs plus
// the job in service when counting jobs, buffered bytes when counting bytes
func (pm *PortMonitor) occupancy() float64 {
	size := pm.port.TotalOccupancy()
	if !pm.countBytes && pm.port.Busy() {
		size += 1.0
	}
	return size
}

// Record folds one sample into the running average and the history
func (pm *PortMonitor) Record(sample float64) {
	pm.average = (pm.average*float64(pm.samples) + sample) / float64(pm.samples+1)
	pm.samples += 1
	pm.history = append(pm.history, sample)
	pm.averages = append(pm.averages, pm.average)
}

// Notify registers handler to be called once, right after the next sample is
// recorded.  The handler's data argument is the monitor.
func (pm *PortMonitor) Notify(context any, handler evtm.EventHandlerFunction) {
	pm.subscribers = append(pm.subscribers, tickSubscriber{context: context, handler: handler})
}

// NextSampleAt is the simulation time of the pending sample
func (pm *PortMonitor) NextSampleAt() float64 {
	return pm.nextAt
}

// StdDev is the standard deviation of the recorded samples
func (pm *PortMonitor) StdDev() float64 {
	if pm.samples < 2 {
		return 0.0
	}
	return stat.StdDev(pm.history, nil)
}

func (pm *PortMonitor) Name() string        { return pm.name }
func (pm *PortMonitor) Port() *SwitchPort   { return pm.port }
func (pm *PortMonitor) Average() float64    { return pm.average }
func (pm *PortMonitor) Samples() int        { return pm.samples }
func (pm *PortMonitor) History() []float64  { return slices.Clone(pm.history) }
func (pm *PortMonitor) Averages() []float64 { return slices.Clone(pm.averages) }
func (pm *PortMonitor) Interval() Sampler   { return pm.interval }
func (pm *PortMonitor) CountsBytes() bool   { return pm.countBytes }
