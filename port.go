package qnet

// port.go holds the SwitchPort, a single server shared by several classes of
// jobs.  Each class has its own FIFO buffer and service rate.  Which class is
// served next is chosen at random, in proportion to the effort weights set
// through Control.
//
// The server is a small state machine driven by the event manager:
//   - cycle draws a class.  If the class buffer holds a job, service starts;
//     otherwise the server waits on that class, and only that class, until a
//     job of the class is put.
//   - serviceComplete forwards the served job and starts the next cycle.

import (
	"fmt"
	"math"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// weightTol absorbs rounding in weight vectors that are meant to sum to one.
// A weight vector summing to less than weightTol parks the server.
const weightTol = 1e-9

// noClass marks that the server is not waiting on any class buffer
const noClass = -1

// SwitchPort is a multi-class single-server station with weighted random
// scheduling and an optional buffer limit
type SwitchPort struct {
	name    string
	id      int
	classes []int       // class ids in configuration order
	index   map[int]int // class id -> position in classes
	rates   []float64
	weights []float64
	cdf     []float64 // cumulative weights, cdf[i] = sum(weights[0..i])

	queues    [][]Job
	occupancy []float64 // jobs or bytes per class, mirrors queues

	limit      float64 // zero or less means no limit
	limitBytes bool

	busy    bool
	waiting int  // index of the class the server waits on, or noClass
	parked  bool // all weights are zero, nothing can be drawn
	started bool

	drops  int
	served int

	rng    RandSource
	out    Receiver
	evtMgr *evtm.EventManager
	trace  *TraceManager
}

// CreateSwitchPort is a constructor.  classes and rates are parallel lists, rates
// must be positive and class ids distinct.  The port owns rng, which is used only
// for scheduling draws.  Weights start out uniform.
func CreateSwitchPort(name string, classes []int, rates []float64, rng RandSource) (*SwitchPort, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("port %s has no classes", name)
	}
	if len(classes) != len(rates) {
		return nil, fmt.Errorf("port %s has %d classes but %d rates", name, len(classes), len(rates))
	}
	if rng == nil {
		return nil, fmt.Errorf("port %s has no random stream", name)
	}

	p := new(SwitchPort)
	p.name = name
	p.classes = slices.Clone(classes)
	p.rates = slices.Clone(rates)
	p.index = make(map[int]int)
	for idx, class := range classes {
		if _, present := p.index[class]; present {
			return nil, fmt.Errorf("port %s lists class %d twice", name, class)
		}
		if !(rates[idx] > 0.0) {
			return nil, fmt.Errorf("port %s class %d has non-positive rate %g", name, class, rates[idx])
		}
		p.index[class] = idx
	}

	n := len(classes)
	p.queues = make([][]Job, n)
	p.occupancy = make([]float64, n)
	p.waiting = noClass
	p.rng = rng

	uniform := make([]float64, n)
	for idx := range uniform {
		uniform[idx] = 1.0 / float64(n)
	}
	p.setWeights(uniform)
	return p, nil
}

// SetBufferLimit caps the combined occupancy of the port.  With limitBytes the
// limit and the occupancy are measured in job size, otherwise in jobs.
// A limit of zero or less removes the cap.
func (p *SwitchPort) SetBufferLimit(limit float64, limitBytes bool) {
	p.limit = limit
	p.limitBytes = limitBytes
}

// SetOut names the receiver of served jobs
func (p *SwitchPort) SetOut(out Receiver) {
	p.out = out
}

// SetTrace attaches a trace manager, recording drops and departures under id
func (p *SwitchPort) SetTrace(tm *TraceManager, id int) {
	p.trace = tm
	p.id = id
	tm.AddName(id, p.name, "port")
}

// Start puts the server into its first scheduling cycle
func (p *SwitchPort) Start(evtMgr *evtm.EventManager) {
	if p.started {
		panic(fmt.Errorf("port %s started twice", p.name))
	}
	if p.out == nil {
		panic(fmt.Errorf("port %s started without an output", p.name))
	}
	p.evtMgr = evtMgr
	p.started = true
	p.cycle(evtMgr)
}

// Control replaces the effort weights.  The vector needs one entry per class,
// in configuration order, no negative entry, and a sum of at most one.  A
// rejected vector leaves the weights as they were.  Weights summing to less
// than weightTol count as all zero and park the server.
func (p *SwitchPort) Control(weights []float64) error {
	if len(weights) != len(p.classes) {
		return fmt.Errorf("port %s has %d classes, weight vector has %d entries", p.name, len(p.classes), len(weights))
	}
	sum := 0.0
	for idx, w := range weights {
		if w < 0.0 || math.IsNaN(w) {
			return fmt.Errorf("port %s weight %d is %g", p.name, idx, w)
		}
		sum += w
	}
	if sum > 1.0+weightTol {
		return fmt.Errorf("port %s weights sum to %g, more than 1", p.name, sum)
	}
	p.setWeights(weights)

	// a server parked on all-zero weights can draw again
	if p.parked && p.started && !p.busy {
		p.parked = false
		p.cycle(p.evtMgr)
	}
	return nil
}

// setWeights stores a copy of weights and the cumulative sums
func (p *SwitchPort) setWeights(weights []float64) {
	p.weights = slices.Clone(weights)
	p.cdf = make([]float64, len(weights))
	sum := 0.0
	for idx, w := range weights {
		sum += w
		p.cdf[idx] = sum
	}
}

// selectClass returns the index of the class whose weight interval holds a
// uniform draw.  A draw falling in the unallocated residual is repeated.
// Returns noClass if the weights sum to less than weightTol.
func (p *SwitchPort) selectClass() int {
	if p.cdf[len(p.cdf)-1] < weightTol {
		return noClass
	}
	for {
		r := p.rng.RandU01()
		for idx, c := range p.cdf {
			if r < c {
				return idx
			}
		}
	}
}

// cycle is one pass of the server loop
func (p *SwitchPort) cycle(evtMgr *evtm.EventManager) {
	p.waiting = noClass
	idx := p.selectClass()
	if idx == noClass {
		p.parked = true
		return
	}
	if len(p.queues[idx]) == 0 {
		p.waiting = idx
		return
	}
	p.serve(evtMgr, idx)
}

// serve takes the head of the class buffer into service
func (p *SwitchPort) serve(evtMgr *evtm.EventManager, idx int) {
	job := p.queues[idx][0]
	p.queues[idx] = p.queues[idx][1:]
	p.occupancy[idx] -= p.delta(job)
	if p.occupancy[idx] < 0.0 {
		// byte counts can drift by rounding
		p.occupancy[idx] = 0.0
	}
	p.busy = true

	evtMgr.Schedule(p, job, serviceComplete, serviceTime(job.Size/p.rates[idx]))
}

// serviceTime converts a service duration to whole vrtime ticks, rounding up so
// that a job never leaves before it has been served for its full duration
func serviceTime(seconds float64) vrtime.Time {
	ticks := vrtime.SecondsToTicks(seconds)
	if vrtime.TicksToSeconds(ticks) < seconds {
		ticks += 1
	}
	return vrtime.CreateTime(ticks, 0)
}

// serviceComplete is the event handler for the end of a job's service
func serviceComplete(evtMgr *evtm.EventManager, context any, data any) any {
	p := context.(*SwitchPort)
	job := data.(Job)

	p.served += 1
	addJobTrace(p.trace, evtMgr.CurrentTime(), p.id, "depart", job)
	p.out.Put(evtMgr, job)
	p.busy = false

	p.cycle(evtMgr)

	// event-handlers are required to return _something_
	return nil
}

// delta is what a job adds to occupancy
func (p *SwitchPort) delta(job Job) float64 {
	if p.limitBytes {
		return job.Size
	}
	return 1.0
}

// Put offers a job to the port.  A job that would bring the combined occupancy
// to the limit or beyond is dropped and counted.
func (p *SwitchPort) Put(evtMgr *evtm.EventManager, job Job) {
	idx, present := p.index[job.Class]
	if !present {
		panic(fmt.Errorf("port %s does not serve class %d", p.name, job.Class))
	}
	if !(job.Size > 0.0) {
		panic(fmt.Errorf("port %s offered job %s/%d with non-positive size", p.name, job.Src, job.SeqID))
	}

	delta := p.delta(job)
	if p.limit > 0.0 && p.TotalOccupancy()+delta >= p.limit {
		p.drops += 1
		logrus.Debugf("port %s dropped job %d of class %d at %g", p.name, job.SeqID, job.Class, evtMgr.CurrentSeconds())
		addJobTrace(p.trace, evtMgr.CurrentTime(), p.id, "drop", job)
		return
	}

	p.queues[idx] = append(p.queues[idx], job)
	p.occupancy[idx] += delta

	if p.waiting == idx {
		p.waiting = noClass
		p.serve(evtMgr, idx)
	}
}

// State returns a copy of the per-class occupancy, keyed by class id
func (p *SwitchPort) State() map[int]float64 {
	state := make(map[int]float64, len(p.classes))
	for idx, class := range p.classes {
		state[class] = p.occupancy[idx]
	}
	return state
}

// TotalOccupancy sums occupancy over the classes; the job in service is not included
func (p *SwitchPort) TotalOccupancy() float64 {
	total := 0.0
	for _, occ := range p.occupancy {
		total += occ
	}
	return total
}

// QueueLen returns the number of jobs buffered for class
func (p *SwitchPort) QueueLen(class int) int {
	idx, present := p.index[class]
	if !present {
		return 0
	}
	return len(p.queues[idx])
}

// WaitingOn returns the class the idle server is blocked on, and whether it is blocked at all
func (p *SwitchPort) WaitingOn() (int, bool) {
	if p.waiting == noClass {
		return 0, false
	}
	return p.classes[p.waiting], true
}

// BufferLimit returns the occupancy cap, zero or less when there is none
func (p *SwitchPort) BufferLimit() float64 {
	return p.limit
}

// Rate returns the service rate of class
func (p *SwitchPort) Rate(class int) float64 {
	return p.rates[p.index[class]]
}

func (p *SwitchPort) Name() string       { return p.name }
func (p *SwitchPort) Busy() bool         { return p.busy }
func (p *SwitchPort) Drops() int         { return p.drops }
func (p *SwitchPort) Served() int        { return p.served }
func (p *SwitchPort) LimitBytes() bool   { return p.limitBytes }
func (p *SwitchPort) Classes() []int     { return slices.Clone(p.classes) }
func (p *SwitchPort) Weights() []float64 { return slices.Clone(p.weights) }
