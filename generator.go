package qnet

import (
	"fmt"
	"math"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// JobGenerator emits jobs of one class.  Inter-arrival times and sizes come
// from their own samplers, both drawing on the generator's stream.
type JobGenerator struct {
	name         string
	class        int
	arrivals     Sampler
	sizes        Sampler
	initialDelay float64
	lifetime     float64 // no job is scheduled once the clock reaches lifetime
	rng          RandSource
	out          Receiver
	sent         int
	started      bool
}

// CreateJobGenerator is a constructor.  The generator starts after no delay and never expires
// unless SetWindow says otherwise.
func CreateJobGenerator(name string, class int, arrivals, sizes Sampler, rng RandSource) (*JobGenerator, error) {
	if arrivals == nil || sizes == nil {
		return nil, fmt.Errorf("generator %s needs both an arrival and a size distribution", name)
	}
	if rng == nil {
		return nil, fmt.Errorf("generator %s has no random stream", name)
	}
	jg := new(JobGenerator)
	jg.name = name
	jg.class = class
	jg.arrivals = arrivals
	jg.sizes = sizes
	jg.rng = rng
	jg.lifetime = math.Inf(1)
	return jg, nil
}

// SetWindow sets the initial delay and the lifetime; a non-positive lifetime means forever
func (jg *JobGenerator) SetWindow(initialDelay, lifetime float64) {
	jg.initialDelay = math.Max(initialDelay, 0.0)
	if lifetime > 0.0 {
		jg.lifetime = lifetime
	} else {
		jg.lifetime = math.Inf(1)
	}
}

// SetOut names the receiver of generated jobs
func (jg *JobGenerator) SetOut(out Receiver) {
	jg.out = out
}

// Start schedules the end of the initial delay
func (jg *JobGenerator) Start(evtMgr *evtm.EventManager) {
	if jg.started {
		panic(fmt.Errorf("generator %s started twice", jg.name))
	}
	if jg.out == nil {
		panic(fmt.Errorf("generator %s started without an output", jg.name))
	}
	jg.started = true
	evtMgr.Schedule(jg, nil, generatorAwake, vrtime.SecondsToTime(jg.initialDelay))
}

// generatorAwake is the event handler for the end of the initial delay
func generatorAwake(evtMgr *evtm.EventManager, context any, data any) any {
	jg := context.(*JobGenerator)
	jg.scheduleArrival(evtMgr)
	return nil
}

// scheduleArrival draws the next inter-arrival, unless the lifetime is over
func (jg *JobGenerator) scheduleArrival(evtMgr *evtm.EventManager) {
	if !(evtMgr.CurrentSeconds() < jg.lifetime) {
		return
	}
	interarrival := jg.arrivals.Sample(jg.rng)
	evtMgr.Schedule(jg, nil, jobArrival, vrtime.SecondsToTime(interarrival))
}

// jobArrival is the event handler that creates a job and hands it on
func jobArrival(evtMgr *evtm.EventManager, context any, data any) any {
	jg := context.(*JobGenerator)

	jg.sent += 1
	job := CreateJob(evtMgr.CurrentSeconds(), jg.sizes.Sample(jg.rng), jg.sent, jg.name, jg.class)
	jg.out.Put(evtMgr, job)

	jg.scheduleArrival(evtMgr)
	return nil
}

func (jg *JobGenerator) Name() string { return jg.name }
func (jg *JobGenerator) Class() int   { return jg.class }
func (jg *JobGenerator) Sent() int    { return jg.sent }
