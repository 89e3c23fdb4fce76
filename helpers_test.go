package qnet

import (
	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// fixedSource replays a list of draws, cycling when it runs out
type fixedSource struct {
	values []float64
	draws  int
}

func (fs *fixedSource) RandU01() float64 {
	v := fs.values[fs.draws%len(fs.values)]
	fs.draws += 1
	return v
}

// recorder is a Receiver that keeps what it is given
type recorder struct {
	jobs  []Job
	times []float64
}

func (rec *recorder) Put(evtMgr *evtm.EventManager, job Job) {
	rec.jobs = append(rec.jobs, job)
	rec.times = append(rec.times, evtMgr.CurrentSeconds())
}

// timedPut is the context of a job handed to a receiver at a scheduled time
type timedPut struct {
	to    Receiver
	class int
	size  float64
	seqID int
}

func putNow(evtMgr *evtm.EventManager, context any, data any) any {
	tp := context.(*timedPut)
	tp.to.Put(evtMgr, CreateJob(evtMgr.CurrentSeconds(), tp.size, tp.seqID, "test", tp.class))
	return nil
}

// scheduleJob arranges for a job created at time `at` to be put into `to`
func scheduleJob(evtMgr *evtm.EventManager, to Receiver, at float64, class int, size float64, seqID int) {
	tp := &timedPut{to: to, class: class, size: size, seqID: seqID}
	evtMgr.Schedule(tp, nil, putNow, vrtime.SecondsToTime(at))
}

// newPort builds a port over fixed draws, with a recorder as its output
func newPort(classes []int, rates []float64, draws ...float64) (*SwitchPort, *recorder, *fixedSource) {
	if len(draws) == 0 {
		draws = []float64{0.0}
	}
	src := &fixedSource{values: draws}
	p, err := CreateSwitchPort("port", classes, rates, src)
	if err != nil {
		panic(err)
	}
	rec := &recorder{}
	p.SetOut(rec)
	return p, rec, src
}

func seedPtr(seed int64) *int64 {
	return &seed
}
