package qnet

import (
	"fmt"

	"github.com/iti/evt/evtm"
	"github.com/sirupsen/logrus"
)

// FlowDemux splits a job stream by class.  A routed class may be upgraded,
// i.e. relabelled, before it is forwarded.  Jobs of a class with no route go
// to the default receiver if there is one, and are dropped otherwise.
type FlowDemux struct {
	name     string
	id       int
	routes   map[int]Receiver
	upgrades map[int]int // 0 means the class is kept
	dflt     Receiver
	drops    int
	trace    *TraceManager
}

// CreateFlowDemux is a constructor.  classes, outs and upgrades are parallel lists;
// dflt may be nil.
func CreateFlowDemux(name string, classes []int, outs []Receiver, upgrades []int, dflt Receiver) (*FlowDemux, error) {
	if len(outs) != len(classes) {
		return nil, fmt.Errorf("demux %s has %d classes but %d outputs", name, len(classes), len(outs))
	}
	if len(upgrades) != len(classes) {
		return nil, fmt.Errorf("demux %s has %d classes but %d upgrades", name, len(classes), len(upgrades))
	}
	fd := new(FlowDemux)
	fd.name = name
	fd.routes = make(map[int]Receiver)
	fd.upgrades = make(map[int]int)
	for idx, class := range classes {
		if _, present := fd.routes[class]; present {
			return nil, fmt.Errorf("demux %s routes class %d twice", name, class)
		}
		if outs[idx] == nil {
			return nil, fmt.Errorf("demux %s has no output for class %d", name, class)
		}
		fd.routes[class] = outs[idx]
		fd.upgrades[class] = upgrades[idx]
	}
	fd.dflt = dflt
	return fd, nil
}

// SetTrace attaches a trace manager, recording drops and upgrades under id
func (fd *FlowDemux) SetTrace(tm *TraceManager, id int) {
	fd.trace = tm
	fd.id = id
	tm.AddName(id, fd.name, "demux")
}

// Put routes the job by its class
func (fd *FlowDemux) Put(evtMgr *evtm.EventManager, job Job) {
	out, present := fd.routes[job.Class]
	if !present {
		if fd.dflt != nil {
			fd.dflt.Put(evtMgr, job)
			return
		}
		fd.drops += 1
		logrus.Debugf("demux %s dropped job %d of unrouted class %d", fd.name, job.SeqID, job.Class)
		addJobTrace(fd.trace, evtMgr.CurrentTime(), fd.id, "drop", job)
		return
	}

	if upgrade := fd.upgrades[job.Class]; upgrade > 0 {
		job = job.WithClass(upgrade)
		addJobTrace(fd.trace, evtMgr.CurrentTime(), fd.id, "upgrade", job)
	}
	out.Put(evtMgr, job)
}

func (fd *FlowDemux) Name() string { return fd.name }
func (fd *FlowDemux) Drops() int   { return fd.drops }
