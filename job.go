package qnet

// job.go holds the Job that travels through the network, and the
// Receiver interface satisfied by everything a Job can be handed to

import (
	"fmt"

	"github.com/iti/evt/evtm"
)

// default source and destination labels of a Job
const (
	DefaultSrc = "a"
	DefaultDst = "z"
)

// A Job is created by a JobGenerator and consumed by a JobSink.  Size is the
// service demand (in bytes, when ports count bytes), Class is the flow identity
// used for scheduling and routing.
type Job struct {
	ArrivalTime float64 // simulation time the Job was created
	Size        float64 // service demand, strictly positive
	SeqID       int     // sequence number given by the generator
	Src         string
	Dst         string
	Class       int
}

// CreateJob is a constructor.  It panics on a non-positive size.
func CreateJob(arrivalTime, size float64, seqID int, src string, class int) Job {
	if !(size > 0.0) {
		panic(fmt.Errorf("job %s/%d created with non-positive size %f", src, seqID, size))
	}
	if len(src) == 0 {
		src = DefaultSrc
	}
	return Job{ArrivalTime: arrivalTime, Size: size, SeqID: seqID, Src: src, Dst: DefaultDst, Class: class}
}

// WithClass returns a copy of the job carrying the new class; the receiver is unchanged
func (job Job) WithClass(class int) Job {
	job.Class = class
	return job
}

func (job Job) String() string {
	return fmt.Sprintf("id: %d, flow: %d, time: %g, size: %g", job.SeqID, job.Class, job.ArrivalTime, job.Size)
}

// A Receiver accepts a Job at the current simulation time.  Put never
// reports failure; receivers that cannot take a job drop and count it.
type Receiver interface {
	Put(evtMgr *evtm.EventManager, job Job)
}
