package qnet

import (
	"encoding/json"
	"os"
	"path"
	"strconv"

	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	TraceType string `json:"tracetype" yaml:"tracetype"`
	TraceStr  string `json:"tracestr" yaml:"tracestr"`
}

// NameType is a an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TraceManager gathers job-level events (drops, departures, upgrades) during a run.
// When InUse is false every method is a cheap no-op, so components can call it
// unconditionally.
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each objID
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment, indexed by the id of the recording component
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm != nil && tm.InUse
}

// AddTrace stores a trace record under the id of the component that produced it
func (tm *TraceManager) AddTrace(vrt vrtime.Time, objID int, trace TraceInst) {
	if !tm.Active() {
		return
	}
	tm.Traces[objID] = append(tm.Traces[objID], trace)
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if !tm.Active() {
		return
	}
	if _, present := tm.NameByID[id]; present {
		panic("duplicated id in AddName")
	}
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
}

// NumTraces returns the number of records held for the component with the given id
func (tm *TraceManager) NumTraces(objID int) int {
	if !tm.Active() {
		return 0
	}
	return len(tm.Traces[objID])
}

// WriteToFile stores the TraceManager to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tm *TraceManager) WriteToFile(filename string) error {
	if !tm.Active() {
		return nil
	}
	return writeSerialized(filename, tm)
}

// writeSerialized writes obj as yaml or json, chosen by the extension of filename
func writeSerialized(filename string, obj any) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(obj)
	} else {
		bytes, merr = json.MarshalIndent(obj, "", "\t")
	}
	if merr != nil {
		return merr
	}

	return os.WriteFile(filename, bytes, 0o644)
}

// JobTrace records the visit of a job to some component
type JobTrace struct {
	Time  float64 `yaml:"time"`
	Ticks int64   `yaml:"ticks"`
	ObjID int     `yaml:"objid"`
	Op    string  `yaml:"op"` // "drop", "depart", "upgrade"
	Src   string  `yaml:"src"`
	SeqID int     `yaml:"seqid"`
	Class int     `yaml:"class"`
	Size  float64 `yaml:"size"`
}

func (jt *JobTrace) Serialize() string {
	bytes, merr := yaml.Marshal(*jt)
	if merr != nil {
		panic(merr)
	}
	return string(bytes[:])
}

// addJobTrace creates a record of the job's visit and stores it
func addJobTrace(tm *TraceManager, vrt vrtime.Time, objID int, op string, job Job) {
	if !tm.Active() {
		return
	}
	jt := JobTrace{Time: vrt.Seconds(), Ticks: vrt.Ticks(), ObjID: objID, Op: op,
		Src: job.Src, SeqID: job.SeqID, Class: job.Class, Size: job.Size}

	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)
	tm.AddTrace(vrt, objID, TraceInst{TraceTime: traceTime, TraceType: "job", TraceStr: jt.Serialize()})
}
