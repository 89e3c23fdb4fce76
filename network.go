package qnet

// network.go assembles running components from a NetworkDesc and drives them.
// A Network owns its event manager; everything in it runs on the goroutine
// that calls Step or RunUntil.

import (
	"fmt"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// Network is a queueing network built from a NetworkDesc
type Network struct {
	desc    *NetworkDesc
	evtMgr  *evtm.EventManager
	streams *StreamFactory
	trace   *TraceManager

	generators map[string]*JobGenerator
	ports      map[string]*SwitchPort
	monitors   map[string]*PortMonitor
	demuxes    map[string]*FlowDemux
	sinks      map[string]*JobSink

	// component names in description order
	portNames    []string
	monitorNames []string
	demuxNames   []string
	sinkNames    []string

	stepMonitor  *PortMonitor
	costMonitors []*PortMonitor
	controllable []*SwitchPort
	steps        int
}

// BuildNetwork validates nd, creates its components, wires them together and
// starts them at time zero.  tm may be nil; when active it receives the job
// trace of ports and demuxes.
func BuildNetwork(nd *NetworkDesc, tm *TraceManager) (*Network, error) {
	if err := nd.Validate(); err != nil {
		return nil, err
	}

	streams, err := CreateStreamFactory(nd.Seed)
	if err != nil {
		return nil, err
	}

	net := &Network{
		desc:       nd.Clone(),
		evtMgr:     evtm.New(),
		streams:    streams,
		trace:      tm,
		generators: make(map[string]*JobGenerator),
		ports:      make(map[string]*SwitchPort),
		monitors:   make(map[string]*PortMonitor),
		demuxes:    make(map[string]*FlowDemux),
		sinks:      make(map[string]*JobSink),
	}
	receivers := make(map[string]Receiver)
	errs := make([]error, 0)
	objID := 0

	// sinks and ports first, the demuxes route to them
	for _, sd := range nd.Sinks {
		js := CreateJobSink(sd.Name)
		js.RecordArrivals = sd.RecordArrivals
		js.AbsoluteTime = sd.AbsoluteTime
		js.Debug = sd.Debug
		if sd.RecordWaits != nil {
			js.RecordWaits = *sd.RecordWaits
		}
		if len(sd.Classes) > 0 {
			classes := slices.Clone(sd.Classes)
			js.Selector = func(job Job) bool { return slices.Contains(classes, job.Class) }
		}
		net.sinks[sd.Name] = js
		net.sinkNames = append(net.sinkNames, sd.Name)
		receivers[sd.Name] = js
	}

	for _, pd := range nd.Ports {
		p, perr := CreateSwitchPort(pd.Name, pd.Classes, pd.Rates, streams.Stream(pd.Name))
		if perr != nil {
			errs = append(errs, perr)
			continue
		}
		if len(pd.Weights) > 0 {
			if cerr := p.Control(pd.Weights); cerr != nil {
				errs = append(errs, cerr)
			}
		}
		p.SetBufferLimit(pd.BufferLimit, pd.LimitBytes)
		if tm != nil {
			objID += 1
			p.SetTrace(tm, objID)
		}
		net.ports[pd.Name] = p
		net.portNames = append(net.portNames, pd.Name)
		receivers[pd.Name] = p
	}

	for _, dd := range nd.Demuxes {
		classes := make([]int, 0, len(dd.Routes))
		outs := make([]Receiver, 0, len(dd.Routes))
		upgrades := make([]int, 0, len(dd.Routes))
		for _, route := range dd.Routes {
			classes = append(classes, route.Class)
			outs = append(outs, receivers[route.Out])
			upgrades = append(upgrades, route.Upgrade)
		}
		var dflt Receiver
		if len(dd.Default) > 0 {
			dflt = receivers[dd.Default]
		}
		fd, derr := CreateFlowDemux(dd.Name, classes, outs, upgrades, dflt)
		if derr != nil {
			errs = append(errs, derr)
			continue
		}
		if tm != nil {
			objID += 1
			fd.SetTrace(tm, objID)
		}
		net.demuxes[dd.Name] = fd
		net.demuxNames = append(net.demuxNames, dd.Name)
		receivers[dd.Name] = fd
	}

	for _, pd := range nd.Ports {
		if p, present := net.ports[pd.Name]; present {
			p.SetOut(receivers[pd.Out])
		}
	}

	for _, gd := range nd.Generators {
		arrivals, _ := gd.Arrival.Sampler()
		sizes, _ := gd.Size.Sampler()
		jg, gerr := CreateJobGenerator(gd.Name, gd.Class, arrivals, sizes, streams.Stream(gd.Name))
		if gerr != nil {
			errs = append(errs, gerr)
			continue
		}
		jg.SetWindow(gd.InitialDelay, gd.Lifetime)
		jg.SetOut(receivers[gd.Out])
		net.generators[gd.Name] = jg
	}

	for _, md := range nd.Monitors {
		interval, _ := md.Interval.Sampler()
		pm, merr := CreatePortMonitor(md.Name, net.ports[md.Port], interval, streams.Stream(md.Name))
		if merr != nil {
			errs = append(errs, merr)
			continue
		}
		net.monitors[md.Name] = pm
		net.monitorNames = append(net.monitorNames, md.Name)
	}

	if err := ReportErrs(errs); err != nil {
		return nil, err
	}
	if err := net.designate(nd); err != nil {
		return nil, err
	}

	// jobs of the generators are scheduled before the ports wait on their
	// buffers, and the monitors look last
	for _, gd := range nd.Generators {
		net.generators[gd.Name].Start(net.evtMgr)
	}
	for _, name := range net.portNames {
		net.ports[name].Start(net.evtMgr)
	}
	for _, name := range net.monitorNames {
		net.monitors[name].Start(net.evtMgr)
	}

	logrus.Infof("network %s built with %d generators, %d ports, %d monitors, %d demuxes, %d sinks",
		nd.Name, len(net.generators), len(net.ports), len(net.monitors), len(net.demuxes), len(net.sinks))
	for _, gd := range nd.Generators {
		if route, rerr := FlowPath(nd, gd.Name); rerr == nil {
			logrus.Debugf("route of %s: %s", gd.Name, ShowFlowPath(route))
		}
	}
	return net, nil
}

// designate picks the step monitor, the cost monitors and the controllable
// ports.  Without explicit marks every monitor counts toward the cost and
// every port is controllable.
func (net *Network) designate(nd *NetworkDesc) error {
	stepName := nd.StepMonitor
	if len(stepName) == 0 {
		stepName = net.monitorNames[0]
	}
	net.stepMonitor = net.monitors[stepName]

	for _, md := range nd.Monitors {
		if md.Cost {
			net.costMonitors = append(net.costMonitors, net.monitors[md.Name])
		}
	}
	if len(net.costMonitors) == 0 {
		for _, name := range net.monitorNames {
			net.costMonitors = append(net.costMonitors, net.monitors[name])
		}
	}

	for _, pd := range nd.Ports {
		if pd.Controllable {
			net.controllable = append(net.controllable, net.ports[pd.Name])
		}
	}
	if len(net.controllable) == 0 {
		for _, name := range net.portNames {
			net.controllable = append(net.controllable, net.ports[name])
		}
	}

	// the observation is keyed by class, so classes may not repeat across controllable ports
	owner := make(map[int]string)
	for _, p := range net.controllable {
		for _, class := range p.Classes() {
			if other, present := owner[class]; present {
				return fmt.Errorf("class %d is served by controllable ports %s and %s", class, other, p.Name())
			}
			owner[class] = p.Name()
		}
	}
	return nil
}

// Control sets the effort weights of the named port
func (net *Network) Control(port string, weights []float64) error {
	p, present := net.ports[port]
	if !present {
		return fmt.Errorf("network %s has no port %s", net.desc.Name, port)
	}
	return p.Control(weights)
}

// Step runs the simulation until the step monitor has taken one more sample.
// The event manager stops once its clock reaches the limit, so the limit is one
// tick past the sample; every event sharing the sample's tick, such as the
// samples of other monitors, runs before Step returns.
func (net *Network) Step() error {
	pm := net.stepMonitor
	before := pm.Samples()
	net.evtMgr.Run(pm.NextSampleAt() + vrtime.SecondPerTick)
	if pm.Samples() != before+1 {
		return fmt.Errorf("step of network %s ended with monitor %s at %d samples, expected %d",
			net.desc.Name, pm.Name(), pm.Samples(), before+1)
	}
	net.steps += 1
	logrus.Debugf("network %s step %d at time %g, cost %g", net.desc.Name, net.steps, net.Now(), net.HoldingCost())
	return nil
}

// RunUntil runs the simulation up to the given time
func (net *Network) RunUntil(limit float64) {
	net.evtMgr.Run(limit)
}

// Observation merges the class occupancies of the controllable ports
func (net *Network) Observation() map[int]float64 {
	obs := make(map[int]float64)
	for _, p := range net.controllable {
		for class, size := range p.State() {
			obs[class] = size
		}
	}
	return obs
}

// HoldingCost sums the average occupancies seen by the cost monitors
func (net *Network) HoldingCost() float64 {
	cost := 0.0
	for _, pm := range net.costMonitors {
		cost += pm.Average()
	}
	return cost
}

// Reset builds a fresh network from the same description.  With a seed the new
// network repeats the random draws of the old one; without, the rngstream
// streams continue where they were.
func (net *Network) Reset() (*Network, error) {
	var tm *TraceManager
	if net.trace != nil {
		tm = CreateTraceManager(net.trace.ExpName, net.trace.InUse)
	}
	return BuildNetwork(net.desc, tm)
}

// Now is the current simulation time
func (net *Network) Now() float64 {
	return net.evtMgr.CurrentSeconds()
}

// Drops is the number of jobs lost at ports and demuxes
func (net *Network) Drops() int {
	drops := 0
	for _, p := range net.ports {
		drops += p.Drops()
	}
	for _, fd := range net.demuxes {
		drops += fd.Drops()
	}
	return drops
}

// ControllableClasses lists the classes in the observation, sorted
func (net *Network) ControllableClasses() []int {
	classes := make([]int, 0)
	for _, p := range net.controllable {
		classes = append(classes, p.Classes()...)
	}
	slices.Sort(classes)
	return classes
}

func (net *Network) Port(name string) *SwitchPort        { return net.ports[name] }
func (net *Network) Monitor(name string) *PortMonitor    { return net.monitors[name] }
func (net *Network) Sink(name string) *JobSink           { return net.sinks[name] }
func (net *Network) Demux(name string) *FlowDemux        { return net.demuxes[name] }
func (net *Network) Generator(name string) *JobGenerator { return net.generators[name] }
func (net *Network) Desc() *NetworkDesc                  { return net.desc.Clone() }
func (net *Network) EvtMgr() *evtm.EventManager          { return net.evtMgr }
func (net *Network) StepMonitor() *PortMonitor           { return net.stepMonitor }
func (net *Network) Steps() int                          { return net.steps }
func (net *Network) Trace() *TraceManager                { return net.trace }
