package qnet

// desc-topo.go holds the serializable description of a queueing network.
// A NetworkDesc is pointer free, so that it can be written to and read from
// yaml or json, and is turned into running components by BuildNetwork.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// A GeneratorDesc describes a JobGenerator.  Out names the port, demux or sink
// receiving its jobs.
type GeneratorDesc struct {
	Name         string   `json:"name" yaml:"name"`
	Class        int      `json:"class" yaml:"class"`
	Arrival      DistDesc `json:"arrival" yaml:"arrival"`
	Size         DistDesc `json:"size" yaml:"size"`
	InitialDelay float64  `json:"initialdelay,omitempty" yaml:"initialdelay,omitempty"`
	Lifetime     float64  `json:"lifetime,omitempty" yaml:"lifetime,omitempty"`
	Out          string   `json:"out" yaml:"out"`
	Groups       []string `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// A PortDesc describes a SwitchPort.  Classes and Rates are parallel lists;
// Weights, when present, is the initial effort vector (uniform otherwise).
// A BufferLimit of zero means no limit.
type PortDesc struct {
	Name         string    `json:"name" yaml:"name"`
	Classes      []int     `json:"classes" yaml:"classes"`
	Rates        []float64 `json:"rates" yaml:"rates"`
	Weights      []float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
	BufferLimit  float64   `json:"bufferlimit,omitempty" yaml:"bufferlimit,omitempty"`
	LimitBytes   bool      `json:"limitbytes,omitempty" yaml:"limitbytes,omitempty"`
	Controllable bool      `json:"controllable,omitempty" yaml:"controllable,omitempty"`
	Out          string    `json:"out" yaml:"out"`
	Groups       []string  `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// A MonitorDesc describes a PortMonitor.  Cost marks the monitors whose averages
// make up the holding cost.
type MonitorDesc struct {
	Name     string   `json:"name" yaml:"name"`
	Port     string   `json:"port" yaml:"port"`
	Interval DistDesc `json:"interval" yaml:"interval"`
	Cost     bool     `json:"cost,omitempty" yaml:"cost,omitempty"`
	Groups   []string `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// A RouteDesc is one line of a demux routing table.  Upgrade is the class the
// job carries from here on, 0 to keep its class.
type RouteDesc struct {
	Class   int    `json:"class" yaml:"class"`
	Out     string `json:"out" yaml:"out"`
	Upgrade int    `json:"upgrade,omitempty" yaml:"upgrade,omitempty"`
}

// A DemuxDesc describes a FlowDemux.  Routes may lead to ports and sinks.
type DemuxDesc struct {
	Name    string      `json:"name" yaml:"name"`
	Routes  []RouteDesc `json:"routes" yaml:"routes"`
	Default string      `json:"default,omitempty" yaml:"default,omitempty"`
}

// A SinkDesc describes a JobSink.  A non-empty Classes list restricts the
// statistics to jobs of those classes.  RecordWaits defaults to true.
type SinkDesc struct {
	Name           string   `json:"name" yaml:"name"`
	RecordArrivals bool     `json:"recordarrivals,omitempty" yaml:"recordarrivals,omitempty"`
	AbsoluteTime   bool     `json:"absolutetime,omitempty" yaml:"absolutetime,omitempty"`
	RecordWaits    *bool    `json:"recordwaits,omitempty" yaml:"recordwaits,omitempty"`
	Debug          bool     `json:"debug,omitempty" yaml:"debug,omitempty"`
	Classes        []int    `json:"classes,omitempty" yaml:"classes,omitempty"`
	Groups         []string `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// A NetworkDesc describes a whole network.  Seed selects seeded random streams
// when present.  StepMonitor names the monitor whose ticks define a step; the
// first monitor is used when it is empty.
type NetworkDesc struct {
	Name        string          `json:"name" yaml:"name"`
	Seed        *int64          `json:"seed,omitempty" yaml:"seed,omitempty"`
	StepMonitor string          `json:"stepmonitor,omitempty" yaml:"stepmonitor,omitempty"`
	Generators  []GeneratorDesc `json:"generators" yaml:"generators"`
	Ports       []PortDesc      `json:"ports" yaml:"ports"`
	Monitors    []MonitorDesc   `json:"monitors" yaml:"monitors"`
	Demuxes     []DemuxDesc     `json:"demuxes,omitempty" yaml:"demuxes,omitempty"`
	Sinks       []SinkDesc      `json:"sinks" yaml:"sinks"`
}

// CreateNetworkDesc is an initialization constructor.
// Its output struct has methods for integrating data.
func CreateNetworkDesc(name string) *NetworkDesc {
	nd := new(NetworkDesc)
	nd.Name = name
	nd.Generators = make([]GeneratorDesc, 0)
	nd.Ports = make([]PortDesc, 0)
	nd.Monitors = make([]MonitorDesc, 0)
	nd.Demuxes = make([]DemuxDesc, 0)
	nd.Sinks = make([]SinkDesc, 0)
	return nd
}

func (nd *NetworkDesc) AddGenerator(gd GeneratorDesc) { nd.Generators = append(nd.Generators, gd) }
func (nd *NetworkDesc) AddPort(pd PortDesc)           { nd.Ports = append(nd.Ports, pd) }
func (nd *NetworkDesc) AddMonitor(md MonitorDesc)     { nd.Monitors = append(nd.Monitors, md) }
func (nd *NetworkDesc) AddDemux(dd DemuxDesc)         { nd.Demuxes = append(nd.Demuxes, dd) }
func (nd *NetworkDesc) AddSink(sd SinkDesc)           { nd.Sinks = append(nd.Sinks, sd) }

// SetSeed selects seeded random streams
func (nd *NetworkDesc) SetSeed(seed int64) {
	nd.Seed = &seed
}

// Clone returns a deep copy, so that overrides applied to it leave nd alone
func (nd *NetworkDesc) Clone() *NetworkDesc {
	cp := *nd
	if nd.Seed != nil {
		seed := *nd.Seed
		cp.Seed = &seed
	}
	cp.Generators = make([]GeneratorDesc, len(nd.Generators))
	for idx, gd := range nd.Generators {
		gd.Groups = slices.Clone(gd.Groups)
		cp.Generators[idx] = gd
	}
	cp.Ports = make([]PortDesc, len(nd.Ports))
	for idx, pd := range nd.Ports {
		pd.Classes = slices.Clone(pd.Classes)
		pd.Rates = slices.Clone(pd.Rates)
		pd.Weights = slices.Clone(pd.Weights)
		pd.Groups = slices.Clone(pd.Groups)
		cp.Ports[idx] = pd
	}
	cp.Monitors = make([]MonitorDesc, len(nd.Monitors))
	for idx, md := range nd.Monitors {
		md.Groups = slices.Clone(md.Groups)
		cp.Monitors[idx] = md
	}
	cp.Demuxes = make([]DemuxDesc, len(nd.Demuxes))
	for idx, dd := range nd.Demuxes {
		dd.Routes = slices.Clone(dd.Routes)
		cp.Demuxes[idx] = dd
	}
	cp.Sinks = make([]SinkDesc, len(nd.Sinks))
	for idx, sd := range nd.Sinks {
		if sd.RecordWaits != nil {
			rw := *sd.RecordWaits
			sd.RecordWaits = &rw
		}
		sd.Classes = slices.Clone(sd.Classes)
		sd.Groups = slices.Clone(sd.Groups)
		cp.Sinks[idx] = sd
	}
	return &cp
}

// objType returns the kind of component carrying the name, "" if none does
func (nd *NetworkDesc) objType(name string) string {
	for _, gd := range nd.Generators {
		if gd.Name == name {
			return "generator"
		}
	}
	for _, pd := range nd.Ports {
		if pd.Name == name {
			return "port"
		}
	}
	for _, md := range nd.Monitors {
		if md.Name == name {
			return "monitor"
		}
	}
	for _, dd := range nd.Demuxes {
		if dd.Name == name {
			return "demux"
		}
	}
	for _, sd := range nd.Sinks {
		if sd.Name == name {
			return "sink"
		}
	}
	return ""
}

// port returns the description of the named port
func (nd *NetworkDesc) port(name string) (*PortDesc, bool) {
	for idx := range nd.Ports {
		if nd.Ports[idx].Name == name {
			return &nd.Ports[idx], true
		}
	}
	return nil, false
}

// checkReceiver reports an error unless name is a port, demux or sink. A job of
// class reaching a port must be one the port serves.
func (nd *NetworkDesc) checkReceiver(from, name string, class *int) error {
	switch nd.objType(name) {
	case "port":
		if class != nil {
			pd, _ := nd.port(name)
			if !slices.Contains(pd.Classes, *class) {
				return fmt.Errorf("%s sends class %d to port %s, which does not serve it", from, *class, name)
			}
		}
		return nil
	case "demux", "sink":
		return nil
	case "":
		return fmt.Errorf("%s sends jobs to unknown component %q", from, name)
	}
	return fmt.Errorf("%s sends jobs to %s, which cannot receive them", from, name)
}

// Validate checks the description for every problem it can find, and returns
// them together as one error
func (nd *NetworkDesc) Validate() error {
	errs := make([]error, 0)

	if nd.Seed != nil && *nd.Seed < 0 {
		errs = append(errs, fmt.Errorf("seed must be a non-negative integer or omitted, not %d", *nd.Seed))
	}

	names := make(map[string]bool)
	checkName := func(kind, name string) {
		if len(name) == 0 {
			errs = append(errs, fmt.Errorf("%s without a name", kind))
			return
		}
		if names[name] {
			errs = append(errs, fmt.Errorf("name %s used more than once", name))
		}
		names[name] = true
	}

	for _, gd := range nd.Generators {
		checkName("generator", gd.Name)
		if _, err := gd.Arrival.Sampler(); err != nil {
			errs = append(errs, fmt.Errorf("generator %s arrival: %w", gd.Name, err))
		}
		if _, err := gd.Size.Sampler(); err != nil {
			errs = append(errs, fmt.Errorf("generator %s size: %w", gd.Name, err))
		} else if strings.ToLower(gd.Size.Dist) == "uniform" && !(gd.Size.Min > 0.0) {
			errs = append(errs, fmt.Errorf("generator %s size distribution can draw zero", gd.Name))
		}
		class := gd.Class
		if err := nd.checkReceiver("generator "+gd.Name, gd.Out, &class); err != nil {
			errs = append(errs, err)
		}
	}

	for _, pd := range nd.Ports {
		checkName("port", pd.Name)
		if len(pd.Classes) == 0 {
			errs = append(errs, fmt.Errorf("port %s serves no class", pd.Name))
		}
		if len(pd.Classes) != len(pd.Rates) {
			errs = append(errs, fmt.Errorf("port %s has %d classes but %d rates", pd.Name, len(pd.Classes), len(pd.Rates)))
		}
		for _, rate := range pd.Rates {
			if !(rate > 0.0) {
				errs = append(errs, fmt.Errorf("port %s has non-positive rate %g", pd.Name, rate))
			}
		}
		if len(pd.Weights) > 0 {
			if err := checkWeights(pd.Name, len(pd.Classes), pd.Weights); err != nil {
				errs = append(errs, err)
			}
		}
		if pd.BufferLimit < 0.0 {
			errs = append(errs, fmt.Errorf("port %s has negative buffer limit", pd.Name))
		}
		if err := nd.checkReceiver("port "+pd.Name, pd.Out, nil); err != nil {
			errs = append(errs, err)
		}
	}

	for _, md := range nd.Monitors {
		checkName("monitor", md.Name)
		if nd.objType(md.Port) != "port" {
			errs = append(errs, fmt.Errorf("monitor %s watches %q, which is not a port", md.Name, md.Port))
		}
		if _, err := md.Interval.Sampler(); err != nil {
			errs = append(errs, fmt.Errorf("monitor %s interval: %w", md.Name, err))
		}
	}
	if len(nd.Monitors) == 0 {
		errs = append(errs, fmt.Errorf("network %s has no monitor", nd.Name))
	}
	if len(nd.StepMonitor) > 0 && nd.objType(nd.StepMonitor) != "monitor" {
		errs = append(errs, fmt.Errorf("step monitor %q is not a monitor", nd.StepMonitor))
	}

	for _, dd := range nd.Demuxes {
		checkName("demux", dd.Name)
		routed := make(map[int]bool)
		for _, route := range dd.Routes {
			if routed[route.Class] {
				errs = append(errs, fmt.Errorf("demux %s routes class %d twice", dd.Name, route.Class))
			}
			routed[route.Class] = true
			if route.Upgrade < 0 {
				errs = append(errs, fmt.Errorf("demux %s upgrades class %d to negative class", dd.Name, route.Class))
			}
			class := route.Class
			if route.Upgrade > 0 {
				class = route.Upgrade
			}
			if nd.objType(route.Out) == "demux" {
				errs = append(errs, fmt.Errorf("demux %s routes to demux %s", dd.Name, route.Out))
			} else if err := nd.checkReceiver("demux "+dd.Name, route.Out, &class); err != nil {
				errs = append(errs, err)
			}
		}
		if len(dd.Default) > 0 {
			if kind := nd.objType(dd.Default); kind != "port" && kind != "sink" {
				errs = append(errs, fmt.Errorf("demux %s default %q is not a port or sink", dd.Name, dd.Default))
			}
		}
	}

	for _, sd := range nd.Sinks {
		checkName("sink", sd.Name)
	}

	if len(errs) == 0 {
		if err := checkTopology(nd); err != nil {
			errs = append(errs, err)
		}
	}
	return ReportErrs(errs)
}

// checkWeights applies the rules Control enforces on an effort vector
func checkWeights(name string, classes int, weights []float64) error {
	if len(weights) != classes {
		return fmt.Errorf("port %s has %d classes, weight vector has %d entries", name, classes, len(weights))
	}
	sum := 0.0
	for _, w := range weights {
		if w < 0.0 {
			return fmt.Errorf("port %s has negative weight %g", name, w)
		}
		sum += w
	}
	if sum > 1.0+weightTol {
		return fmt.Errorf("port %s weights sum to %g, more than 1", name, sum)
	}
	return nil
}

// WriteToFile stores the NetworkDesc struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (nd *NetworkDesc) WriteToFile(filename string) error {
	return writeSerialized(filename, *nd)
}

// ReadNetworkDesc deserializes a byte slice holding a representation of a NetworkDesc.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.  A deserialized representation is returned, or an error if one is generated
// from a file read or the deserialization.
func ReadNetworkDesc(filename string, useYAML bool, dict []byte) (*NetworkDesc, error) {
	var err error

	// read from the file only if the byte slice is empty
	if len(dict) == 0 {
		fileInfo, serr := os.Stat(filename)
		if serr != nil || fileInfo.IsDir() {
			return nil, fmt.Errorf("network description %s does not exist or cannot be read", filename)
		}
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := NetworkDesc{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, err
	}
	return &example, nil
}

// UseYAML reports whether the extension of filename calls for yaml
func UseYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

// CrissCrossDesc describes the criss-cross network.  Class 1 and 2 jobs share
// server s1.  A class 1 job leaving s1 becomes a class 3 job and moves to s2;
// a class 2 job leaving s1 exits through sink1, a class 3 job leaving s2 exits
// through sink2.  Both servers are watched every 5 time units.
func CrissCrossDesc() *NetworkDesc {
	nd := CreateNetworkDesc("crisscross")
	nd.StepMonitor = "s1-monitor"

	nd.AddGenerator(GeneratorDesc{Name: "Class1", Class: 1, Arrival: ExpDist(1.0), Size: ExpDist(1.0), Out: "s1"})
	nd.AddGenerator(GeneratorDesc{Name: "Class2", Class: 2, Arrival: ExpDist(0.6), Size: ExpDist(1.0), Out: "s1"})

	nd.AddPort(PortDesc{Name: "s1", Classes: []int{1, 2}, Rates: []float64{2.0, 1.2}, Controllable: true, Out: "demux1"})
	nd.AddPort(PortDesc{Name: "s2", Classes: []int{3}, Rates: []float64{1.0}, Controllable: true, Out: "sink2"})

	nd.AddMonitor(MonitorDesc{Name: "s1-monitor", Port: "s1", Interval: ConstDist(5.0), Cost: true})
	nd.AddMonitor(MonitorDesc{Name: "s2-monitor", Port: "s2", Interval: ConstDist(5.0), Cost: true})

	nd.AddDemux(DemuxDesc{Name: "demux1", Routes: []RouteDesc{
		{Class: 1, Out: "s2", Upgrade: 3},
		{Class: 2, Out: "sink1"},
	}})

	nd.AddSink(SinkDesc{Name: "sink1", RecordArrivals: true, AbsoluteTime: true})
	nd.AddSink(SinkDesc{Name: "sink2", RecordArrivals: true, AbsoluteTime: true})
	return nd
}

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
// with comma-separated report of all the constituent errors, and returns it.
func ReportErrs(errs []error) error {
	errMsg := make([]string, 0)
	for _, err := range errs {
		if err != nil {
			errMsg = append(errMsg, err.Error())
		}
	}
	if len(errMsg) == 0 {
		return nil
	}

	return errors.New(strings.Join(errMsg, ","))
}

// CheckReadableFiles probes the file system to ensure that every
// one of the argument filenames exists and is readable
func CheckReadableFiles(names []string) (bool, error) {
	return CheckFiles(names, true)
}

// CheckOutputFiles probes the file system to ensure that every
// argument filename can be written.
func CheckOutputFiles(names []string) (bool, error) {
	return CheckFiles(names, false)
}

// CheckFiles probes the file system for permitted access to all the
// argument filenames, optionally checking also for the existence
// of those files for the purposes of reading them.
func CheckFiles(names []string, checkExistence bool) (bool, error) {
	errs := make([]error, 0)

	for _, name := range names {
		// skip unset names
		if len(name) == 0 {
			continue
		}

		// split off the directory portion of the path
		directory, _ := filepath.Split(name)
		if len(directory) == 0 {
			continue
		}
		if _, err := os.Stat(directory); err != nil {
			errs = append(errs, err)
		}
	}

	if checkExistence {
		for _, name := range names {
			if len(name) == 0 {
				continue
			}
			if _, err := os.Stat(name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) == 0 {
		return true, nil
	}
	return false, ReportErrs(errs)
}
