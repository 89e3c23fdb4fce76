package qnet

// PortReport is the state of a port when the report was taken
type PortReport struct {
	Name    string          `json:"name" yaml:"name"`
	Weights []float64       `json:"weights" yaml:"weights"`
	State   map[int]float64 `json:"state" yaml:"state"`
	Busy    bool            `json:"busy" yaml:"busy"`
	Served  int             `json:"served" yaml:"served"`
	Drops   int             `json:"drops" yaml:"drops"`
}

// MonitorReport holds the samples of a monitor and the running averages after each
type MonitorReport struct {
	Name     string    `json:"name" yaml:"name"`
	Port     string    `json:"port" yaml:"port"`
	Average  float64   `json:"average" yaml:"average"`
	StdDev   float64   `json:"stddev" yaml:"stddev"`
	History  []float64 `json:"history" yaml:"history"`
	Averages []float64 `json:"averages" yaml:"averages"`
}

type DemuxReport struct {
	Name  string `json:"name" yaml:"name"`
	Drops int    `json:"drops" yaml:"drops"`
}

// SinkReport holds the series a sink recorded
type SinkReport struct {
	Name     string    `json:"name" yaml:"name"`
	Jobs     int       `json:"jobs" yaml:"jobs"`
	Bytes    float64   `json:"bytes" yaml:"bytes"`
	Arrivals []float64 `json:"arrivals,omitempty" yaml:"arrivals,omitempty"`
	Waits    []float64 `json:"waits,omitempty" yaml:"waits,omitempty"`
	Stats    WaitStats `json:"stats" yaml:"stats"`
}

// Report is a snapshot of a Network, detached from it
type Report struct {
	Name        string          `json:"name" yaml:"name"`
	Time        float64         `json:"time" yaml:"time"`
	Steps       int             `json:"steps" yaml:"steps"`
	HoldingCost float64         `json:"holdingcost" yaml:"holdingcost"`
	Observation map[int]float64 `json:"observation" yaml:"observation"`
	Ports       []PortReport    `json:"ports" yaml:"ports"`
	Monitors    []MonitorReport `json:"monitors" yaml:"monitors"`
	Demuxes     []DemuxReport   `json:"demuxes,omitempty" yaml:"demuxes,omitempty"`
	Sinks       []SinkReport    `json:"sinks" yaml:"sinks"`
}

// Report takes a snapshot of the network; components are listed in description order
func (net *Network) Report() *Report {
	rpt := &Report{
		Name:        net.desc.Name,
		Time:        net.Now(),
		Steps:       net.steps,
		HoldingCost: net.HoldingCost(),
		Observation: net.Observation(),
	}

	for _, name := range net.portNames {
		p := net.ports[name]
		rpt.Ports = append(rpt.Ports, PortReport{Name: name, Weights: p.Weights(), State: p.State(),
			Busy: p.Busy(), Served: p.Served(), Drops: p.Drops()})
	}
	for _, name := range net.monitorNames {
		pm := net.monitors[name]
		rpt.Monitors = append(rpt.Monitors, MonitorReport{Name: name, Port: pm.Port().Name(),
			Average: pm.Average(), StdDev: pm.StdDev(), History: pm.History(), Averages: pm.Averages()})
	}
	for _, name := range net.demuxNames {
		rpt.Demuxes = append(rpt.Demuxes, DemuxReport{Name: name, Drops: net.demuxes[name].Drops()})
	}
	for _, name := range net.sinkNames {
		js := net.sinks[name]
		rpt.Sinks = append(rpt.Sinks, SinkReport{Name: name, Jobs: js.JobsReceived(), Bytes: js.BytesReceived(),
			Arrivals: js.Arrivals(), Waits: js.Waits(), Stats: js.Stats()})
	}
	return rpt
}

// WriteToFile stores the Report to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (rpt *Report) WriteToFile(filename string) error {
	return writeSerialized(filename, *rpt)
}
