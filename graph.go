package qnet

// graph.go follows the jobs of every generator through a NetworkDesc.  A job's
// route depends on its class, which a demux may change, so the graph built here
// has one node per (component, class) pair and an edge wherever a job of that
// class is handed on.  Each edge weighs 1, so a shortest path from a generator
// to a sink is the route its jobs take, counted in hops.

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// flowNode identifies a job of some class sitting at some component
type flowNode struct {
	name  string
	class int
}

func (fn flowNode) String() string {
	return fn.name + ":" + strconv.Itoa(fn.class)
}

// flowGraph is the graph of a NetworkDesc together with the maps between
// flowNodes and graph node ids
type flowGraph struct {
	g      *simple.WeightedDirectedGraph
	ids    map[flowNode]int64
	byID   map[int64]flowNode
	sinks  []int64
	routed map[string]bool // ports some generator's jobs reach
}

func (fg *flowGraph) node(fn flowNode) int64 {
	if id, present := fg.ids[fn]; present {
		return id
	}
	id := int64(len(fg.ids))
	fg.ids[fn] = id
	fg.byID[id] = fn
	fg.g.AddNode(simple.Node(id))
	return id
}

func (fg *flowGraph) connect(from, to flowNode) {
	fid, tid := fg.node(from), fg.node(to)
	// a self loop never changes reachability
	if fid == tid {
		return
	}
	fg.g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(fid), T: simple.Node(tid), W: 1.0})
}

// next returns where a job of class at the named component goes, and the class it has there.
// The boolean is false when the job leaves the network, at a sink or by a drop.
func next(nd *NetworkDesc, at flowNode) (flowNode, bool) {
	switch nd.objType(at.name) {
	case "generator":
		for _, gd := range nd.Generators {
			if gd.Name == at.name {
				return flowNode{name: gd.Out, class: at.class}, true
			}
		}
	case "port":
		pd, _ := nd.port(at.name)
		return flowNode{name: pd.Out, class: at.class}, true
	case "demux":
		for _, dd := range nd.Demuxes {
			if dd.Name != at.name {
				continue
			}
			for _, route := range dd.Routes {
				if route.Class != at.class {
					continue
				}
				class := at.class
				if route.Upgrade > 0 {
					class = route.Upgrade
				}
				return flowNode{name: route.Out, class: class}, true
			}
			if len(dd.Default) > 0 {
				return flowNode{name: dd.Default, class: at.class}, true
			}
		}
	}
	return flowNode{}, false
}

// buildFlowGraph walks the route of every generator's jobs
func buildFlowGraph(nd *NetworkDesc) *flowGraph {
	fg := &flowGraph{
		g:      simple.NewWeightedDirectedGraph(0, math.Inf(1)),
		ids:    make(map[flowNode]int64),
		byID:   make(map[int64]flowNode),
		routed: make(map[string]bool),
	}

	for _, gd := range nd.Generators {
		here := flowNode{name: gd.Name, class: gd.Class}
		fg.node(here)
		visited := map[flowNode]bool{here: true}
		for {
			there, moves := next(nd, here)
			if !moves {
				break
			}
			fg.connect(here, there)
			switch nd.objType(there.name) {
			case "sink":
				fg.sinks = append(fg.sinks, fg.ids[there])
			case "port":
				fg.routed[there.name] = true
			}
			if visited[there] {
				break
			}
			visited[there] = true
			here = there
		}
	}
	return fg
}

// FlowPath returns the components the jobs of the named generator visit, each
// with the class the job has there, ending at a sink.  An error is returned when
// the jobs never reach a sink.
func FlowPath(nd *NetworkDesc, generator string) ([]string, error) {
	if nd.objType(generator) != "generator" {
		return nil, fmt.Errorf("%q is not a generator", generator)
	}
	fg := buildFlowGraph(nd)

	var class int
	for _, gd := range nd.Generators {
		if gd.Name == generator {
			class = gd.Class
		}
	}
	src := fg.ids[flowNode{name: generator, class: class}]
	shortest := path.DijkstraFrom(simple.Node(src), fg.g)

	best := math.Inf(1)
	var route []string
	for _, sink := range fg.sinks {
		nodes, weight := shortest.To(sink)
		if weight < best {
			best = weight
			route = make([]string, 0, len(nodes))
			for _, node := range nodes {
				route = append(route, fg.byID[node.ID()].String())
			}
		}
	}
	if math.IsInf(best, 1) {
		return nil, fmt.Errorf("jobs of generator %s never reach a sink", generator)
	}
	return route, nil
}

// ShowFlowPath joins the components of a generator's route with arrows
func ShowFlowPath(route []string) string {
	return strings.Join(route, " -> ")
}

// checkTopology reports every generator whose jobs never reach a sink, and
// every port that some job reaches with a class the port does not serve.  Ports
// that no generator's jobs reach are only logged.
func checkTopology(nd *NetworkDesc) error {
	errs := make([]error, 0)
	for _, gd := range nd.Generators {
		if _, err := FlowPath(nd, gd.Name); err != nil {
			errs = append(errs, err)
		}
	}

	fg := buildFlowGraph(nd)
	for id := int64(0); id < int64(len(fg.byID)); id++ {
		fn := fg.byID[id]
		if nd.objType(fn.name) != "port" {
			continue
		}
		pd, _ := nd.port(fn.name)
		if !slices.Contains(pd.Classes, fn.class) {
			errs = append(errs, fmt.Errorf("jobs of class %d reach port %s, which does not serve it", fn.class, fn.name))
		}
	}
	for _, pd := range nd.Ports {
		if !fg.routed[pd.Name] {
			logrus.Warnf("no generator's jobs reach port %s", pd.Name)
		}
	}
	return ReportErrs(errs)
}
