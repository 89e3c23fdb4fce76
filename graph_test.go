package qnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowPath_FollowsUpgrades(t *testing.T) {
	nd := CrissCrossDesc()

	route, err := FlowPath(nd, "Class1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Class1:1", "s1:1", "demux1:1", "s2:3", "sink2:3"}, route)

	route, err = FlowPath(nd, "Class2")
	require.NoError(t, err)
	assert.Equal(t, "Class2:2 -> s1:2 -> demux1:2 -> sink1:2", ShowFlowPath(route))
}

func TestFlowPath_DefaultRoute(t *testing.T) {
	nd := CrissCrossDesc()
	nd.Demuxes[0].Routes = nd.Demuxes[0].Routes[:1]
	nd.Demuxes[0].Default = "sink1"

	route, err := FlowPath(nd, "Class2")
	require.NoError(t, err)
	assert.Equal(t, "sink1:2", route[len(route)-1])
}

func TestFlowPath_LoopNeverReachesSink(t *testing.T) {
	// GIVEN two ports feeding each other
	nd := CreateNetworkDesc("loop")
	nd.AddGenerator(GeneratorDesc{Name: "g", Class: 1, Arrival: ExpDist(1.0), Size: ExpDist(1.0), Out: "a"})
	nd.AddPort(PortDesc{Name: "a", Classes: []int{1}, Rates: []float64{1.0}, Out: "b"})
	nd.AddPort(PortDesc{Name: "b", Classes: []int{1}, Rates: []float64{1.0}, Out: "a"})
	nd.AddMonitor(MonitorDesc{Name: "m", Port: "a", Interval: ConstDist(1.0)})
	nd.AddSink(SinkDesc{Name: "k"})

	// WHEN the route of g is asked for
	_, err := FlowPath(nd, "g")

	// THEN there is none, and the description does not validate
	assert.Error(t, err)
	assert.Error(t, nd.Validate())
}

func TestFlowPath_UnknownGenerator(t *testing.T) {
	_, err := FlowPath(CrissCrossDesc(), "s1")
	assert.Error(t, err)
}
