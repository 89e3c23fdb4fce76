package qnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildCrissCross(t *testing.T, seed int64) *Network {
	t.Helper()
	nd := CrissCrossDesc()
	nd.SetSeed(seed)
	net, err := BuildNetwork(nd, nil)
	require.NoError(t, err)
	return net
}

func TestNetwork_Step_AdvancesOneMonitorInterval(t *testing.T) {
	// GIVEN the criss-cross network
	net := buildCrissCross(t, 42)

	// WHEN it is stepped three times
	for step := 1; step <= 3; step++ {
		require.NoError(t, net.Step())

		// THEN a monitor sharing the step monitor's sample time is sampled in the same step
		assert.Equal(t, step, net.Monitor("s2-monitor").Samples())
	}

	// THEN both monitors sampled three times and the clock is at 15
	assert.Equal(t, 3, net.Steps())
	assert.InDelta(t, 15.0, net.Now(), 1e-5)
	assert.Equal(t, 3, net.Monitor("s1-monitor").Samples())
	assert.Equal(t, 3, net.Monitor("s2-monitor").Samples())
	assert.Same(t, net.Monitor("s1-monitor"), net.StepMonitor())
}

func TestNetwork_ObservationAndCost(t *testing.T) {
	net := buildCrissCross(t, 42)
	for step := 0; step < 5; step++ {
		require.NoError(t, net.Step())
	}

	obs := net.Observation()
	assert.Len(t, obs, 3)
	s1, s2 := net.Port("s1").State(), net.Port("s2").State()
	assert.Equal(t, s1[1], obs[1])
	assert.Equal(t, s1[2], obs[2])
	assert.Equal(t, s2[3], obs[3])
	assert.Equal(t, []int{1, 2, 3}, net.ControllableClasses())

	expected := net.Monitor("s1-monitor").Average() + net.Monitor("s2-monitor").Average()
	assert.InDelta(t, expected, net.HoldingCost(), 1e-12)
}

func TestNetwork_JobsAreConserved(t *testing.T) {
	// GIVEN the criss-cross network run for twenty intervals
	net := buildCrissCross(t, 5)
	for step := 0; step < 20; step++ {
		require.NoError(t, net.Step())
	}

	inService := func(p *SwitchPort) int {
		if p.Busy() {
			return 1
		}
		return 0
	}
	s1, s2 := net.Port("s1"), net.Port("s2")
	sink1, sink2 := net.Sink("sink1"), net.Sink("sink2")

	// THEN every generated job is buffered, in service, or gone downstream
	sent := net.Generator("Class1").Sent() + net.Generator("Class2").Sent()
	assert.Equal(t, sent, s1.Served()+s1.QueueLen(1)+s1.QueueLen(2)+inService(s1))
	assert.Equal(t, s1.Served(), sink1.JobsReceived()+s2.Served()+s2.QueueLen(3)+inService(s2))
	assert.Equal(t, s2.Served(), sink2.JobsReceived())
	assert.Equal(t, 0, net.Drops())

	for _, wait := range append(sink1.Waits(), sink2.Waits()...) {
		assert.GreaterOrEqual(t, wait, 0.0)
	}
}

func TestNetwork_SameSeedSameRun(t *testing.T) {
	// GIVEN two networks with the same seed, and a reset of the first
	net1 := buildCrissCross(t, 9)
	net2 := buildCrissCross(t, 9)

	// WHEN both are driven the same way
	for step := 0; step < 4; step++ {
		require.NoError(t, net1.Control("s1", []float64{0.7, 0.3}))
		require.NoError(t, net2.Control("s1", []float64{0.7, 0.3}))
		require.NoError(t, net1.Step())
		require.NoError(t, net2.Step())
	}
	reset, err := net1.Reset()
	require.NoError(t, err)
	for step := 0; step < 4; step++ {
		require.NoError(t, reset.Control("s1", []float64{0.7, 0.3}))
		require.NoError(t, reset.Step())
	}

	// THEN they saw the same occupancies
	assert.Equal(t, net1.Monitor("s1-monitor").History(), net2.Monitor("s1-monitor").History())
	assert.Equal(t, net1.Monitor("s2-monitor").History(), net2.Monitor("s2-monitor").History())
	assert.Equal(t, net1.Monitor("s1-monitor").History(), reset.Monitor("s1-monitor").History())
	assert.Equal(t, net1.Sink("sink1").Waits(), reset.Sink("sink1").Waits())
}

func TestNetwork_Control(t *testing.T) {
	net := buildCrissCross(t, 1)

	assert.NoError(t, net.Control("s1", []float64{1.0, 0.0}))
	assert.Equal(t, []float64{1.0, 0.0}, net.Port("s1").Weights())
	assert.Error(t, net.Control("s1", []float64{0.7, 0.7}))
	assert.Error(t, net.Control("s9", []float64{1.0}))
}

func TestBuildNetwork_RejectsInvalidDescriptions(t *testing.T) {
	nd := CrissCrossDesc()
	nd.SetSeed(-1)
	_, err := BuildNetwork(nd, nil)
	assert.Error(t, err)

	nd = CrissCrossDesc()
	nd.Ports[0].Rates = []float64{2.0}
	_, err = BuildNetwork(nd, nil)
	assert.Error(t, err)
}

func TestBuildNetwork_SharedClassAcrossControllablePorts(t *testing.T) {
	// GIVEN two controllable ports serving class 1 in tandem
	nd := CreateNetworkDesc("tandem")
	nd.SetSeed(1)
	nd.AddGenerator(GeneratorDesc{Name: "g", Class: 1, Arrival: ExpDist(1.0), Size: ExpDist(1.0), Out: "a"})
	nd.AddPort(PortDesc{Name: "a", Classes: []int{1}, Rates: []float64{2.0}, Out: "b"})
	nd.AddPort(PortDesc{Name: "b", Classes: []int{1}, Rates: []float64{2.0}, Out: "k"})
	nd.AddMonitor(MonitorDesc{Name: "m", Port: "a", Interval: ConstDist(1.0)})
	nd.AddSink(SinkDesc{Name: "k"})

	// WHEN it is built
	_, err := BuildNetwork(nd, nil)

	// THEN the observation would be ambiguous
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class 1")

	// WHEN only one port is controllable
	nd.Ports[0].Controllable = true
	net, err := BuildNetwork(nd, nil)

	// THEN it builds, and the first monitor defines a step
	require.NoError(t, err)
	require.NoError(t, net.Step())
	assert.Equal(t, 1, net.Monitor("m").Samples())
}

func TestNetwork_BufferLimitsDrop(t *testing.T) {
	// GIVEN the criss-cross network with a tight buffer at s1
	nd := CrissCrossDesc()
	nd.SetSeed(2)
	nd.Ports[0].BufferLimit = 2
	net, err := BuildNetwork(nd, nil)
	require.NoError(t, err)

	// WHEN it runs for a while with s1 serving only class 1
	require.NoError(t, net.Control("s1", []float64{1.0, 0.0}))
	for step := 0; step < 10; step++ {
		require.NoError(t, net.Step())
	}

	// THEN class 2 jobs pile up to the limit and the rest are dropped
	assert.Greater(t, net.Port("s1").Drops(), 0)
	assert.Less(t, net.Port("s1").TotalOccupancy(), 2.0+1e-12)
	assert.Equal(t, net.Port("s1").Drops(), net.Drops())
}
