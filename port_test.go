package qnet

import (
	"math"
	"testing"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitchPort_SingleClass_DeparturesFollowServiceTimes(t *testing.T) {
	// GIVEN one class served at rate 1.0 with weight 1 and no buffer limit
	evtMgr := evtm.New()
	p, _, _ := newPort([]int{1}, []float64{1.0}, 0.5)
	sink := CreateJobSink("sink")
	sink.RecordArrivals = true
	sink.AbsoluteTime = true
	p.SetOut(sink)
	require.NoError(t, p.Control([]float64{1.0}))
	p.Start(evtMgr)

	// WHEN jobs of size 1.0 arrive at t=0, 1, 2
	for idx, at := range []float64{0.0, 1.0, 2.0} {
		scheduleJob(evtMgr, p, at, 1, 1.0, idx+1)
	}
	evtMgr.Run(100.0)

	// THEN they leave at t=1, 2, 3 and each waited 1.0
	assert.InDeltaSlice(t, []float64{1.0, 2.0, 3.0}, sink.Arrivals(), 1e-9)
	assert.InDeltaSlice(t, []float64{1.0, 1.0, 1.0}, sink.Waits(), 1e-9)
	assert.Equal(t, 3, p.Served())
	assert.Equal(t, 0, p.Drops())
	assert.False(t, p.Busy())
}

func TestSwitchPort_BufferLimit_BackToBackPutsDropExcess(t *testing.T) {
	// GIVEN a started port counting jobs with a buffer limit of 2
	evtMgr := evtm.New()
	p, rec, _ := newPort([]int{1}, []float64{1.0})
	p.SetBufferLimit(2, false)
	p.Start(evtMgr)

	// WHEN four jobs are put before any service completes
	for seq := 1; seq <= 4; seq++ {
		p.Put(evtMgr, CreateJob(0.0, 1.0, seq, "test", 1))
	}

	// THEN two are accepted (one in service, one buffered) and two are dropped
	assert.Equal(t, 2, p.Drops())
	assert.True(t, p.Busy())
	assert.Equal(t, 1, p.QueueLen(1))
	assert.Equal(t, 1.0, p.TotalOccupancy())

	evtMgr.Run(100.0)
	require.Len(t, rec.jobs, 2)
	assert.Equal(t, 1, rec.jobs[0].SeqID)
	assert.Equal(t, 2, rec.jobs[1].SeqID)
}

func TestSwitchPort_ByteMode_LimitMeasuredInSize(t *testing.T) {
	// GIVEN a parked port (all weights zero) limited to 3.0 bytes
	evtMgr := evtm.New()
	p, _, _ := newPort([]int{1, 2}, []float64{1.0, 1.0})
	require.NoError(t, p.Control([]float64{0.0, 0.0}))
	p.SetBufferLimit(3.0, true)
	p.Start(evtMgr)

	// WHEN jobs totalling 2.9 bytes are put, then one of 0.2
	p.Put(evtMgr, CreateJob(0.0, 1.0, 1, "test", 1))
	p.Put(evtMgr, CreateJob(0.0, 1.5, 2, "test", 2))
	p.Put(evtMgr, CreateJob(0.0, 0.4, 3, "test", 1))
	p.Put(evtMgr, CreateJob(0.0, 0.2, 4, "test", 2))

	// THEN the last one is dropped and the state holds bytes per class
	assert.Equal(t, 1, p.Drops())
	state := p.State()
	assert.InDelta(t, 1.4, state[1], 1e-12)
	assert.InDelta(t, 1.5, state[2], 1e-12)
	assert.InDelta(t, 2.9, p.TotalOccupancy(), 1e-12)
	assert.False(t, p.Busy())
}

func TestSwitchPort_HeadOfLineBlocking_WaitsOnDrawnClass(t *testing.T) {
	// GIVEN a two-class port whose draws always select the first class
	evtMgr := evtm.New()
	p, rec, _ := newPort([]int{1, 2}, []float64{1.0, 1.0}, 0.1)
	p.Start(evtMgr)
	class, waiting := p.WaitingOn()
	require.True(t, waiting)
	require.Equal(t, 1, class)

	// WHEN a job of the other class arrives
	p.Put(evtMgr, CreateJob(0.0, 1.0, 1, "test", 2))

	// THEN it is not served while the server waits on class 1
	assert.False(t, p.Busy())
	assert.Equal(t, 1, p.QueueLen(2))

	// WHEN a class 1 job arrives
	p.Put(evtMgr, CreateJob(0.0, 1.0, 2, "test", 1))

	// THEN it enters service at once, and the class 2 job is still stuck afterwards
	assert.True(t, p.Busy())
	assert.Equal(t, 0, p.QueueLen(1))
	evtMgr.Run(100.0)
	require.Len(t, rec.jobs, 1)
	assert.Equal(t, 1, rec.jobs[0].Class)
	assert.Equal(t, 1, p.QueueLen(2))
}

func TestSwitchPort_SelectClass_ResidualDrawsAreRepeated(t *testing.T) {
	// GIVEN weights summing to 0.5 and draws that fall twice in the residual
	evtMgr := evtm.New()
	p, _, src := newPort([]int{1, 2}, []float64{1.0, 1.0}, 0.9, 0.7, 0.2)
	require.NoError(t, p.Control([]float64{0.5, 0.0}))

	// WHEN the server starts
	p.Start(evtMgr)

	// THEN the third draw picks class 1
	class, waiting := p.WaitingOn()
	assert.True(t, waiting)
	assert.Equal(t, 1, class)
	assert.Equal(t, 3, src.draws)
}

func TestSwitchPort_SelectClass_DrawPicksContainingInterval(t *testing.T) {
	// GIVEN weights [0.3, 0.7] and a draw of 0.5
	evtMgr := evtm.New()
	p, _, _ := newPort([]int{1, 2}, []float64{1.0, 1.0}, 0.5)
	require.NoError(t, p.Control([]float64{0.3, 0.7}))

	// WHEN the server starts
	p.Start(evtMgr)

	// THEN class 2 is chosen
	class, _ := p.WaitingOn()
	assert.Equal(t, 2, class)
}

func TestSwitchPort_Control_RejectsInvalidWeights(t *testing.T) {
	p, _, _ := newPort([]int{1, 2}, []float64{1.0, 1.0})
	before := p.Weights()

	cases := map[string][]float64{
		"wrong length": {1.0},
		"negative":     {-0.1, 0.5},
		"sum above 1":  {0.7, 0.7},
		"not a number": {math.NaN(), 0.1},
	}
	for name, weights := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, p.Control(weights))
			assert.Equal(t, before, p.Weights())
		})
	}

	assert.NoError(t, p.Control([]float64{0.25, 0.75}))
	assert.Equal(t, []float64{0.25, 0.75}, p.Weights())
}

func TestSwitchPort_Control_ResumesParkedServer(t *testing.T) {
	// GIVEN a started port with all weights zero and a buffered job
	evtMgr := evtm.New()
	p, rec, _ := newPort([]int{1, 2}, []float64{1.0, 1.0}, 0.1)
	require.NoError(t, p.Control([]float64{0.0, 0.0}))
	p.Start(evtMgr)
	p.Put(evtMgr, CreateJob(0.0, 1.0, 1, "test", 1))
	require.False(t, p.Busy())

	// WHEN the weights become positive
	require.NoError(t, p.Control([]float64{1.0, 0.0}))

	// THEN the buffered job goes into service at once
	assert.True(t, p.Busy())
	evtMgr.Run(100.0)
	assert.Len(t, rec.jobs, 1)
}

func TestSwitchPort_Control_NegligibleWeightsPark(t *testing.T) {
	// GIVEN a port whose weights sum to far less than one draw could ever hit
	evtMgr := evtm.New()
	p, rec, src := newPort([]int{1}, []float64{1.0}, 0.5)
	require.NoError(t, p.Control([]float64{1e-12}))

	// WHEN it starts with a job buffered
	p.Start(evtMgr)
	p.Put(evtMgr, CreateJob(0.0, 1.0, 1, "test", 1))

	// THEN it parks without drawing, and serves once given real weight
	assert.False(t, p.Busy())
	_, waiting := p.WaitingOn()
	assert.False(t, waiting)
	assert.Equal(t, 0, src.draws)
	require.NoError(t, p.Control([]float64{1.0}))
	evtMgr.Run(100.0)
	assert.Len(t, rec.jobs, 1)
}

func TestSwitchPort_Backlog_DeparturesNeverEarly(t *testing.T) {
	// GIVEN one class served at rate 3.0, so each job of size 1 takes 1/3
	evtMgr := evtm.New()
	p, rec, _ := newPort([]int{1}, []float64{3.0}, 0.5)
	require.NoError(t, p.Control([]float64{1.0}))
	p.Start(evtMgr)

	// WHEN four jobs are put at t=0
	for seq := 1; seq <= 4; seq++ {
		scheduleJob(evtMgr, p, 0.0, 1, 1.0, seq)
	}
	evtMgr.Run(100.0)

	// THEN no job leaves before its own service time has passed, and every job
	// that queued behind another leaves strictly later than that
	require.Len(t, rec.jobs, 4)
	service := 1.0 / 3.0
	for idx, job := range rec.jobs {
		assert.Equal(t, idx+1, job.SeqID)
		assert.GreaterOrEqual(t, rec.times[idx], job.ArrivalTime+service)
		assert.GreaterOrEqual(t, rec.times[idx], job.ArrivalTime+float64(idx+1)*service)
		if idx > 0 {
			assert.Greater(t, rec.times[idx], job.ArrivalTime+service)
			assert.Greater(t, rec.times[idx], rec.times[idx-1])
		}
	}
	assert.InDelta(t, 4.0*service, rec.times[3], 1e-5)
}

func TestServiceTime_RoundsUpToWholeTicks(t *testing.T) {
	assert.Equal(t, vrtime.SecondsToTicks(0.5), serviceTime(0.5).Ticks())
	third := serviceTime(1.0 / 3.0)
	assert.GreaterOrEqual(t, vrtime.TicksToSeconds(third.Ticks()), 1.0/3.0)
	assert.Equal(t, vrtime.SecondsToTicks(1.0/3.0)+1, third.Ticks())
}

func TestSwitchPort_Put_UnknownClassPanics(t *testing.T) {
	evtMgr := evtm.New()
	p, _, _ := newPort([]int{1}, []float64{1.0})
	assert.Panics(t, func() {
		p.Put(evtMgr, Job{ArrivalTime: 0.0, Size: 1.0, SeqID: 1, Class: 7})
	})
	assert.Panics(t, func() {
		p.Put(evtMgr, Job{ArrivalTime: 0.0, Size: 0.0, SeqID: 2, Class: 1})
	})
}

func TestCreateSwitchPort_RejectsBadConfiguration(t *testing.T) {
	src := &fixedSource{values: []float64{0.5}}
	_, err := CreateSwitchPort("p", nil, nil, src)
	assert.Error(t, err)
	_, err = CreateSwitchPort("p", []int{1, 2}, []float64{1.0}, src)
	assert.Error(t, err)
	_, err = CreateSwitchPort("p", []int{1, 1}, []float64{1.0, 1.0}, src)
	assert.Error(t, err)
	_, err = CreateSwitchPort("p", []int{1}, []float64{0.0}, src)
	assert.Error(t, err)
	_, err = CreateSwitchPort("p", []int{1}, []float64{1.0}, nil)
	assert.Error(t, err)

	p, err := CreateSwitchPort("p", []int{4, 2}, []float64{1.0, 3.0}, src)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, p.Weights())
	assert.Equal(t, 3.0, p.Rate(2))
}

func TestSwitchPort_OccupancyMatchesBuffers(t *testing.T) {
	// GIVEN a seeded two-class port under random load
	sf, err := CreateStreamFactory(seedPtr(7))
	require.NoError(t, err)
	evtMgr := evtm.New()
	p, err := CreateSwitchPort("port", []int{1, 2}, []float64{2.0, 1.5}, sf.Stream("port"))
	require.NoError(t, err)
	p.SetOut(CreateJobSink("sink"))
	p.SetBufferLimit(6, false)
	p.Start(evtMgr)

	sizes := ExpSampler{Rate: 1.0}
	rng := sf.Stream("load")
	at := 0.0
	for seq := 1; seq <= 200; seq++ {
		at += ExpSampler{Rate: 3.0}.Sample(rng)
		scheduleJob(evtMgr, p, at, 1+seq%2, sizes.Sample(rng), seq)
	}

	// WHEN the load runs out
	evtMgr.Run(1000.0)

	// THEN every job was served or dropped, and the buffers are consistent
	assert.Equal(t, 200, p.Served()+p.Drops()+p.QueueLen(1)+p.QueueLen(2))
	state := p.State()
	assert.Equal(t, float64(p.QueueLen(1)), state[1])
	assert.Equal(t, float64(p.QueueLen(2)), state[2])
	assert.Less(t, p.TotalOccupancy(), 6.0)
}
