package feature

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/threadforge/pkg/kernel"
	"github.com/chazu/threadforge/pkg/logging"
	"github.com/chazu/threadforge/pkg/plan"
	"github.com/chazu/threadforge/pkg/thread"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"gonum.org/v1/gonum/spatial/r3"
)

// quarterInch returns the G 1/4 reference thread.
func quarterInch(t *testing.T, sense thread.Sense) thread.Spec {
	t.Helper()
	s, err := thread.New(9, 13.16, 11.44, 1.34, thread.Degrees(27.5), 0.2, sense)
	require.NoError(t, err)
	return s
}

// featureSummary renders the top-level ops as kind/mode pairs.
func featureSummary(p *plan.Plan) []string {
	var out []string
	for _, op := range p.TopLevel() {
		mode, _ := plan.Mode(op.Data)
		out = append(out, op.Kind.String()+"/"+mode.String())
	}
	return out
}

func TestBuildMaleReferenceThread(t *testing.T) {
	spec := quarterInch(t, thread.Male)
	p, err := Build(spec, r3.Vec{})
	require.NoError(t, err)

	assert.Empty(t, plan.Validate(p), "plan should validate without findings")
	assert.Equal(t, []string{"extrude/new-body", "loft/join", "revolve/cut"}, featureSummary(p))

	top := p.TopLevel()
	ext := top[0].Data.(plan.ExtrudeData)
	assert.Equal(t, 9.0, ext.Distance)
	circle := p.MustGet(top[0].Inputs[0]).Data.(plan.CircleData)
	assert.Equal(t, 11.44, circle.Diameter)
	assert.Equal(t, plan.StageShaft, top[0].Stage)

	rev := top[2].Data.(plan.RevolveData)
	assert.InDelta(t, 2*math.Pi, rev.Angle, 1e-12)
	assert.Equal(t, r3.Vec{Z: 1}, rev.Axis.Direction)
}

func TestBuildStationsMatchHelix(t *testing.T) {
	spec := quarterInch(t, thread.Male)
	p, err := Build(spec, r3.Vec{})
	require.NoError(t, err)

	curves := p.ByStage(plan.StageHelix)
	require.Len(t, curves, 3)
	pts := curves[2].Data.(plan.FittedCurveData).Points
	stations := thread.SampleStations(len(pts))

	var fractions []float64
	for _, op := range p.ByStage(plan.StageProfile) {
		if d, ok := op.Data.(plan.CurvePlaneData); ok {
			fractions = append(fractions, d.Fraction)
		}
	}
	require.Len(t, fractions, len(stations))
	for i, st := range stations {
		assert.Equal(t, st.Fraction, fractions[i])
	}

	loft := p.TopLevel()[1]
	assert.Len(t, loft.Inputs, len(stations)+1, "one input per profile plus the centreline")
	assert.Equal(t, curves[2].ID, loft.Inputs[len(loft.Inputs)-1])
}

func TestBuildFemaleHasNoChamfer(t *testing.T) {
	p, err := Build(quarterInch(t, thread.Female), r3.Vec{X: 4})
	require.NoError(t, err)

	assert.Equal(t, []string{"extrude/cut", "loft/cut"}, featureSummary(p))
	assert.False(t, p.HasStage(plan.StageChamfer))
	assert.False(t, p.HasStage(plan.StageShaft))
	assert.True(t, p.HasStage(plan.StageHole))
	assert.Empty(t, plan.Errors(plan.Validate(p)))
}

func TestBuildStageOrder(t *testing.T) {
	p, err := Build(quarterInch(t, thread.Male), r3.Vec{})
	require.NoError(t, err)

	order := []plan.Stage{plan.StageShaft, plan.StageHelix, plan.StageProfile, plan.StageLoft, plan.StageChamfer}
	pos := 0
	for _, op := range p.Ops {
		for pos < len(order) && op.Stage != order[pos] {
			pos++
		}
		require.Less(t, pos, len(order), "op %s in stage %s out of order", op.ID, op.Stage)
	}
}

func TestBuildRejectsInvalidSpec(t *testing.T) {
	p, err := Build(thread.Spec{}, r3.Vec{})
	assert.Nil(t, p)
	var dimErr *thread.InvalidDimensionError
	assert.True(t, errors.As(err, &dimErr), "got %v", err)
}

func TestBuildLogsStages(t *testing.T) {
	log, logs := logging.NewObserved(zapcore.DebugLevel)
	_, err := Build(quarterInch(t, thread.Male), r3.Vec{}, WithLogger(log))
	require.NoError(t, err)

	for _, msg := range []string{"planned base cylinder", "planned helix", "planned profiles", "planned chamfer"} {
		assert.Equal(t, 1, logs.FilterMessage(msg).Len(), msg)
	}
}

func TestBuildPlacesGeometryAtOrigin(t *testing.T) {
	origin := r3.Vec{X: 22, Y: 1, Z: 3}
	p, err := Build(quarterInch(t, thread.Male), origin)
	require.NoError(t, err)

	base := p.Ops[0].Data.(plan.OffsetPlaneData).Base
	assert.Equal(t, kernel.XYPlane(origin), base)

	pts := p.ByStage(plan.StageHelix)[2].Data.(plan.FittedCurveData).Points
	assert.InDelta(t, origin.X+13.16/2, pts[0].X, 1e-9)
}

func TestBuildWithBlank(t *testing.T) {
	female, err := Build(quarterInch(t, thread.Female), r3.Vec{}, WithBlank())
	require.NoError(t, err)
	assert.Equal(t, []string{"extrude/new-body", "extrude/cut", "loft/cut"}, featureSummary(female))

	blank := female.ByStage(plan.StageBlank)
	require.Len(t, blank, 4)
	circle := blank[2].Data.(plan.CircleData)
	assert.InDelta(t, 13.16+2*BoltThickness, circle.Diameter, 1e-12)
	extrude := blank[3].Data.(plan.ExtrudeData)
	assert.InDelta(t, 9-BlankShortfall, extrude.Distance, 1e-12)

	male, err := Build(quarterInch(t, thread.Male), r3.Vec{}, WithBlank())
	require.NoError(t, err)
	assert.False(t, male.HasStage(plan.StageBlank))
}
