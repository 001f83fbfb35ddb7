package windflow

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/Knetic/govaluate"
	"github.com/kr/pretty"
)

const (
	testOutputJSON = "testOutput.json"
	testOutputCSV  = "testOutput.csv"
)

func testAmbient() AmbientConditions {
	return AmbientConditions{
		WindSpeed:     5,
		WindDirection: 270,
		Temperature:   21.5,
		Humidity:      64,
		Timestamp:     time.Date(2025, time.March, 14, 9, 26, 53, 0, time.UTC),
		Source:        "station-7",
	}
}

func TestNewOutputter(t *testing.T) {
	type test struct {
		vars map[string]string
	}
	var tests = []test{
		{map[string]string{"Broken": "mean("}},
		{map[string]string{"2bad": "mean(ux)"}},
		{map[string]string{"bad name": "mean(ux)"}},
	}
	for i, tt := range tests {
		if _, err := NewOutputter(testOutputJSON, nil, testAmbient(), tt.vars, nil); err == nil {
			t.Errorf("test %d: should be an error", i)
		}
	}

	o, err := NewOutputter(testOutputJSON, nil, testAmbient(), map[string]string{"M": "mean(ux)"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if o.sampler == nil {
		t.Error("a default sampler should be installed")
	}
}

func TestCheckOutputVars(t *testing.T) {
	o, err := NewOutputter(testOutputJSON, nil, testAmbient(),
		map[string]string{"Bad": "mean(rho)"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := o.CheckOutputVars()(nil); err == nil {
		t.Error("should be an error")
	}

	o, err = NewOutputter(testOutputJSON, nil, testAmbient(),
		map[string]string{"M": "mean(ux) + max(magnitude)"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := o.CheckOutputVars()(nil); err != nil {
		t.Error(err)
	}
}

// Test the full output pipeline: a finished field goes in, a results
// document and a CSV sample come out.
func TestOutput(t *testing.T) {
	f := testField(10, 10,
		func(j, i int) float64 { return 3 },
		func(j, i int) float64 { return -4 })
	f.Mask.SetSolid(2, 2, true)
	f.Mask.SetSolid(7, 7, true)

	s := &Sampler{Buffer: 2, Stride: 5, Precision: 4}
	ambient := testAmbient()
	vars := map[string]string{
		"PeakSpeed": "max(magnitude)",
		"CellCount": "count(ux)",
		"MeanUx":    "mean(ux)",
		"TotalUy":   "sum(uy)",
	}
	o, err := NewOutputter(testOutputJSON, s, ambient, vars, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(testOutputJSON)
	defer os.Remove(testOutputCSV)
	o.CSVFileName = testOutputCSV
	o.Config = RunConfig{
		MaxIterations:  50,
		RelaxationRate: 1.4,
		BufferSize:     2,
		VectorStride:   5,
		Precision:      4,
	}

	convergence := []float64{0.01, 0, 0.02}
	d := &WindFlow{
		InitFuncs:    []DomainManipulator{o.CheckOutputVars(), UseField(f, convergence, 1500*time.Millisecond)},
		CleanupFuncs: []DomainManipulator{o.Output()},
	}
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if o.Results() == nil {
		t.Fatal("results should be available after output")
	}

	b, err := os.ReadFile(testOutputJSON)
	if err != nil {
		t.Fatal(err)
	}
	var got Results
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}

	if got.Metadata.Module != "wind_simulation" {
		t.Errorf("module is %q", got.Metadata.Module)
	}
	if got.Metadata.Version != Version {
		t.Errorf("version is %q, want %q", got.Metadata.Version, Version)
	}
	if got.Metadata.ComputationTime != 1.5 {
		t.Errorf("computation time is %g, want 1.5", got.Metadata.ComputationTime)
	}
	if got.Metadata.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}

	if diff := pretty.Diff(got.Configuration, o.Config); len(diff) != 0 {
		t.Errorf("configuration: %v", diff)
	}
	if diff := pretty.Diff(got.WeatherConditions, ambient); len(diff) != 0 {
		t.Errorf("weather conditions: %v", diff)
	}
	wantGrid := GridProperties{Width: 10, Height: 10, ObstacleCount: 2}
	if diff := pretty.Diff(got.GridProperties, wantGrid); len(diff) != 0 {
		t.Errorf("grid properties: %v", diff)
	}

	st := got.FlowStatistics
	if st == nil {
		t.Fatal("flow statistics are missing")
	}
	if st.Mean != 5 || st.Min != 5 || st.Max != 5 || st.Std != 0 {
		t.Errorf("statistics of a uniform field: %+v", st)
	}

	if len(got.VectorField) != 4 {
		t.Fatalf("want 4 vector samples but have %d", len(got.VectorField))
	}
	for _, v := range got.VectorField {
		if v.Vx != 3 || v.Vy != -4 || v.Magnitude != 5 {
			t.Errorf("sample at (%d,%d) is (%g,%g,%g)", v.X, v.Y, v.Vx, v.Vy, v.Magnitude)
		}
	}

	if len(got.MagnitudeGrid) != 10 || len(got.MagnitudeGrid[0]) != 10 {
		t.Fatalf("magnitude grid is %d×%d", len(got.MagnitudeGrid), len(got.MagnitudeGrid[0]))
	}
	for _, row := range got.MagnitudeGrid {
		for _, v := range row {
			if v != 5 {
				t.Fatalf("magnitude %g, want 5", v)
			}
		}
	}

	if !reflect.DeepEqual(got.ConvergenceHistory, convergence) {
		t.Errorf("convergence history is %v, want %v", got.ConvergenceHistory, convergence)
	}
	if len(got.Streamlines) != 0 || len(got.Particles) != 0 {
		t.Error("traces should be absent unless configured")
	}

	wantMetrics := map[string]float64{
		"PeakSpeed": 5,
		"CellCount": 100,
		"MeanUx":    3,
		"TotalUy":   -400,
	}
	if diff := pretty.Diff(got.DerivedMetrics, wantMetrics); len(diff) != 0 {
		t.Errorf("derived metrics: %v", diff)
	}

	cf, err := os.Open(testOutputCSV)
	if err != nil {
		t.Fatal(err)
	}
	defer cf.Close()
	rows, err := csv.NewReader(cf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 5 {
		t.Fatalf("want 5 CSV rows but have %d", len(rows))
	}
	if !reflect.DeepEqual(rows[0], []string{"x", "y", "vx", "vy", "magnitude"}) {
		t.Errorf("CSV header is %v", rows[0])
	}
	for _, row := range rows[1:] {
		if row[2] != "3" || row[3] != "-4" || row[4] != "5" {
			t.Errorf("CSV row is %v", row)
		}
	}
}

// Test whether configured tracing shows up in the results document.
func TestOutputTraces(t *testing.T) {
	f := testField(10, 10,
		func(j, i int) float64 { return 1 },
		func(j, i int) float64 { return 0 })
	o, err := NewOutputter(testOutputJSON, &Sampler{Buffer: 2, Stride: 5, Precision: 4},
		testAmbient(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(testOutputJSON)
	o.Streamlines = &StreamlineConfig{N: 10, MaxPoints: 50, Step: 0.1, MinSpeed: 1.e-3, Seed: 1}
	o.Particles = &ParticleConfig{N: 10, MaxSteps: 40, Dt: 0.1, MinSpeed: 1.e-3, Seed: 1}

	d := &WindFlow{
		InitFuncs:    []DomainManipulator{UseField(f, nil, time.Second)},
		CleanupFuncs: []DomainManipulator{o.Output()},
	}
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Cleanup(); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(testOutputJSON)
	if err != nil {
		t.Fatal(err)
	}
	var got Results
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Streamlines) == 0 {
		t.Error("streamlines should be present")
	}
	if len(got.Particles) == 0 {
		t.Error("particle paths should be present")
	}
	if got.DerivedMetrics != nil {
		t.Error("derived metrics should be absent when no variables are requested")
	}
}

func TestOutputNoField(t *testing.T) {
	o, err := NewOutputter(testOutputJSON, nil, testAmbient(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	var d WindFlow
	if err := o.Output()(&d); err == nil {
		t.Error("should be an error")
	}
}

// Test whether an expression that does not reduce to a number is
// rejected at output time.
func TestOutputNonScalar(t *testing.T) {
	f := testField(5, 5,
		func(j, i int) float64 { return 1 },
		func(j, i int) float64 { return 0 })
	o, err := NewOutputter(testOutputJSON, nil, testAmbient(),
		map[string]string{"Bad": "ux"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(testOutputJSON)
	d := &WindFlow{InitFuncs: []DomainManipulator{UseField(f, nil, 0)}}
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := o.Output()(d); err == nil {
		t.Error("should be an error")
	}
}

// Test whether caller-supplied output functions extend the default set.
func TestOutputterCustomFunction(t *testing.T) {
	f := testField(5, 5,
		func(j, i int) float64 { return 2 },
		func(j, i int) float64 { return 0 })
	double := func(arg ...interface{}) (interface{}, error) {
		return arg[0].(float64) * 2, nil
	}
	o, err := NewOutputter(testOutputJSON, nil, testAmbient(),
		map[string]string{"DoubleMeanUx": "double(mean(ux))"},
		map[string]govaluate.ExpressionFunction{"double": double})
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(testOutputJSON)
	d := &WindFlow{
		InitFuncs:    []DomainManipulator{o.CheckOutputVars(), UseField(f, nil, 0)},
		CleanupFuncs: []DomainManipulator{o.Output()},
	}
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if v := o.Results().DerivedMetrics["DoubleMeanUx"]; v != 4 {
		t.Errorf("have %g, want 4", v)
	}
}
