package experiment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"testing"

	"github.com/samuelfneumann/gotrpo/buffer/gae"
	"github.com/samuelfneumann/gotrpo/environment"
	"github.com/samuelfneumann/gotrpo/experiment/checkpointer"
	"github.com/samuelfneumann/gotrpo/experiment/tracker"
	"github.com/samuelfneumann/gotrpo/policy"
	ts "github.com/samuelfneumann/gotrpo/timestep"
	"github.com/samuelfneumann/gotrpo/valuefn"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// constEnv emits the same observation on every step and ends episodes
// after length steps
type constEnv struct {
	obs    []float64
	length int
	step   int
	resets int
}

func (c *constEnv) timeStep(t ts.StepType, reward float64) ts.TimeStep {
	obs := mat.NewVecDense(len(c.obs), append([]float64(nil), c.obs...))
	return ts.New(t, reward, 1, obs, c.step)
}

func (c *constEnv) Reset() (ts.TimeStep, error) {
	c.step = 0
	c.resets++
	return c.timeStep(ts.First, 0), nil
}

func (c *constEnv) Step(*mat.VecDense) (ts.TimeStep, bool, error) {
	c.step++
	if c.step >= c.length {
		return c.timeStep(ts.Last, 1), true, nil
	}
	return c.timeStep(ts.Mid, 1), false, nil
}

func (c *constEnv) Seed(uint64) {}

func spec(dims int, t environment.SpecType) environment.Spec {
	return environment.NewSpec(mat.NewVecDense(dims, nil), t,
		mat.NewVecDense(dims, nil), mat.NewVecDense(dims, nil),
		environment.Continuous)
}

func (c *constEnv) ObservationSpec() environment.Spec {
	return spec(len(c.obs), environment.Observation)
}

func (c *constEnv) ActionSpec() environment.Spec {
	return spec(1, environment.Action)
}

func (c *constEnv) Close() error { return nil }

// serial implements the gob methods of checkpointer.Serializable
type serial struct{}

func (serial) GobEncode() ([]byte, error) { return []byte{1}, nil }
func (serial) GobDecode([]byte) error     { return nil }

type zeroPolicy struct {
	serial
	updates []int // rows of each update
	obs     []*mat.Dense
}

// Save records the number of updates performed
func (z *zeroPolicy) Save(filename string) error {
	return os.WriteFile(filename, []byte(strconv.Itoa(len(z.updates))), 0644)
}

func (z *zeroPolicy) Sample(obs []float64) []float64 { return []float64{0} }

func (z *zeroPolicy) Update(obs, act *mat.Dense,
	adv []float64) (map[string]float64, error) {
	r, _ := obs.Dims()
	z.updates = append(z.updates, r)
	z.obs = append(z.obs, obs)
	return map[string]float64{"PolicyLoss": 0, "KL": 0}, nil
}

type zeroValue struct {
	serial
	fits int
}

// Save records the number of fits performed
func (z *zeroValue) Save(filename string) error {
	return os.WriteFile(filename, []byte(strconv.Itoa(z.fits)), 0644)
}

func (z *zeroValue) Predict(obs *mat.Dense) []float64 {
	r, _ := obs.Dims()
	return make([]float64, r)
}

func (z *zeroValue) Fit(obs *mat.Dense,
	targets []float64) (map[string]float64, error) {
	z.fits++
	return map[string]float64{"ValFuncLoss": 0}, nil
}

type memLogger struct {
	row   map[string]float64
	rows  []map[string]float64
	order [][]string // requested key order of each row
}

func (m *memLogger) Log(items map[string]float64, order ...string) {
	if m.row == nil {
		m.row = make(map[string]float64)
		m.order = append(m.order, nil)
	}
	m.order[len(m.order)-1] = append(m.order[len(m.order)-1], order...)
	for k, v := range items {
		m.row[k] = v
	}
}

func (m *memLogger) Write(bool) error {
	m.rows = append(m.rows, m.row)
	m.row = nil
	return nil
}

type fixture struct {
	env     *constEnv
	policy  *zeroPolicy
	valueFn *zeroValue
	logger  *memLogger
	paths   checkpointer.Paths
	trainer *Trainer
}

func newFixture(t *testing.T, config Config, length int) *fixture {
	t.Helper()
	f := &fixture{
		env:     &constEnv{obs: []float64{1, 2}, length: length},
		policy:  &zeroPolicy{},
		valueFn: &zeroValue{},
		logger:  &memLogger{},
		paths:   checkpointer.Paths{ModelRoot: t.TempDir(), RunID: "001"},
	}

	var err error
	f.trainer, err = NewTrainer(config, f.env, f.policy, f.valueFn,
		f.logger, f.paths)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func testConfig() Config {
	config := DefaultConfig()
	config.NumEpisodes = 6
	config.BatchSize = 2
	config.MaxIteration = 3
	config.ModelSaveFrequency = 2
	return config
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// savedCount reads the count written by zeroPolicy or zeroValue
func savedCount(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestRun(t *testing.T) {
	f := newFixture(t, testConfig(), 5)
	if err := f.trainer.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if f.trainer.Episode() != 6 {
		t.Errorf("episodes: \n\twant(%v)\n\thave(%v)", 6, f.trainer.Episode())
	}
	if f.env.resets != WarmupEpisodes+6 {
		t.Errorf("resets: \n\twant(%v)\n\thave(%v)", WarmupEpisodes+6,
			f.env.resets)
	}

	// Each batch has 2 episodes cut off at 3 steps
	if len(f.policy.updates) != 3 {
		t.Fatalf("policy updates: \n\twant(%v)\n\thave(%v)", 3,
			len(f.policy.updates))
	}
	for i, rows := range f.policy.updates {
		if rows != 6 {
			t.Errorf("update %d rows: \n\twant(%v)\n\thave(%v)", i, 6, rows)
		}
	}
	if f.valueFn.fits != 3 {
		t.Errorf("value function fits: \n\twant(%v)\n\thave(%v)", 3,
			f.valueFn.fits)
	}

	if len(f.logger.rows) != 3 {
		t.Fatalf("log rows: \n\twant(%v)\n\thave(%v)", 3, len(f.logger.rows))
	}
	for i, row := range f.logger.rows {
		want := map[string]float64{
			tracker.EpisodeKey:    float64(2 * (i + 1)),
			tracker.MeanRewardKey: 3,
			tracker.StepsKey:      6,
		}
		for k, v := range want {
			if row[k] != v {
				t.Errorf("row %d %s: \n\twant(%v)\n\thave(%v)", i, k, v, row[k])
			}
		}
		for _, k := range []string{"_mean_obs", "_std_adv", "PolicyLoss",
			"ValFuncLoss"} {
			if _, ok := row[k]; !ok {
				t.Errorf("row %d missing %s", i, k)
			}
		}
	}

	wantOrder := []string{tracker.MeanRewardKey, tracker.StepsKey}
	wantOrder = append(wantOrder, gae.StatKeys...)
	wantOrder = append(wantOrder, tracker.EpisodeKey)
	wantOrder = append(wantOrder, policy.UpdateKeys...)
	wantOrder = append(wantOrder, valuefn.FitKeys...)
	for i, order := range f.logger.order {
		want := wantOrder
		if i == 0 {
			// The warm-up rollout logs into the first row
			want = append([]string{tracker.MeanRewardKey,
				tracker.StepsKey}, wantOrder...)
		}
		if !slices.Equal(order, want) {
			t.Errorf("row %d key order: \n\twant(%v)\n\thave(%v)", i,
				want, order)
		}
	}

	for _, e := range []int{2, 4, 6} {
		dir := f.paths.Checkpoint(e)
		for _, file := range []string{checkpointer.ScalerPath(dir),
			checkpointer.PolicyPath(dir), checkpointer.ValueFnPath(dir)} {
			if !exists(file) {
				t.Errorf("missing checkpoint file %v", file)
			}
		}
	}
	if exists(f.paths.Checkpoint(5)) {
		t.Error("checkpoint taken after warm-up")
	}

	// Checkpoint e holds the models updated on every batch up to e
	for i, e := range []int{2, 4, 6} {
		dir := f.paths.Checkpoint(e)
		if n := savedCount(t, checkpointer.PolicyPath(dir)); n != i+1 {
			t.Errorf("checkpoint %d policy updates: \n\twant(%v)\n\thave(%v)",
				e, i+1, n)
		}
		if n := savedCount(t, checkpointer.ValueFnPath(dir)); n != i+1 {
			t.Errorf("checkpoint %d value fits: \n\twant(%v)\n\thave(%v)",
				e, i+1, n)
		}
	}

	// 5 warm-up and 6 training episodes of 3 steps each
	if f.trainer.Scaler().Count() != 33 {
		t.Errorf("scaler count: \n\twant(%v)\n\thave(%v)", 33,
			f.trainer.Scaler().Count())
	}
}

func TestCheckpointSkipsFifthEpisode(t *testing.T) {
	config := testConfig()
	config.NumEpisodes = 10
	config.BatchSize = 5
	config.ModelSaveFrequency = 5

	f := newFixture(t, config, 2)
	if err := f.trainer.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if exists(f.paths.Checkpoint(5)) {
		t.Error("checkpoint taken after 5 episodes")
	}
	if !exists(checkpointer.ScalerPath(f.paths.Checkpoint(10))) {
		t.Error("no checkpoint after 10 episodes")
	}
}

func TestDefaultSaveFrequency(t *testing.T) {
	config := testConfig()
	config.ModelSaveFrequency = 0

	f := newFixture(t, config, 2)
	if err := f.trainer.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(f.paths.Run())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "6" {
		t.Fatalf("checkpoints: only the final checkpoint should be taken, "+
			"have %v", entries)
	}

	// The final checkpoint includes the last batch's update
	dir := f.paths.Checkpoint(6)
	if n := savedCount(t, checkpointer.PolicyPath(dir)); n != 3 {
		t.Errorf("final policy updates: \n\twant(%v)\n\thave(%v)", 3, n)
	}
	if n := savedCount(t, checkpointer.ValueFnPath(dir)); n != 3 {
		t.Errorf("final value fits: \n\twant(%v)\n\thave(%v)", 3, n)
	}
}

func TestRegimeSwitch(t *testing.T) {
	config := testConfig()
	config.NumEpisodes = 14
	config.UpdateIntervalEpisodes = 4

	f := newFixture(t, config, 2500)
	if err := f.trainer.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []int{2 * 3, 2 * 3, LateBatchEpisodes * LateMaxIteration}
	if len(f.policy.updates) != len(want) {
		t.Fatalf("updates: \n\twant(%v)\n\thave(%v)", want, f.policy.updates)
	}
	for i := range want {
		if f.policy.updates[i] != want[i] {
			t.Errorf("update %d: \n\twant(%v)\n\thave(%v)", i, want[i],
				f.policy.updates[i])
		}
	}
	if f.trainer.Episode() != 14 {
		t.Errorf("episodes: \n\twant(%v)\n\thave(%v)", 14,
			f.trainer.Episode())
	}
}

func TestRunEpisode(t *testing.T) {
	f := newFixture(t, testConfig(), 10)

	scale := []float64{2, 0.5, 1}
	offset := []float64{1, 1, 0}
	traj, err := f.trainer.RunEpisode(scale, offset, 4)
	if err != nil {
		t.Fatal(err)
	}

	if traj.Len() != 4 {
		t.Fatalf("steps: \n\twant(%v)\n\thave(%v)", 4, traj.Len())
	}
	if err := traj.Validate(); err != nil {
		t.Error(err)
	}

	for i := 0; i < 4; i++ {
		time := float64(i) * TimeFeatureStep
		wantUnscaled := []float64{1, 2, time}
		wantScaled := []float64{0, 0.5, time}
		if !floats.EqualApprox(traj.UnscaledObservations.RawRowView(i),
			wantUnscaled, 1e-12) {
			t.Errorf("unscaled row %d: \n\twant(%v)\n\thave(%v)", i,
				wantUnscaled, traj.UnscaledObservations.RawRowView(i))
		}
		if !floats.EqualApprox(traj.Observations.RawRowView(i), wantScaled,
			1e-12) {
			t.Errorf("scaled row %d: \n\twant(%v)\n\thave(%v)", i,
				wantScaled, traj.Observations.RawRowView(i))
		}
	}

	// An episode that terminates before the cap is not padded
	f.env.length = 2
	traj, err = f.trainer.RunEpisode(scale, offset, 4)
	if err != nil {
		t.Fatal(err)
	}
	if traj.Len() != 2 {
		t.Errorf("steps: \n\twant(%v)\n\thave(%v)", 2, traj.Len())
	}

	if _, err := f.trainer.RunEpisode(scale[:2], offset, 4); err == nil {
		t.Error("expected error for scale of wrong size")
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t, testConfig(), 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.trainer.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("\n\twant(%v)\n\thave(%v)", context.Canceled, err)
	}
	if len(f.policy.updates) != 0 {
		t.Error("policy updated after cancellation")
	}
}

func TestNewTrainerInvalid(t *testing.T) {
	config := testConfig()
	config.BatchSize = 0

	_, err := NewTrainer(config, &constEnv{obs: []float64{1}, length: 1},
		&zeroPolicy{}, &zeroValue{}, &memLogger{},
		checkpointer.Paths{ModelRoot: t.TempDir(), RunID: "001"})
	if err == nil {
		t.Error("expected error for zero batch size")
	}
}

func TestConfig(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	if config.SaveFrequency() != config.NumEpisodes {
		t.Errorf("save frequency: \n\twant(%v)\n\thave(%v)",
			config.NumEpisodes, config.SaveFrequency())
	}

	config.KLTarget = 0.01
	if config.PolicyConfig().KLTarget != 0.01 {
		t.Errorf("policy KL target: \n\twant(%v)\n\thave(%v)", 0.01,
			config.PolicyConfig().KLTarget)
	}

	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"NumEpisodes": 40, "Gamma": 0.99,
		"ValueFn": {"Hidden": 8, "Epochs": 3,
			"Solver": {"Type": "Vanilla", "Config": {"StepSize": 0.1, "Batch": 1}}}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.NumEpisodes != 40 || loaded.Gamma != 0.99 ||
		loaded.BatchSize != 20 || loaded.ValueFn.Hidden != 8 {
		t.Errorf("loaded config: %+v", loaded)
	}

	if err := os.WriteFile(path, []byte(`{"Gamma": 2}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for gamma outside [0, 1]")
	}
}
