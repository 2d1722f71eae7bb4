package trainer

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tunerd/internal/identity"
	"tunerd/internal/lora"
	"tunerd/internal/model"
	"tunerd/internal/store"
	"tunerd/pkg/types"
)

// State is the lifecycle phase of the single job slot.
type State string

const (
	StateIdle      State = "idle"
	StatePreparing State = "preparing"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Config holds the trainer's environment.
type Config struct {
	// Python interpreter used to run the backend scripts.
	PythonBin string
	// Directory containing train_lora.py and train_lora_gguf.py.
	ScriptsDir string
	// Directory scanned for base models; merged GGUF output lands here.
	ModelsDir string
	// Scratch parent for per-job output dirs; empty uses the OS temp dir.
	WorkDir string
	// KeepOutput preserves scratch dirs after the job, for debugging.
	KeepOutput bool
}

// Job is the state of one training run. Mutable fields are guarded by the
// owning Trainer's mutex.
type Job struct {
	ID          string
	Name        string
	Model       string
	ModelPath   string
	UpstreamID  string
	Backend     string
	Config      lora.TrainingConfig
	DatasetPath string
	Dataset     *Dataset
	Skeleton    *lora.Adapter
	NumLayers   int
	OutputDir   string
	GGUFOutput  string

	State      State
	Step       int
	TotalSteps int
	Loss       float64
	Err        string

	started  time.Time
	cancel   context.CancelFunc
	protoErr string
	final    *Message
}

// EventFunc receives stream events while a job runs. It is called from the
// job's goroutine; implementations must not block indefinitely.
type EventFunc func(types.TrainEvent)

// Trainer orchestrates training subprocesses. It holds at most one job; a
// second Start while a job is live is rejected rather than queued.
type Trainer struct {
	cfg   Config
	store *store.Store
	ids   *identity.Registry
	log   zerolog.Logger

	mu  sync.Mutex
	job *Job
}

// New constructs a Trainer around its collaborators.
func New(cfg Config, st *store.Store, ids *identity.Registry, log zerolog.Logger) *Trainer {
	if cfg.PythonBin == "" {
		cfg.PythonBin = "python3"
	}
	return &Trainer{cfg: cfg, store: st, ids: ids, log: log.With().Str("component", "trainer").Logger()}
}

// Status reports the current or most recent job.
func (t *Trainer) Status() types.TrainStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job == nil {
		return types.TrainStatus{State: string(StateIdle)}
	}
	j := t.job
	return types.TrainStatus{
		State:      string(j.State),
		JobID:      j.ID,
		Model:      j.Model,
		Backend:    j.Backend,
		Step:       j.Step,
		TotalSteps: j.TotalSteps,
		Loss:       j.Loss,
		Error:      j.Err,
	}
}

// Cancel aborts the live job. It returns immediately; the job's Start call
// observes the cancellation and winds the process down.
func (t *Trainer) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job == nil || (t.job.State != StatePreparing && t.job.State != StateRunning) {
		return ErrNoActiveJob()
	}
	t.job.cancel()
	return nil
}

// Start runs a training job to completion, blocking the caller. Progress and
// log events are delivered to sink in protocol order. Only one job runs at a
// time; callers racing for the slot get a jobActiveError.
func (t *Trainer) Start(ctx context.Context, req types.TrainRequest, sink EventFunc) (res *Result, err error) {
	cfg := configFromRequest(req)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	job := &Job{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Model:       req.Model,
		Backend:     req.Backend,
		Config:      cfg,
		DatasetPath: req.Dataset,
		State:       StatePreparing,
		started:     time.Now(),
		cancel:      cancel,
	}
	if job.Backend == "" {
		job.Backend = BackendAdapter
	}
	if job.Name == "" {
		job.Name = "adapter-" + job.ID[:8]
	}

	t.mu.Lock()
	if t.job != nil && (t.job.State == StatePreparing || t.job.State == StateRunning) {
		id := t.job.ID
		t.mu.Unlock()
		return nil, ErrJobActive(id)
	}
	t.job = job
	t.mu.Unlock()

	metricActive.Set(1)
	defer func() {
		t.mu.Lock()
		switch {
		case err == nil:
			job.State = StateCompleted
		case IsCancelled(err):
			job.State = StateCancelled
		default:
			job.State = StateFailed
			job.Err = err.Error()
		}
		outcome := string(job.State)
		t.mu.Unlock()
		metricActive.Set(0)
		metricJobsTotal.WithLabelValues(outcome).Inc()
		if job.OutputDir != "" && !t.cfg.KeepOutput {
			if rerr := os.RemoveAll(job.OutputDir); rerr != nil {
				t.log.Warn().Err(rerr).Str("dir", job.OutputDir).Msg("could not remove scratch dir")
			}
		}
		t.log.Info().
			Str("job", job.ID).
			Str("outcome", outcome).
			Dur("elapsed", time.Since(job.started)).
			Msg("training job finished")
	}()

	be, err := t.prepare(ctx, job)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrCancelled()
	}

	t.mu.Lock()
	job.State = StateRunning
	t.mu.Unlock()

	final, err := t.run(ctx, job, be, sink)
	if err != nil {
		return nil, err
	}
	return be.finalize(job, final)
}

// prepare validates inputs and assembles everything the subprocess needs.
func (t *Trainer) prepare(ctx context.Context, job *Job) (backend, error) {
	ds, err := LoadDataset(job.DatasetPath, job.Config.MaxSeqLength, t.log)
	if err != nil {
		return nil, err
	}
	job.Dataset = ds
	t.mu.Lock()
	job.TotalSteps = estimateTotalSteps(len(ds.Examples), job.Config.BatchSize, job.Config.Epochs)
	t.mu.Unlock()

	var be backend
	switch job.Backend {
	case BackendGGUF:
		if err := t.resolveUpstream(ctx, job); err != nil {
			return nil, err
		}
		job.GGUFOutput = filepath.Join(t.cfg.ModelsDir,
			job.Name+"-"+strings.ToUpper(job.Config.Quantization)+".gguf")
		be = ggufBackend{ids: t.ids, log: t.log}
	case BackendAdapter:
		if err := t.resolveLocalModel(job); err != nil {
			return nil, err
		}
		be = adapterBackend{store: t.store, log: t.log}
	default:
		return nil, ErrProcess("unknown backend " + job.Backend)
	}

	scriptPath := filepath.Join(t.cfg.ScriptsDir, be.script())
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, ErrScriptNotFound(scriptPath)
	}

	dir, err := os.MkdirTemp(t.cfg.WorkDir, "tunerd-train-")
	if err != nil {
		return nil, err
	}
	job.OutputDir = dir

	t.log.Info().
		Str("job", job.ID).
		Str("backend", job.Backend).
		Str("model", job.Model).
		Int("examples", len(ds.Examples)).
		Int("skipped", ds.Skipped).
		Int("total_steps", job.TotalSteps).
		Msg("training job prepared")
	return be, nil
}

// resolveLocalModel locates the base model file and builds the adapter
// skeleton from its architecture config.
func (t *Trainer) resolveLocalModel(job *Job) error {
	path := job.Model
	if !filepath.IsAbs(path) {
		path = filepath.Join(t.cfg.ModelsDir, job.Model)
	}
	if _, err := os.Stat(path); err != nil {
		return ErrModelNotFound(job.Model)
	}
	job.ModelPath = path

	mcfg, err := model.LoadConfig(path)
	if err != nil {
		return err
	}
	dims := model.Dims(mcfg)
	job.NumLayers = mcfg.NumHiddenLayers
	skel, err := buildSkeleton(job.ID, job.Model, job.Config, dims, mcfg.NumHiddenLayers, t.log)
	if err != nil {
		return err
	}
	job.Skeleton = skel
	return nil
}

// resolveUpstream determines the Hugging Face repo to fine-tune. A model
// value containing a slash is taken as a repo id directly; otherwise the
// local file's identity record supplies it.
func (t *Trainer) resolveUpstream(ctx context.Context, job *Job) error {
	if strings.Contains(job.Model, "/") && !filepath.IsAbs(job.Model) {
		job.UpstreamID = job.Model
		return nil
	}
	path := job.Model
	if !filepath.IsAbs(path) {
		path = filepath.Join(t.cfg.ModelsDir, job.Model)
	}
	if _, err := os.Stat(path); err != nil {
		return ErrModelNotFound(job.Model)
	}
	job.ModelPath = path
	rec, err := t.ids.Resolve(ctx, path)
	if err != nil {
		return err
	}
	if rec == nil || rec.HuggingFaceModelID == "" {
		return identity.ErrNoUpstreamIdentity(path)
	}
	job.UpstreamID = rec.HuggingFaceModelID
	return nil
}

// run spawns the backend process and pumps its protocol stream until exit.
func (t *Trainer) run(ctx context.Context, job *Job, be backend, sink EventFunc) (Message, error) {
	scriptPath := filepath.Join(t.cfg.ScriptsDir, be.script())
	cmd := exec.Command(t.cfg.PythonBin, be.argv(scriptPath, job)...)
	stderr := &tailBuffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Message{}, err
	}
	if err := cmd.Start(); err != nil {
		return Message{}, ErrProcess(err.Error())
	}
	t.log.Info().Str("job", job.ID).Int("pid", cmd.Process.Pid).Msg("training process started")

	msgs := decodeStream(stdout)
	eof := make(chan struct{})
	abort := make(chan struct{})
	var abortOnce sync.Once
	go func() {
		defer close(eof)
		for msg := range msgs {
			t.dispatch(job, msg, sink)
			if msg.Type == msgError {
				// the backend has declared the job dead; do not wait for
				// it to exit on its own
				abortOnce.Do(func() { close(abort) })
			}
		}
	}()

	var cancelled bool
	select {
	case <-eof:
	case <-abort:
		terminate(cmd.Process, eof, t.log)
		<-eof
	case <-ctx.Done():
		cancelled = true
		terminate(cmd.Process, eof, t.log)
		<-eof
	}
	werr := cmd.Wait()

	t.mu.Lock()
	protoErr := job.protoErr
	final := job.final
	lastStep := job.Step
	t.mu.Unlock()

	if cancelled {
		return Message{}, ErrCancelled()
	}
	if protoErr != "" {
		return Message{}, t.classify(job, protoErr, stderr.String())
	}
	if werr != nil {
		return Message{}, t.classify(job, "exit: "+werr.Error(), stderr.String())
	}
	if final == nil {
		if lastStep == 0 {
			return Message{}, ErrProcess("backend exited without completion message")
		}
		// a clean exit after the last progress message counts as completion;
		// finalize falls back to the default artifact location
		return Message{}, nil
	}
	return *final, nil
}

// dispatch applies one protocol message to the job and forwards it to sink.
func (t *Trainer) dispatch(job *Job, msg Message, sink EventFunc) {
	switch msg.Type {
	case msgProgress:
		t.mu.Lock()
		job.Step = msg.Step
		if msg.TotalSteps > 0 {
			job.TotalSteps = msg.TotalSteps
		}
		job.Loss = msg.Loss
		total := job.TotalSteps
		t.mu.Unlock()
		metricSteps.Inc()
		metricLastLoss.Set(msg.Loss)
		p := lora.Progress{
			Epoch:        epochFor(msg.Step, total, job.Config.Epochs),
			Step:         msg.Step,
			TotalSteps:   total,
			Loss:         msg.Loss,
			LearningRate: job.Config.LearningRate,
			TokensPerSec: t.tokensPerSec(job, msg.Step),
		}
		if sink != nil {
			sink(types.TrainEvent{
				Type:         "progress",
				Step:         p.Step,
				TotalSteps:   p.TotalSteps,
				Epoch:        p.Epoch,
				Loss:         p.Loss,
				TokensPerSec: p.TokensPerSec,
			})
		}
	case msgLog:
		t.log.Info().Str("job", job.ID).Msg(msg.Message)
		if sink != nil {
			sink(types.TrainEvent{Type: "log", Message: msg.Message})
		}
	case msgError:
		t.mu.Lock()
		job.protoErr = msg.Error
		t.mu.Unlock()
	case msgComplete:
		m := msg
		t.mu.Lock()
		job.final = &m
		t.mu.Unlock()
	}
}

// classify maps a failure to the OOM sub-class when the evidence supports it.
func (t *Trainer) classify(job *Job, msg, stderrTail string) error {
	if isOOM(msg) || isOOM(stderrTail) {
		return ErrOutOfMemory(job.Config.Rank, job.Config.BatchSize)
	}
	if stderrTail != "" {
		return ErrProcess(msg + "; stderr tail: " + stderrTail)
	}
	return ErrProcess(msg)
}

var oomMarkers = []string{
	"out of memory",
	"memoryerror",
	"cannot allocate memory",
	"insufficient memory",
}

func isOOM(s string) bool {
	s = strings.ToLower(s)
	for _, m := range oomMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// tokensPerSec estimates throughput from wall clock and the dataset's token
// counts; the backend does not report its own number.
func (t *Trainer) tokensPerSec(job *Job, step int) float64 {
	elapsed := time.Since(job.started).Seconds()
	if elapsed <= 0 || step <= 0 || len(job.Dataset.Examples) == 0 {
		return 0
	}
	avg := float64(job.Dataset.TokenCount()) / float64(len(job.Dataset.Examples))
	return float64(step*job.Config.BatchSize) * avg / elapsed
}

// estimateTotalSteps predicts the backend's step count before the first
// progress message arrives. The backend floors the per-epoch batch count and
// always runs at least one step per epoch.
func estimateTotalSteps(examples, batchSize, epochs int) int {
	perEpoch := examples / batchSize
	if perEpoch < 1 {
		perEpoch = 1
	}
	return perEpoch * epochs
}

// epochFor derives the 1-based epoch from step position.
func epochFor(step, total, epochs int) int {
	if step <= 0 || total <= 0 || epochs <= 0 {
		return 0
	}
	e := (step-1)*epochs/total + 1
	if e > epochs {
		e = epochs
	}
	return e
}

// configFromRequest maps request hyperparameters onto a normalized config.
func configFromRequest(req types.TrainRequest) lora.TrainingConfig {
	return lora.TrainingConfig{
		Rank:           req.Rank,
		Alpha:          req.Alpha,
		LearningRate:   req.LearningRate,
		BatchSize:      req.BatchSize,
		Epochs:         req.Epochs,
		MaxSeqLength:   req.MaxSeqLength,
		GradAccumSteps: req.GradAccumSteps,
		Quantization:   req.Quantization,
	}.Normalize()
}
