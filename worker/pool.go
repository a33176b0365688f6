// Package worker runs partitioned sub-tasks in separate OS processes. The
// coordinator re-executes its own binary for each worker and speaks a
// newline-delimited message protocol over the worker's stdin and stdout;
// workers receive their state through an explicit handshake, never through
// inherited process memory.
package worker

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/airbloc/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/beamline/forge/internal/errchannel"
	"github.com/beamline/forge/pkg/retry"
	"github.com/beamline/forge/resolve"
	"github.com/beamline/forge/runtimeinfo"
	"github.com/beamline/forge/taskmsg"
	"github.com/beamline/forge/unit"
)

var log = logger.New("forge/worker")

// Pool owns a fixed group of worker processes executing sub-tasks of a single
// unit. Descriptors submitted to the pool go to whichever worker frees up
// first; each worker runs one sub-task at a time.
type Pool struct {
	unitName string
	workers  []*process

	intake     chan taskmsg.Partition
	intakeOnce sync.Once
	results    chan taskmsg.Message
	fatal      *errchannel.ErrChannel

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	opt       Options
}

type process struct {
	id     int
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	// terminal acks one finished sub-task from the reader to the feeder
	terminal chan struct{}
	// exited is closed when the worker's output stream ends
	exited  chan struct{}
	waitErr error
}

// Spawn starts count worker processes for the named unit and hands each its
// handshake. The unit must be registered; the snapshot and the optional
// per-worker init kwargs are the only state a worker receives.
func Spawn(unitName string, count int, snapshot resolve.Snapshot, initKwargs []taskmsg.Kwargs, knowledge *runtimeinfo.Knowledge, opt Options) (*Pool, error) {
	if !unit.Registered(unitName) {
		return nil, errors.Errorf("unit %q is not registered; workers could not recreate it", unitName)
	}
	if err := unit.ValidateWorkerInit(initKwargs, count); err != nil {
		return nil, err
	}
	executable, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "locate own executable")
	}

	p := &Pool{
		unitName: unitName,
		intake:   make(chan taskmsg.Partition, opt.IntakeQueueLength),
		results:  make(chan taskmsg.Message, opt.ResultQueueLength),
		fatal:    errchannel.New(),
		done:     make(chan struct{}),
		opt:      opt,
	}
	for id := 0; id < count; id++ {
		h := handshake{
			UnitName:           unitName,
			WorkerID:           id,
			TotalWorkers:       count,
			MaxConcurrentTasks: knowledge.MaxConcurrentTasks,
			Resolver:           snapshot,
		}
		if initKwargs != nil {
			h.InitKwargs = initKwargs[id]
		}
		w, err := retry.DoWithResult(func() (*process, error) {
			return p.spawnOne(executable, id, h)
		}, retry.WithRetryCount(3))
		if err != nil {
			for _, spawned := range p.workers {
				_ = spawned.cmd.Process.Kill()
				_ = spawned.cmd.Wait()
			}
			return nil, errors.Wrapf(err, "spawn worker #%d", id)
		}
		p.workers = append(p.workers, w)
	}
	for _, w := range p.workers {
		p.wg.Add(2)
		go p.feed(w)
		go p.read(w)
	}
	return p, nil
}

func (p *Pool) spawnOne(executable string, id int, h handshake) (*process, error) {
	cmd := exec.Command(executable)
	cmd.Env = append(os.Environ(), EnvFlag+"=1")
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	if err := writeHandshake(stdin, h); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	log.Verbose("Spawned worker #{} (pid {}) for {}", id, cmd.Process.Pid, h.UnitName)

	return &process{
		id:       id,
		cmd:      cmd,
		stdin:    stdin,
		stdout:   stdout,
		terminal: make(chan struct{}, 1),
		exited:   make(chan struct{}),
	}, nil
}

// Submit queues one descriptor for whichever worker becomes available first.
// Descriptors leave the intake in submission order.
func (p *Pool) Submit(desc taskmsg.Partition) error {
	select {
	case p.intake <- desc:
		return nil
	case <-p.done:
		return errors.New("worker pool is closed")
	}
}

// CloseIntake marks the end of submissions. Each worker receives its stop
// sentinel once it has finished its last descriptor.
func (p *Pool) CloseIntake() {
	p.intakeOnce.Do(func() { close(p.intake) })
}

// Results returns the multiplexed stream of terminal messages from every
// worker. The channel is never closed; consumers count terminal messages
// against the number of descriptors they submitted. Log messages are relayed
// to the pool's logger instead and never appear here.
func (p *Pool) Results() <-chan taskmsg.Message {
	return p.results
}

// Fatal reports protocol violations and unexpected worker deaths. Anything
// received here means completion accounting can no longer be trusted.
func (p *Pool) Fatal() <-chan error {
	return p.fatal.Recv()
}

// feed moves descriptors from the shared intake onto one worker's stdin,
// strictly one in flight, waiting for the terminal message before the next.
func (p *Pool) feed(w *process) {
	defer p.wg.Done()
	for desc := range p.intake {
		if err := taskmsg.Write(w.stdin, &desc); err != nil {
			p.fatal.Send(errors.Wrapf(err, "dispatch to worker #%d", w.id))
			return
		}
		select {
		case <-w.terminal:
		case <-w.exited:
			p.fatal.Send(errors.Errorf("worker #%d exited while running %s", w.id, desc.MethodName))
			return
		case <-p.done:
			return
		}
	}
	_ = taskmsg.Write(w.stdin, stopSentinel())
	_ = w.stdin.Close()
}

// read drains one worker's stdout, relaying log lines and forwarding terminal
// messages, then reaps the process.
func (p *Pool) read(w *process) {
	defer p.wg.Done()
	clean := p.drainOutput(w)
	close(w.exited)
	if !clean {
		_ = w.cmd.Process.Kill()
	}
	w.waitErr = w.cmd.Wait()
}

func (p *Pool) drainOutput(w *process) (clean bool) {
	scanner := bufio.NewScanner(w.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), p.opt.MaxMessageSize)
	for scanner.Scan() {
		msg, err := taskmsg.Unmarshal(scanner.Bytes())
		if err != nil {
			p.fatal.Send(errors.Wrapf(err, "worker #%d sent a malformed message", w.id))
			return false
		}
		switch m := msg.(type) {
		case *taskmsg.Log:
			log.Info("worker #{}: [{}] {}", w.id, m.Level, m.Message)
		case *taskmsg.Complete, *taskmsg.Failed:
			select {
			case p.results <- msg:
			case <-p.done:
				return false
			}
			w.terminal <- struct{}{}
		default:
			p.fatal.Send(errors.Errorf("worker #%d sent a %T upstream", w.id, m))
			return false
		}
	}
	if err := scanner.Err(); err != nil {
		p.fatal.Send(errors.Wrapf(err, "read worker #%d", w.id))
		return false
	}
	return true
}

// Join waits for every worker to drain its intake and exit cleanly. Callers
// must have closed the intake and consumed Results first.
func (p *Pool) Join() error {
	p.wg.Wait()
	var result *multierror.Error
	for _, w := range p.workers {
		if w.waitErr != nil {
			result = multierror.Append(result, errors.Wrapf(w.waitErr, "worker #%d", w.id))
		}
	}
	return result.ErrorOrNil()
}

// Close force-terminates any worker still running. It is the abort path; the
// normal path is CloseIntake followed by Join.
func (p *Pool) Close() error {
	var result *multierror.Error
	p.closeOnce.Do(func() {
		close(p.done)
		p.CloseIntake()
		for _, w := range p.workers {
			select {
			case <-w.exited:
			default:
				if err := w.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
					result = multierror.Append(result, errors.Wrapf(err, "kill worker #%d", w.id))
				}
			}
		}
		p.wg.Wait()
		p.fatal.Close()
	})
	return result.ErrorOrNil()
}
