package worker

import (
	"bufio"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/therne/errorist"

	"github.com/beamline/forge/internal/stacktrace"
	"github.com/beamline/forge/resolve"
	"github.com/beamline/forge/runtimeinfo"
	"github.com/beamline/forge/taskmsg"
	"github.com/beamline/forge/unit"
)

// IsWorker reports whether this process was spawned as a worker.
func IsWorker() bool {
	return os.Getenv(EnvFlag) != ""
}

// RunIfWorker turns the process into a worker when it was spawned as one, and
// never returns in that case. Call it at the top of main, after every unit
// type has been registered; in the coordinator's process it is a no-op.
func RunIfWorker() {
	if !IsWorker() {
		return
	}
	if err := Main(os.Stdin, os.Stdout, DefaultOptions()); err != nil {
		// stdout belongs to the protocol; diagnostics go to stderr
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// Main runs the worker loop: handshake, then one descriptor at a time until
// the stop sentinel. Every dispatched descriptor is answered with exactly one
// terminal message; a failing or panicking sub-task produces Failed, never a
// dead process.
func Main(in io.Reader, outStream io.Writer, opt Options) error {
	out := &messageWriter{w: outStream}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), opt.MaxMessageSize)

	if !scanner.Scan() {
		return errors.Wrap(scanner.Err(), "no handshake received")
	}
	var h handshake
	if err := decodeHandshake(scanner.Bytes(), &h); err != nil {
		return err
	}

	// start from an empty resolver context and install only the snapshot the
	// coordinator chose to transmit
	rc := resolve.NewContext()
	rc.Reset()
	rc.Apply(h.Resolver)

	u, err := unit.Create(h.UnitName)
	if err != nil {
		return err
	}
	p, ok := u.(unit.Partitioned)
	if !ok {
		return errors.Errorf("unit %q is not partitioned", h.UnitName)
	}

	if ra, ok := u.(unit.RuntimeAware); ok {
		ra.SetRuntime(runtimeinfo.ForWorker(h.WorkerID, h.TotalWorkers, h.MaxConcurrentTasks))
	}
	if res, ok := u.(unit.ResolverAware); ok {
		res.SetResolver(rc)
	}
	if ls, ok := u.(unit.LogSinkAware); ok {
		ls.SetLogSink(&relaySink{out: out})
	}

	if init, ok := u.(unit.Initialisable); ok && h.InitKwargs != nil {
		if err := init.PartitionInitialise(h.InitKwargs); err != nil {
			return errors.Wrap(err, "partition initialise")
		}
	}

	dispatch := p.SubtaskMethods()
	for scanner.Scan() {
		msg, err := taskmsg.Unmarshal(scanner.Bytes())
		if err != nil {
			return err
		}
		desc, ok := msg.(*taskmsg.Partition)
		if !ok {
			return errors.Errorf("coordinator sent a %T where a descriptor was expected", msg)
		}
		if isStopSentinel(desc) {
			return nil
		}

		result := execute(h.UnitName, dispatch, desc, rc)
		if err := out.Write(result); err != nil {
			return err
		}
		if closer, ok := u.(unit.DatasetCloser); ok {
			if err := closer.CloseDatasets(); err != nil {
				return errors.Wrap(err, "close datasets")
			}
		}
	}
	return errors.Wrap(scanner.Err(), "intake stream ended without a stop sentinel")
}

func decodeHandshake(line []byte, h *handshake) error {
	if err := jsoniter.Unmarshal(line, h); err != nil {
		return errors.Wrap(err, "decode handshake")
	}
	if h.UnitName == "" {
		return errors.New("handshake names no unit")
	}
	return nil
}

// execute runs one descriptor and always yields a terminal message.
func execute(unitName string, dispatch unit.Dispatch, desc *taskmsg.Partition, rc *resolve.Context) (m taskmsg.Message) {
	defer func() {
		if panicErr := errorist.WrapPanic(recover()); panicErr != nil {
			m = failed(unitName, desc, rc, panicErr)
		}
	}()

	fn, ok := dispatch[desc.MethodName]
	if !ok {
		// descriptors are validated before spawn; reaching this means the
		// dispatch table changed between slice and execution
		return failed(unitName, desc, rc, errors.Errorf("unknown sub-task method %q", desc.MethodName))
	}
	returnValue, err := fn(desc.Kwargs)
	if err != nil {
		return failed(unitName, desc, rc, err)
	}
	return &taskmsg.Complete{
		MethodName:  desc.MethodName,
		Kwargs:      desc.Kwargs,
		ReturnValue: returnValue,
	}
}

func failed(unitName string, desc *taskmsg.Partition, rc *resolve.Context, err error) *taskmsg.Failed {
	// the context came in as a snapshot, so capturing it back cannot fail
	snapshot, _ := rc.Capture()
	return &taskmsg.Failed{
		UnitName:        unitName,
		MethodName:      desc.MethodName,
		Kwargs:          desc.Kwargs,
		ResolverContext: snapshot,
		ExceptionKind:   stacktrace.KindOf(err),
		Traceback:       stacktrace.FromError(err),
	}
}
