package forge

import (
	"context"
	"os"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/beamline/forge/dataset"
	"github.com/beamline/forge/resolve"
	"github.com/beamline/forge/unit"
	"github.com/beamline/forge/worker"
)

func TestMain(m *testing.M) {
	worker.RunIfWorker()
	os.Exit(m.Run())
}

// stampUnit resolves its output location through the build's resolver.
type stampUnit struct {
	unit.Base
	name     string
	reads    string
	writes   string
	resolved string
	built    *[]string
}

func (s *stampUnit) Name() string { return s.name }

func (s *stampUnit) Connects() map[string]dataset.Binding {
	bindings := make(map[string]dataset.Binding)
	if s.reads != "" {
		bindings["in"] = dataset.New(s.reads, dataset.Read)
	}
	if s.writes != "" {
		bindings["out"] = dataset.New(s.writes, dataset.Write)
	}
	return bindings
}

func (s *stampUnit) Build() error {
	resolved, err := s.Resolver().Resolve("file://{build_dir}/" + s.name)
	if err != nil {
		return err
	}
	s.resolved = resolved
	if s.built != nil {
		*s.built = append(*s.built, s.name)
	}
	return nil
}

func TestBuildRunSync(t *testing.T) {
	Convey("Given units chained by their datasets", t, func() {
		var built []string
		extract := &stampUnit{name: "Extract", writes: "mem://raw", built: &built}
		load := &stampUnit{name: "Load", reads: "mem://raw", writes: "mem://done", built: &built}

		b := NewBuild("etl", load, extract)
		release := b.Resolver().WithVars(map[string]interface{}{"build_dir": "/data/20260830"})
		defer release()

		Convey("Plan orders them without running", func() {
			g, err := b.Plan()
			So(err, ShouldBeNil)
			So(g.RunOrder, ShouldHaveLength, 2)
			So(built, ShouldBeEmpty)
		})

		Convey("RunSync builds them in dependency order", func() {
			res, err := b.RunSync(context.Background())
			So(err, ShouldBeNil)
			So(res.Err(), ShouldBeNil)
			So(built, ShouldResemble, []string{"Extract", "Load"})

			Convey("and the resolver context reached every unit", func() {
				So(extract.resolved, ShouldEqual, "file:///data/20260830/Extract")
				So(load.resolved, ShouldEqual, "file:///data/20260830/Load")
			})
		})
	})
}

func TestBuildOrdered(t *testing.T) {
	Convey("An ordered build trusts the given order", t, func() {
		var built []string
		// declared in reverse of what inference would produce
		extract := &stampUnit{name: "Extract", writes: "mem://raw", built: &built}
		load := &stampUnit{name: "Load", reads: "mem://raw", writes: "mem://done", built: &built}

		rc := resolve.NewContext()
		release := rc.WithVars(map[string]interface{}{"build_dir": "/tmp"})
		defer release()

		_, err := NewBuild("reversed", load, extract).Ordered().WithResolver(rc).RunSync(context.Background())
		So(err, ShouldBeNil)
		So(built, ShouldResemble, []string{"Load", "Extract"})
	})
}

func TestBuildFailsFastOnCycles(t *testing.T) {
	Convey("A cyclic unit set never starts running", t, func() {
		var built []string
		a := &stampUnit{name: "A", reads: "mem://y", writes: "mem://x", built: &built}
		b := &stampUnit{name: "B", reads: "mem://x", writes: "mem://y", built: &built}

		_, err := Run(context.Background(), "cyclic", a, b)
		So(err, ShouldNotBeNil)
		So(built, ShouldBeEmpty)
	})
}
