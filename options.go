package forge

import (
	"github.com/creasty/defaults"

	"github.com/beamline/forge/driver"
	"github.com/beamline/forge/runtimeinfo"
)

type Options struct {
	Runtime runtimeinfo.Options
	Driver  driver.Options
}

func DefaultOptions() *Options {
	o := &Options{}
	if err := defaults.Set(o); err != nil {
		panic(err)
	}
	return o
}
