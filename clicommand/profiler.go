package clicommand

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	"github.com/kubegate/kubegate/logger"
)

// A profile collects one kind of runtime data between start and stop.
// start begins collection or enables sampling, stop flushes the collected
// data to the profile file.
type profile struct {
	start func(f *os.File) error
	stop  func(f *os.File) error
}

var profiles = map[string]profile{
	"cpu": {
		start: func(f *os.File) error { return pprof.StartCPUProfile(f) },
		stop: func(*os.File) error {
			pprof.StopCPUProfile()
			return nil
		},
	},
	"mem": {
		start: func(*os.File) error { return nil },
		stop:  func(f *os.File) error { return pprof.WriteHeapProfile(f) },
	},
	"mutex": {
		start: func(*os.File) error {
			runtime.SetMutexProfileFraction(1)
			return nil
		},
		stop: func(f *os.File) error {
			defer runtime.SetMutexProfileFraction(0)
			return writeLookup("mutex", f)
		},
	},
	"block": {
		start: func(*os.File) error {
			runtime.SetBlockProfileRate(1)
			return nil
		},
		stop: func(f *os.File) error {
			defer runtime.SetBlockProfileRate(0)
			return writeLookup("block", f)
		},
	},
	"thread": {
		start: func(*os.File) error { return nil },
		stop:  func(f *os.File) error { return writeLookup("threadcreate", f) },
	},
	"trace": {
		start: func(f *os.File) error { return trace.Start(f) },
		stop: func(*os.File) error {
			trace.Stop()
			return nil
		},
	},
}

func writeLookup(name string, f *os.File) error {
	p := pprof.Lookup(name)
	if p == nil {
		return nil
	}
	return p.WriteTo(f, 0)
}

// Profile starts collecting the named profile and returns the function that
// stops it and flushes the data, writing to a fresh temp directory.
// "memory" is accepted as an alias for "mem". An unknown mode is fatal.
func Profile(l logger.Logger, mode string) func() {
	if mode == "memory" {
		mode = "mem"
	}
	prof, ok := profiles[mode]
	if !ok {
		l.Fatal("Unknown profile mode %q", mode)
	}

	dir, err := os.MkdirTemp("", "profile")
	if err != nil {
		l.Fatal("Could not create profile output directory: %v", err)
	}
	fn := filepath.Join(dir, mode+".pprof")
	f, err := os.Create(fn)
	if err != nil {
		l.Fatal("Could not create %s profile %q: %v", mode, fn, err)
	}

	if err := prof.start(f); err != nil {
		l.Fatal("Could not start %s profile: %v", mode, err)
	}
	l.Info("%s profiling enabled, writing to %s", mode, fn)

	return func() {
		if err := prof.stop(f); err != nil {
			l.Fatal("Could not stop %s profile: %v", mode, err)
		}
		if err := f.Close(); err != nil {
			l.Fatal("Failed to close %s: %v", fn, err)
		}
		l.Info("Finished %s profiling, wrote %s", mode, fn)
	}
}
