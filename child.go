package looper

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/looper/internal/heartbeat"
	"github.com/arloliu/looper/internal/logging"
)

// childSpecEnv carries the YAML encoded childSpec from parent to child.
const childSpecEnv = "LOOPER_CHILD_SPEC"

// Exit codes of a child that never reached its loop.
const (
	exitBadSpec   = 2
	exitNoNATS    = 3
	exitNoControl = 4
)

// childSpec describes the worker a child process must run.
type childSpec struct {
	Name          string `yaml:"name"`
	InstanceID    string `yaml:"instanceId"`
	NATSURL       string `yaml:"natsUrl"`
	Config        Config `yaml:"config"`
	MaxIterations int    `yaml:"maxIterations"`
	Setup         bool   `yaml:"setup"`
	Teardown      bool   `yaml:"teardown"`
}

func (s childSpec) runOptions() []RunOption {
	return []RunOption{
		WithMaxIterations(s.MaxIterations),
		withSetup(s.Setup),
		withTeardown(s.Teardown),
	}
}

// IsChild reports whether the current process was started by a ProcessWorker.
func IsChild() bool {
	_, ok := os.LookupEnv(childSpecEnv)
	return ok
}

// RunChildIfRequested runs the requested worker and exits when the current
// process was started by a ProcessWorker. Otherwise it returns immediately.
//
// Call it at the top of main, after registering bodies:
//
//	func main() {
//	    looper.MustRegister("poller", newPoller)
//	    looper.RunChildIfRequested()
//	    ...
//	}
//
// In tests, call it from TestMain before m.Run.
func RunChildIfRequested() {
	raw, ok := os.LookupEnv(childSpecEnv)
	if !ok {
		return
	}

	os.Exit(runChild(raw)) //nolint:revive // the child process ends here
}

func runChild(raw string) int {
	var spec childSpec
	if err := yaml.Unmarshal([]byte(raw), &spec); err != nil {
		fmt.Fprintf(os.Stderr, "looper: invalid child spec: %v\n", err)
		return exitBadSpec
	}

	logger, err := logging.NewSlogLevel(os.Stderr, spec.Config.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "looper: invalid child log level: %v\n", err)
		return exitBadSpec
	}
	logger = logger.With("worker", spec.Name, "instance", spec.InstanceID)

	nc, err := nats.Connect(spec.NATSURL, nats.Name("looper-"+spec.Name))
	if err != nil {
		logger.Error("failed to connect to NATS", "url", spec.NATSURL, "error", err)
		return exitNoNATS
	}
	defer nc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := newProcessResources(ctx, nc, spec.Name, spec.InstanceID, spec.Config, []Option{WithLogger(logger)})
	if err != nil {
		logger.Error("failed to build controller", "error", err)
		return exitNoControl
	}

	hb := heartbeat.New(res.kv, spec.InstanceID, spec.Config.Process.HeartbeatInterval)
	hb.SetLogger(logger)
	if err := hb.Start(ctx); err != nil {
		logger.Warn("heartbeat disabled", "error", err)
	} else {
		defer func() {
			if err := hb.Stop(); err != nil {
				logger.Warn("failed to stop heartbeat", "error", err)
			}
		}()
	}

	if err := res.ctrl.Run(ctx, spec.runOptions()...); err != nil {
		logger.Error("run failed", "error", err)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), spec.Config.Process.OperationTimeout)
	defer cancel()
	if err := res.errSink.Flush(flushCtx); err != nil {
		logger.Error("failed to flush fatal errors", "error", err)
	}

	return 0
}
