// Package executor runs one script with the strategy the analyzer selected:
// external subprocesses for argument-driven and non-Python scripts, resident
// module hosts for the in-process strategies, and delegation to the service
// runtime for supervised scripts. Argument validation happens before any
// process is spawned.
package executor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"bindkit/internal/interp"
	"bindkit/internal/modcache"
	"bindkit/internal/script"
	"bindkit/internal/shared/logging"
)

// DefaultTimeout applies when the settings store has no override.
const DefaultTimeout = 30 * time.Second

// ServiceStarter is the service runtime seam consumed by the service
// strategy.
type ServiceStarter interface {
	Start(name, path string, args map[string]string) (pid int, err error)
}

// Executor dispatches script executions.
type Executor struct {
	resolver *interp.Resolver
	cache    *modcache.Cache
	services ServiceStarter
	timeout  func() time.Duration
	logger   logging.Logger
}

// New creates an executor. timeoutFn may be nil, in which case DefaultTimeout
// applies; it is read per execution so settings changes take effect live.
func New(resolver *interp.Resolver, cache *modcache.Cache, services ServiceStarter, timeoutFn func() time.Duration, logger logging.Logger) *Executor {
	return &Executor{
		resolver: resolver,
		cache:    cache,
		services: services,
		timeout:  timeoutFn,
		logger:   logging.OrNop(logger),
	}
}

// Execute validates args and runs the script. The returned result is never
// nil; failures are reported through it rather than an error so callers have
// one path to the UI sink.
func (e *Executor) Execute(ctx context.Context, info *script.Info, args map[string]string) *Result {
	if info == nil {
		return validationFailure("no script provided")
	}
	if !info.IsExecutable {
		if info.AnalyzerError != "" {
			return validationFailure("script %s is not executable: %s", info.Identifier, info.AnalyzerError)
		}
		return validationFailure("script %s is not executable", info.Identifier)
	}

	if res := e.validateArguments(info, args); res != nil {
		return res
	}

	timeout := e.executionTimeout()
	e.logger.Debug("executor: running %s via %s", info.Identifier, info.Strategy)

	switch info.Strategy {
	case script.StrategySubprocess:
		python, err := e.resolver.Resolve(interp.KindPython)
		if err != nil {
			return validationFailure("python interpreter unavailable: %v", err)
		}
		return e.runCommand(ctx, buildPythonArgv(python, info, args), pythonEnv(), timeout)

	case script.StrategyPowerShell:
		shell, err := e.resolver.Resolve(interp.KindPowerShell)
		if err != nil {
			return validationFailure("powershell interpreter unavailable: %v", err)
		}
		return e.runCommand(ctx, buildPowerShellArgv(shell, info, args), nil, timeout)

	case script.StrategyBatch:
		cmdPath, err := e.resolver.Resolve(interp.KindCmd)
		if err != nil {
			return validationFailure("cmd interpreter unavailable: %v", err)
		}
		return e.runCommand(ctx, buildBatchArgv(cmdPath, info, args), nil, timeout)

	case script.StrategyShell:
		bash, err := e.resolver.Resolve(interp.KindBash)
		if err != nil {
			return validationFailure("bash interpreter unavailable: %v", err)
		}
		return e.runCommand(ctx, buildShellArgv(bash, info, args), nil, timeout)

	case script.StrategyService:
		return e.startService(info, args)

	case script.StrategyInProcessFunction:
		return e.executeInProcess(ctx, info, args, true, timeout)

	case script.StrategyInProcessModule:
		return e.executeInProcess(ctx, info, args, false, timeout)

	default:
		return validationFailure("unknown execution strategy %q", info.Strategy)
	}
}

// validateArguments enforces required presence, choices membership, and
// int/float parseability before anything is spawned.
func (e *Executor) validateArguments(info *script.Info, args map[string]string) *Result {
	for _, spec := range info.Arguments {
		value, provided := args[spec.Name]
		if !provided || value == "" {
			if spec.Required && !spec.HasDefault {
				return validationFailure("required argument missing: %s", spec.Name)
			}
			continue
		}
		if err := spec.ValidateValue(value); err != nil {
			return validationFailure("%v", err)
		}
	}
	return nil
}

func (e *Executor) executionTimeout() time.Duration {
	if e.timeout != nil {
		if t := e.timeout(); t > 0 {
			return t
		}
	}
	return DefaultTimeout
}

func (e *Executor) startService(info *script.Info, args map[string]string) *Result {
	if e.services == nil {
		return validationFailure("service runtime unavailable")
	}
	pid, err := e.services.Start(info.Identifier, info.FilePath, args)
	if err != nil {
		return &Result{
			Success: false,
			Message: fmt.Sprintf("failed to start service %s: %v", info.Identifier, err),
			Error:   err.Error(),
		}
	}
	return &Result{
		Success:    true,
		Message:    fmt.Sprintf("started, pid=%d", pid),
		ReturnCode: intPtr(0),
	}
}

// executeInProcess serves both in-process strategies from the module cache.
// A sweep runs after every execution so idle hosts age out.
func (e *Executor) executeInProcess(ctx context.Context, info *script.Info, args map[string]string, asFunction bool, timeout time.Duration) *Result {
	defer e.cache.Sweep()

	host, err := e.residentHost(info)
	if err != nil {
		return &Result{
			Success: false,
			Message: fmt.Sprintf("failed to load module %s: %v", info.Identifier, err),
			Error:   err.Error(),
		}
	}

	var res *Result
	if asFunction {
		res = host.CallFunction(ctx, "main", typedArguments(info, args), timeout)
	} else {
		res = host.ExecModule(ctx, moduleArgv(info, args), timeout)
	}

	if !host.Healthy() {
		e.cache.Remove(info.Identifier)
	}
	return res
}

func (e *Executor) residentHost(info *script.Info) (*PyHost, error) {
	if mod, ok := e.cache.Get(info.Identifier); ok {
		if host, ok := mod.(*PyHost); ok && host.Healthy() {
			return host, nil
		}
		e.cache.Remove(info.Identifier)
	}

	python, err := e.resolver.Resolve(interp.KindPython)
	if err != nil {
		return nil, err
	}
	host, err := NewPyHost(python, info.Identifier, info.FilePath, e.logger)
	if err != nil {
		return nil, err
	}
	e.cache.Put(info.Identifier, host)
	return host, nil
}

// typedArguments converts provided values to the declared types so the
// target function receives ints and bools rather than strings.
func typedArguments(info *script.Info, args map[string]string) map[string]any {
	typed := make(map[string]any, len(args))
	for _, spec := range info.Arguments {
		value, ok := args[spec.Name]
		if !ok || value == "" {
			continue
		}
		switch spec.Type {
		case script.TypeInt:
			if n, err := strconv.Atoi(value); err == nil {
				typed[spec.Name] = n
				continue
			}
		case script.TypeFloat:
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				typed[spec.Name] = f
				continue
			}
		case script.TypeBool:
			typed[spec.Name] = isTruthy(value)
			continue
		}
		typed[spec.Name] = value
	}
	// Pass through extras not covered by a declared spec; the host matches
	// by parameter name anyway.
	for name, value := range args {
		if _, ok := typed[name]; !ok && value != "" {
			typed[name] = value
		}
	}
	return typed
}

func pythonEnv() []string {
	return []string{"PYTHONIOENCODING=utf-8", "PYTHONUTF8=1"}
}
