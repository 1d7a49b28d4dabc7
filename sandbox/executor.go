package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/mapreason/mapreason/core"
)

const (
	maxSourceBytes = 512 * 1024
	resultGlobal   = "result"
)

// Executor runs code artifacts in an isolated Starlark thread.
// A program receives exactly the bindings its artifact declared, computes,
// and either assigns a `result` global or defines a `main()` whose return
// value becomes the outcome.
type Executor struct {
	maxSteps    uint64
	timeout     time.Duration
	maxOutBytes int
	logger      core.Logger
}

// NewExecutor creates an executor with ceilings taken from config
func NewExecutor(config *core.Config) *Executor {
	if config == nil {
		config = core.DefaultConfig()
	}
	return &Executor{
		maxSteps:    config.SandboxMaxSteps,
		timeout:     config.SandboxTimeout,
		maxOutBytes: config.SandboxMaxOutBytes,
		logger:      &core.NoOpLogger{},
	}
}

// SetLogger sets the logger
func (e *Executor) SetLogger(logger core.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// Execute runs one artifact against the given bindings. Only bindings
// named in artifact.Inputs are exposed; a declared input with no binding
// fails the run. Execute itself never returns an error for program
// failures: those are captured in the outcome so the pipeline can
// degrade gracefully.
func (e *Executor) Execute(ctx context.Context, artifact *CodeArtifact, bindings map[string]interface{}) *ExecutionOutcome {
	startTime := time.Now()
	outcome := func(o *ExecutionOutcome) *ExecutionOutcome {
		o.Duration = time.Since(startTime)
		if !o.Success {
			e.logger.Warn("Sandbox execution failed", map[string]interface{}{
				"operation":   "sandbox_execute",
				"artifact_id": artifact.ID,
				"error":       o.Error,
				"timed_out":   o.TimedOut,
			})
		}
		return o
	}

	if strings.TrimSpace(artifact.Source) == "" {
		return outcome(&ExecutionOutcome{Error: "artifact has no source"})
	}
	if len(artifact.Source) > maxSourceBytes {
		return outcome(&ExecutionOutcome{Error: fmt.Sprintf("artifact source exceeds %d bytes", maxSourceBytes)})
	}

	predeclared := starlark.StringDict{}
	for _, name := range artifact.Inputs {
		value, ok := bindings[name]
		if !ok {
			return outcome(&ExecutionOutcome{Error: fmt.Sprintf("declared input %q has no binding", name)})
		}
		converted, err := toStarlark(value)
		if err != nil {
			return outcome(&ExecutionOutcome{Error: fmt.Sprintf("binding %q: %v", name, err)})
		}
		predeclared[name] = converted
	}

	thread := &starlark.Thread{Name: "artifact-" + artifact.ID}
	thread.SetMaxExecutionSteps(e.maxSteps)

	var globals starlark.StringDict
	err := e.runWithTimeout(ctx, thread, func() error {
		loaded, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, artifact.ID+".star", artifact.Source, predeclared)
		if err != nil {
			return err
		}
		globals = loaded
		return nil
	})
	if err != nil {
		return outcome(&ExecutionOutcome{Error: err.Error(), TimedOut: isTimeout(err)})
	}

	resultValue, ok := globals[resultGlobal]
	if !ok {
		if mainFn, hasMain := globals["main"]; hasMain {
			err := e.runWithTimeout(ctx, thread, func() error {
				called, err := starlark.Call(thread, mainFn, nil, nil)
				if err != nil {
					return err
				}
				resultValue = called
				return nil
			})
			if err != nil {
				return outcome(&ExecutionOutcome{Error: err.Error(), TimedOut: isTimeout(err)})
			}
		} else {
			return outcome(&ExecutionOutcome{Error: "program defines neither a result global nor a main function"})
		}
	}

	encoded, err := encodeResult(resultValue)
	if err != nil {
		return outcome(&ExecutionOutcome{Error: err.Error()})
	}
	if len(encoded) > e.maxOutBytes {
		return outcome(&ExecutionOutcome{Error: fmt.Sprintf("program output exceeds %d bytes", e.maxOutBytes)})
	}

	e.logger.Debug("Sandbox execution completed", map[string]interface{}{
		"operation":   "sandbox_execute",
		"artifact_id": artifact.ID,
		"output_size": len(encoded),
	})
	return outcome(&ExecutionOutcome{Success: true, Value: encoded})
}

type timeoutError struct {
	timeout time.Duration
	cause   error
}

func (e *timeoutError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("execution timed out after %s: %v", e.timeout, e.cause)
	}
	return fmt.Sprintf("execution timed out after %s", e.timeout)
}

func isTimeout(err error) bool {
	_, ok := err.(*timeoutError)
	return ok
}

func (e *Executor) runWithTimeout(ctx context.Context, thread *starlark.Thread, fn func() error) error {
	if e.timeout <= 0 {
		return fn()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		thread.Cancel("pipeline canceled")
		<-done
		return ctx.Err()
	case <-timer.C:
		thread.Cancel("execution timed out")
		err := <-done
		return &timeoutError{timeout: e.timeout, cause: err}
	}
}

// toStarlark converts a JSON-shaped Go value into a Starlark value
func toStarlark(value interface{}) (starlark.Value, error) {
	switch v := value.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case float64:
		return starlark.Float(v), nil
	case string:
		return starlark.String(v), nil
	case []interface{}:
		elems := make([]starlark.Value, 0, len(v))
		for _, item := range v {
			converted, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			elems = append(elems, converted)
		}
		return starlark.NewList(elems), nil
	case []map[string]interface{}:
		elems := make([]starlark.Value, 0, len(v))
		for _, item := range v {
			converted, err := toStarlark(map[string]interface{}(item))
			if err != nil {
				return nil, err
			}
			elems = append(elems, converted)
		}
		return starlark.NewList(elems), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(v))
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			converted, err := toStarlark(v[key])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(key), converted); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported binding type %T", value)
	}
}

// fromStarlark converts a Starlark value back into a JSON-shaped Go value
func fromStarlark(value starlark.Value) (interface{}, error) {
	switch v := value.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		return v.String(), nil
	case starlark.Float:
		return float64(v), nil
	case starlark.String:
		return string(v), nil
	case *starlark.List:
		out := make([]interface{}, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			converted, err := fromStarlark(v.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	case starlark.Tuple:
		out := make([]interface{}, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			converted, err := fromStarlark(v.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]interface{}, v.Len())
		for _, key := range v.Keys() {
			name, ok := starlark.AsString(key)
			if !ok {
				return nil, fmt.Errorf("dict key %s is not a string", key.String())
			}
			item, _, err := v.Get(key)
			if err != nil {
				return nil, err
			}
			converted, err := fromStarlark(item)
			if err != nil {
				return nil, err
			}
			out[name] = converted
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported result type %s", value.Type())
	}
}

func encodeResult(value starlark.Value) (string, error) {
	converted, err := fromStarlark(value)
	if err != nil {
		return "", fmt.Errorf("convert program result: %w", err)
	}
	encoded, err := json.Marshal(converted)
	if err != nil {
		return "", fmt.Errorf("encode program result: %w", err)
	}
	return string(encoded), nil
}
