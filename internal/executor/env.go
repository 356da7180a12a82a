package executor

import (
	"fmt"
	"os"
)

// buildChildEnv merges the current process environment with the env vars an
// ExecutionEnv carries, in KEY=VALUE form suitable for exec.Cmd.Env.
func buildChildEnv(env ExecutionEnv) []string {
	out := append([]string{}, os.Environ()...)
	for k, v := range env.EnvVars {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}
