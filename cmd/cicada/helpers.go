package main

import (
	"fmt"
	"os"
	"strings"

	"cicada/internal/config"
	"cicada/internal/node"
)

// checkEnumFlag rejects flag values the node would otherwise coerce to
// the parameter default without telling the user.
func checkEnumFlag(spec node.Spec, param, flag, value string) error {
	p, ok := spec.Param(param)
	if !ok {
		return nil
	}
	for _, option := range p.Options {
		if option == value {
			return nil
		}
	}
	return fmt.Errorf("invalid --%s %q (choose one of: %s)", flag, value, strings.Join(p.Options, ", "))
}

// applyOutputDir points the environment at a per-invocation output
// directory, creating it if needed.
func applyOutputDir(env *node.Env, dir string) error {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	expanded, err := config.ExpandPath(dir)
	if err != nil {
		return fmt.Errorf("resolve output directory: %w", err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	env.OutputDir = expanded
	return nil
}

func truncateText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
