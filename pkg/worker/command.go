package worker

import (
	"fmt"
	"strings"

	"github.com/forgelabs/fabric/pkg/resources"
	"github.com/forgelabs/fabric/pkg/types"
)

// buildSandboxSpec turns a resolved ToolDescriptor and the Task requesting
// it into the SandboxConfig and Command the sandbox lifecycle needs.
// Parameters are substituted into the descriptor's command template by
// "${name}" token, the same shape the registry's OpenAPI-derived
// descriptors use for positional arguments.
func buildSandboxSpec(tool *types.ToolDescriptor, task *types.Task) (types.SandboxConfig, []string, error) {
	if len(tool.CommandTemplate) == 0 {
		return types.SandboxConfig{}, nil, fmt.Errorf("tool %s has an empty command template", tool.ToolID)
	}

	command := make([]string, len(tool.CommandTemplate))
	for i, arg := range tool.CommandTemplate {
		command[i] = substituteParameters(arg, task.ExecutionRequest.Parameters)
	}

	isolationType := types.IsolationProcess
	if len(tool.AllowedIsolationTypes) > 0 {
		isolationType = tool.AllowedIsolationTypes[0]
	}

	limits := tool.DefaultResourceLimits
	if task.ExecutionRequest.Options.ResourceLimits != nil {
		limits = resources.WithDefaults(*task.ExecutionRequest.Options.ResourceLimits, tool.DefaultResourceLimits)
	}

	environment := make(map[string]string, len(task.ExecutionRequest.Context.Environment))
	for k, v := range task.ExecutionRequest.Context.Environment {
		environment[k] = v
	}

	config := types.SandboxConfig{
		IsolationType:  isolationType,
		Image:          tool.Image,
		Command:        command,
		Environment:    environment,
		ResourceLimits: limits,
		SecurityPolicy: tool.DefaultSecurityPolicy,
		TenantID:       task.ExecutionRequest.Context.TenantID,
		CreatedBy:      task.ExecutionRequest.Context.UserID,
	}
	return config, command, nil
}

func substituteParameters(arg string, parameters map[string]any) string {
	if !strings.Contains(arg, "${") {
		return arg
	}
	out := arg
	for name, value := range parameters {
		out = strings.ReplaceAll(out, "${"+name+"}", fmt.Sprint(value))
	}
	return out
}
