// Package agent implements a bounded, observable agent loop over the llm
// package's provider-neutral client.
//
// A Session pairs a streaming language model with developer tools. It
// orchestrates model calls, concurrent tool execution, output truncation,
// steering, typed events, and loop detection, and confines all filesystem
// and command access to a scoped execution environment when configured.
//
// # Architecture
//
//   - Session: the central orchestrator holding conversation state,
//     dispatching tool calls, managing events, and enforcing limits.
//   - ProviderProfile: provider-aligned tool and prompt configuration.
//   - ExecutionEnvironment: abstraction for where tools run, with
//     ScopedExecutionEnvironment providing symlink-aware containment.
//   - ToolRegistry: registration and dispatch of tool executors, including
//     namespaced tools from external MCP servers.
//   - EventEmitter: typed event stream for host application integration.
//
// # Quick Start
//
//	client := llm.NewClient(llm.WithProvider("anthropic", adapter))
//	profile := agent.NewProviderProfile("anthropic", "claude-opus-4-6")
//	env := agent.NewLocalExecutionEnvironment("/path/to/project")
//
//	session, err := agent.NewSession(client, profile, env, agent.DefaultSessionConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	go func() {
//	    for event := range session.Events() {
//	        fmt.Printf("[%s] %v\n", event.Kind, event.Data)
//	    }
//	}()
//
//	if err := session.Submit(ctx, "Create a hello.py file"); err != nil {
//	    log.Fatal(err)
//	}
package agent
