// Package mcp exposes the click engine as MCP tools over stdio, so
// assistants can create tasks, fire one-shot clicks and run scripts.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"ghostclick/internal/core"
	"ghostclick/internal/script"
	"ghostclick/internal/store"
	"ghostclick/internal/window"
)

// MCPServer represents the MCP server that handles protocol communication.
type MCPServer struct {
	scheduler *core.Scheduler
	tasks     *store.TaskFile
	templates *store.TemplateLibrary
	scripts   *script.Library
	runner    *script.Runner
	logger    *slog.Logger
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(scheduler *core.Scheduler, tasks *store.TaskFile, templates *store.TemplateLibrary, scripts *script.Library, runner *script.Runner, logger *slog.Logger) *MCPServer {
	return &MCPServer{
		scheduler: scheduler,
		tasks:     tasks,
		templates: templates,
		scripts:   scripts,
		runner:    runner,
		logger:    logger,
	}
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	mcpServer := server.NewMCPServer(
		"ghostclick",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)
	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(mcpServer)
}

// registerTools registers all available MCP tools.
func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("click_add_task",
		mcp.WithDescription("Create a click automation task: find a template image inside a window and click it. The task starts when the engine is running and the task is enabled."),
		mcp.WithString("window",
			mcp.Description("Window title pattern: '*x*' contains, '*x' ends with, 'x*' starts with, plain 'x' exact or substring"),
		),
		mcp.WithString("process",
			mcp.Description("Process name, e.g. 'Code.exe'. Used instead of the title pattern when set"),
		),
		mcp.WithString("image",
			mcp.Required(),
			mcp.Description("Template image name from the library"),
		),
		mcp.WithString("action",
			mcp.Description("Pointer gesture: click, double_click or right_click. Default click"),
			mcp.Enum("click", "double_click", "right_click"),
		),
		mcp.WithBoolean("repeat",
			mcp.Description("Keep looking after a click instead of stopping. Default false"),
		),
		mcp.WithNumber("interval_s",
			mcp.Description("Seconds between checks for repeating tasks. Default 5"),
			mcp.Min(0.1),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Match confidence in [0.5, 0.99]. Default 0.85"),
			mcp.Min(0.5),
			mcp.Max(0.99),
		),
	), s.handleAddTask)

	mcpServer.AddTool(mcp.NewTool("click_list_tasks",
		mcp.WithDescription("List all click tasks with their live status"),
	), s.handleListTasks)

	mcpServer.AddTool(mcp.NewTool("click_remove_task",
		mcp.WithDescription("Remove a click task. Its worker is stopped first"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleRemoveTask)

	mcpServer.AddTool(mcp.NewTool("click_start",
		mcp.WithDescription("Start the engine, or one task when task_id is given"),
		mcp.WithString("task_id",
			mcp.Description("Task ID (optional)"),
		),
	), s.handleStart)

	mcpServer.AddTool(mcp.NewTool("click_stop",
		mcp.WithDescription("Stop the engine, or one task when task_id is given"),
		mcp.WithString("task_id",
			mcp.Description("Task ID (optional)"),
		),
	), s.handleStop)

	mcpServer.AddTool(mcp.NewTool("click_once",
		mcp.WithDescription("Find a template in a window and click it once, outside any task"),
		mcp.WithString("window",
			mcp.Description("Window title pattern"),
		),
		mcp.WithString("process",
			mcp.Description("Process name, used instead of the title pattern when set"),
		),
		mcp.WithString("image",
			mcp.Required(),
			mcp.Description("Template image name"),
		),
		mcp.WithString("action",
			mcp.Description("click, double_click or right_click. Default click"),
			mcp.Enum("click", "double_click", "right_click"),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Match confidence. Default 0.85"),
			mcp.Min(0.5),
			mcp.Max(0.99),
		),
	), s.handleClickOnce)

	mcpServer.AddTool(mcp.NewTool("click_run_script",
		mcp.WithDescription("Run a JSON automation script from the script library"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Script name"),
		),
	), s.handleRunScript)

	mcpServer.AddTool(mcp.NewTool("click_list_resources",
		mcp.WithDescription("List the available windows, template images and scripts"),
	), s.handleListResources)

	s.logger.Info("MCP tools registered", "count", 8)
}

func (s *MCPServer) persistTasks() {
	if err := s.tasks.Save(s.scheduler.List()); err != nil {
		s.logger.Error("persist tasks", "err", err)
	}
}

func selectorFromRequest(request mcp.CallToolRequest) window.Selector {
	return window.Selector{
		Title:   mcp.ParseString(request, "window", ""),
		Process: mcp.ParseString(request, "process", ""),
	}
}

func (s *MCPServer) handleAddTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sel := selectorFromRequest(request)
	task := &core.Task{
		ID:              core.NewID(),
		Selector:        sel,
		Target:          core.Target{Template: mcp.ParseString(request, "image", "")},
		Action:          core.ActionKind(mcp.ParseString(request, "action", "")),
		Repeat:          mcp.ParseBoolean(request, "repeat", false),
		IntervalSeconds: mcp.ParseFloat64(request, "interval_s", 0),
		Threshold:       mcp.ParseFloat64(request, "threshold", 0),
		Enabled:         true,
	}
	if err := s.scheduler.Add(task); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create task failed: %v", err)), nil
	}
	s.persistTasks()
	s.logger.Info("task created", "task_id", task.ID, "selector", sel.String())
	return mcp.NewToolResultText(fmt.Sprintf("Task created\nID: %s\nWindow: %s\nImage: %s",
		task.ID, sel.String(), task.Target.Template)), nil
}

func (s *MCPServer) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks := s.scheduler.List()
	if len(tasks) == 0 {
		return mcp.NewToolResultText("No tasks configured"), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d tasks:\n\n", len(tasks))
	for _, task := range tasks {
		state, _ := s.scheduler.State(task.ID)
		running := "stopped"
		if state.Running {
			running = "running"
		}
		fmt.Fprintf(&b, "%s (%s)\n", task.ID, running)
		fmt.Fprintf(&b, "  Window: %s\n", task.Selector.String())
		if task.Target.Kind == core.TargetMultiOption {
			names := make([]string, len(task.Target.Options))
			for i, opt := range task.Target.Options {
				names[i] = opt.Name
			}
			fmt.Fprintf(&b, "  Options: %s (clicks %s)\n",
				strings.Join(names, ", "), task.Target.Options[task.Target.Selected].Name)
		} else {
			fmt.Fprintf(&b, "  Image: %s\n", task.Target.Template)
		}
		fmt.Fprintf(&b, "  Status: %s, clicks: %d\n\n", state.Status, state.Clicks)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleRemoveTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	if err := s.scheduler.Remove(taskID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("remove task failed: %v", err)), nil
	}
	s.persistTasks()
	return mcp.NewToolResultText(fmt.Sprintf("Task %s removed", taskID)), nil
}

func (s *MCPServer) handleStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	if taskID == "" {
		s.scheduler.Start()
		return mcp.NewToolResultText("Engine started"), nil
	}
	if err := s.scheduler.StartTask(taskID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("start task failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task %s started", taskID)), nil
}

func (s *MCPServer) handleStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	if taskID == "" {
		s.scheduler.Stop()
		return mcp.NewToolResultText("Engine stopped"), nil
	}
	if err := s.scheduler.StopTask(taskID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stop task failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task %s stopped", taskID)), nil
}

func (s *MCPServer) handleClickOnce(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sel := selectorFromRequest(request)
	if err := sel.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	image := mcp.ParseString(request, "image", "")
	action := core.ActionKind(mcp.ParseString(request, "action", ""))
	threshold := mcp.ParseFloat64(request, "threshold", 0)

	score, err := s.scheduler.ClickOnce(ctx, sel, image, action, threshold)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("click failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Clicked %s in %s (%d%% match)",
		image, sel.String(), int(score*100))), nil
}

func (s *MCPServer) handleRunScript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := mcp.ParseString(request, "name", "")
	sc, err := s.scripts.Load(name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load script failed: %v", err)), nil
	}
	result, err := s.runner.Run(ctx, sc)
	if err != nil {
		steps := 0
		if result != nil {
			steps = len(result.Steps)
		}
		return mcp.NewToolResultError(fmt.Sprintf("script failed after %d steps: %v", steps, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Script %s finished, %d steps ok", sc.Name, len(result.Steps))), nil
}

func (s *MCPServer) handleListResources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder

	wins, err := s.scheduler.Windows()
	if err != nil {
		fmt.Fprintf(&b, "Windows: unavailable (%v)\n\n", err)
	} else {
		fmt.Fprintf(&b, "Windows (%d):\n", len(wins))
		for _, win := range wins {
			state := ""
			if win.Minimized {
				state = " [minimized]"
			}
			fmt.Fprintf(&b, "  %s (%s)%s\n", win.Title, win.Process, state)
		}
		b.WriteString("\n")
	}

	templates, err := s.templates.List()
	if err == nil {
		fmt.Fprintf(&b, "Templates (%d): %s\n", len(templates), strings.Join(templates, ", "))
	}
	scripts, err := s.scripts.List()
	if err == nil {
		fmt.Fprintf(&b, "Scripts (%d): %s\n", len(scripts), strings.Join(scripts, ", "))
	}
	return mcp.NewToolResultText(b.String()), nil
}
