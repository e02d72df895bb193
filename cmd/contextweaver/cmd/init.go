package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/contextweaver/contextweaver/configs"
	"github.com/contextweaver/contextweaver/internal/config"
	"github.com/contextweaver/contextweaver/internal/output"
	"github.com/contextweaver/contextweaver/pkg/version"
)

// mcpServerConfig is one entry in .mcp.json's mcpServers map.
type mcpServerConfig struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

type mcpJSONConfig struct {
	MCPServers map[string]mcpServerConfig `json:"mcpServers"`
}

func newInitCmd() *cobra.Command {
	var (
		global     bool
		force      bool
		configOnly bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize ContextWeaver for a project",
		Long: `Initialize ContextWeaver for the current project.

This command:
1. Configures MCP integration (via 'claude mcp add' or .mcp.json)
2. Generates a .contextweaver.yaml configuration template
3. Indexes the project (unless --config-only)`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runInit(ctx, cmd, global, force, configOnly)
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "Configure for all projects (user scope)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&configOnly, "config-only", false, "Configure MCP only, skip indexing")

	return cmd
}

func runInit(ctx context.Context, cmd *cobra.Command, global, force, configOnly bool) error {
	out := output.New(cmd.OutOrStdout())
	out.Statusf("🚀", "ContextWeaver %s - Initializing...", version.Version)
	out.Newline()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	root, err := config.FindProjectRoot(cwd)
	if err != nil {
		root = cwd
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	out.Statusf("📁", "Project: %s", absRoot)

	mcpConfigPath := filepath.Join(absRoot, ".mcp.json")
	if !force {
		if _, err := os.Stat(mcpConfigPath); err == nil {
			out.Warning("Project already initialized (.mcp.json exists)")
			out.Status("💡", "Use --force to reinitialize")
			return nil
		}
	}

	out.Newline()
	out.Status("⚙️ ", "Configuring MCP integration...")
	mcpConfigured, err := configureMCP(ctx, out, absRoot, global, force)
	if err != nil {
		out.Warningf("MCP configuration failed: %v", err)
		out.Status("💡", "You can manually configure .mcp.json later")
	} else if mcpConfigured {
		out.Success("Added MCP server")
	}

	if err := generateProjectConfig(out, absRoot); err != nil {
		out.Warningf("Could not create .contextweaver.yaml template: %v", err)
	}

	if global && !config.UserConfigExists() {
		if err := generateUserConfig(out); err != nil {
			out.Warningf("Could not create user config: %v", err)
		}
	}

	if configOnly {
		out.Newline()
		out.Status("⏭️ ", "Skipping indexing (--config-only)")
	} else {
		if _, err := buildEmbedder(absRoot); err != nil {
			out.Newline()
			out.Warningf("Embedding service unavailable: %v", err)
			out.Status("ℹ️ ", "Search will fall back to lexical-only recall until CONTEXTWEAVER_EMBEDDING_BASE_URL is set")
		}

		out.Newline()
		out.Status("📊", "Indexing project...")
		start := time.Now()
		if err := runIndex(ctx, absRoot, false); err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}
		out.Statusf("⏱️ ", "Completed in %.1fs", time.Since(start).Seconds())
	}

	out.Newline()
	out.Success("Initialization complete!")
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Restart your AI coding assistant to pick up the MCP server")
	out.Status("", "  2. Run 'contextweaver doctor' to verify setup")

	if !mcpConfigured {
		out.Newline()
		out.Warning("MCP not auto-configured - manual setup required")
		out.Status("💡", fmt.Sprintf("Add to .mcp.json: %s", mcpConfigPath))
	}

	return nil
}

func generateProjectConfig(out *output.Writer, projectRoot string) error {
	yamlPath := filepath.Join(projectRoot, ".contextweaver.yaml")
	if fileExists(yamlPath) {
		out.Status("ℹ️ ", "Existing .contextweaver.yaml preserved")
		return nil
	}
	ymlPath := filepath.Join(projectRoot, ".contextweaver.yml")
	if fileExists(ymlPath) {
		out.Status("ℹ️ ", "Existing .contextweaver.yml found, skipping template")
		return nil
	}

	if err := os.WriteFile(yamlPath, []byte(configs.ProjectConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write .contextweaver.yaml: %w", err)
	}
	out.Statusf("📝", "Created %s", yamlPath)
	return nil
}

func generateUserConfig(out *output.Writer) error {
	path := config.GetUserConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.UserConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write user config: %w", err)
	}
	out.Statusf("📝", "Created %s", path)
	return nil
}

func configureMCP(ctx context.Context, out *output.Writer, projectRoot string, global, force bool) (bool, error) {
	if claudeConfigured, err := configureViaClaude(ctx, out, projectRoot, global); err == nil && claudeConfigured {
		return true, nil
	}
	return configureViaMCPJSON(out, projectRoot, force)
}

func configureViaClaude(ctx context.Context, out *output.Writer, projectRoot string, global bool) (bool, error) {
	if !global {
		out.Status("ℹ️ ", "Using .mcp.json for project scope (supports cwd)")
		return false, nil
	}

	claudePath, err := exec.LookPath("claude")
	if err != nil {
		out.Status("ℹ️ ", "claude CLI not found, using .mcp.json fallback")
		return false, nil
	}

	binPath, err := findOwnBinary()
	if err != nil {
		return false, fmt.Errorf("failed to find contextweaver binary: %w", err)
	}

	args := []string{"mcp", "add", "--transport", "stdio", "--scope", "user", "contextweaver", "--", binPath, "serve"}
	c := exec.CommandContext(ctx, claudePath, args...)
	c.Dir = projectRoot
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return false, fmt.Errorf("claude mcp add failed: %w", err)
	}
	return true, nil
}

func configureViaMCPJSON(out *output.Writer, projectRoot string, force bool) (bool, error) {
	mcpPath := filepath.Join(projectRoot, ".mcp.json")

	var existing mcpJSONConfig
	if data, err := os.ReadFile(mcpPath); err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			return false, fmt.Errorf("failed to parse existing .mcp.json: %w", err)
		}
		if _, ok := existing.MCPServers["contextweaver"]; ok && !force {
			out.Status("ℹ️ ", "ContextWeaver already configured in .mcp.json")
			return true, nil
		}
	} else {
		existing = mcpJSONConfig{MCPServers: make(map[string]mcpServerConfig)}
	}

	binPath, err := findOwnBinary()
	if err != nil {
		return false, fmt.Errorf("failed to find contextweaver binary: %w", err)
	}

	existing.MCPServers["contextweaver"] = mcpServerConfig{
		Type:    "stdio",
		Command: binPath,
		Args:    []string{"serve"},
		Cwd:     projectRoot,
	}

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(mcpPath, data, 0644); err != nil {
		return false, fmt.Errorf("failed to write .mcp.json: %w", err)
	}
	out.Statusf("📝", "Created %s", mcpPath)
	return true, nil
}

func findOwnBinary() (string, error) {
	execPath, err := os.Executable()
	if err == nil {
		if realPath, err := filepath.EvalSymlinks(execPath); err == nil {
			return realPath, nil
		}
		return execPath, nil
	}
	path, err := exec.LookPath("contextweaver")
	if err != nil {
		return "", fmt.Errorf("contextweaver not found in PATH: %w", err)
	}
	return path, nil
}
