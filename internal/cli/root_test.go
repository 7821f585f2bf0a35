package cli

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/danieljhkim/docplan/internal/config"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	for _, k := range []string{config.EnvSourceRoot, config.EnvOutputRoot, config.EnvRenderer, config.EnvLogLevel} {
		_ = os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

// runCLI executes the root command with fresh flag values and returns what
// it wrote to stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	opts = globalOptions{}
	planTier = ""
	initForce, initSample = false, false

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := Execute()
	if testing.Verbose() && errOut.Len() > 0 {
		t.Logf("stderr:\n%s", errOut.String())
	}
	return out.String(), err
}

func TestRootCommand_Help(t *testing.T) {
	output, err := runCLI(t, "--help")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	for _, want := range []string{"docplan", "Build Targets:", "build-images", "Inspection:", "--stale-on-equal"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected help to contain %q", want)
		}
	}
}

func TestRootCommand_Version(t *testing.T) {
	SetVersion("1.2.3")
	defer SetVersion("dev")

	output, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if strings.TrimSpace(output) != "1.2.3" {
		t.Errorf("version output = %q, want 1.2.3", output)
	}
}

func TestRootCommand_InvalidCommand(t *testing.T) {
	_, err := runCLI(t, "invalid-command")
	if err == nil {
		t.Fatal("expected error for invalid command")
	}
	if got := ExitCodeFor(err); got != ExitUsage {
		t.Errorf("ExitCodeFor() = %d, want %d", got, ExitUsage)
	}
}

func TestRootCommand_InvalidFlag(t *testing.T) {
	_, err := runCLI(t, "build", "--jobs", "many")
	if got := ExitCodeFor(err); got != ExitUsage {
		t.Errorf("ExitCodeFor(%v) = %d, want %d", err, got, ExitUsage)
	}
}

func TestRootCommand_WrongArgCount(t *testing.T) {
	_, err := runCLI(t, "render")
	if got := ExitCodeFor(err); got != ExitUsage {
		t.Errorf("ExitCodeFor(%v) = %d, want %d", err, got, ExitUsage)
	}
}

func TestSetVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    string
	}{
		{"normal version", "1.2.3", "1.2.3"},
		{"empty version", "", "1.2.3"}, // Should not change if empty
		{"dev version", "dev", "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersion(tt.version)
			if rootCmd.Version != tt.want {
				t.Errorf("SetVersion(%q) = %q, want %q", tt.version, rootCmd.Version, tt.want)
			}
		})
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	subcommands := []string{
		"expand-templates", "build-images", "build-index", "render", "export",
		"build", "plan", "watch", "init", "kinds", "version", "help",
	}

	for _, cmd := range subcommands {
		t.Run(cmd, func(t *testing.T) {
			subCmd, _, err := rootCmd.Find([]string{cmd})
			if err != nil {
				t.Errorf("Find(%q) error = %v", cmd, err)
			}
			if subCmd == nil || subCmd == rootCmd {
				t.Errorf("Find(%q) did not return the subcommand", cmd)
			}
		})
	}
}
