package jobs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gyaneshwarpardhi/never2/internal/network"
	"github.com/gyaneshwarpardhi/never2/internal/project"
)

// Command is an external program a strategy delegates to. File arguments
// are appended after Args.
type Command struct {
	Path string
	Args []string
}

// ExecVerifier runs an external verifier on the network file and its
// property file. The last non-empty output line carries the verdict:
// "unsat" or "safe" for a proven property, "sat" or "unsafe" otherwise.
type ExecVerifier struct {
	Command Command
}

func (v ExecVerifier) Verify(ctx context.Context, req *Request, log *slog.Logger) (*Verdict, error) {
	dir, err := os.MkdirTemp("", "never2-verify-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	netPath, err := writeNetwork(dir, req)
	if err != nil {
		return nil, err
	}
	propPath := project.PropertiesPath(netPath)
	if err := project.SaveProperties(propPath, req.Pre, req.Post); err != nil {
		return nil, err
	}
	out, err := runCommand(ctx, v.Command, log, netPath, propPath)
	if err != nil {
		return nil, err
	}
	return ParseVerdict(out)
}

// ExecTrainer runs an external trainer that reads the network file and
// writes the trained network to the second path, in the same format.
type ExecTrainer struct {
	Command Command
}

func (t ExecTrainer) Train(ctx context.Context, req *Request, log *slog.Logger) (*network.Sequential, error) {
	dir, err := os.MkdirTemp("", "never2-train-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	netPath, err := writeNetwork(dir, req)
	if err != nil {
		return nil, err
	}
	outPath := filepath.Join(dir, "trained.yaml")
	if _, err := runCommand(ctx, t.Command, log, netPath, outPath); err != nil {
		return nil, err
	}
	fh, err := os.Open(outPath)
	if err != nil {
		return nil, fmt.Errorf("trainer produced no network: %w", err)
	}
	defer fh.Close()
	nn, _, err := project.YAMLFormat{}.Read(fh)
	if err != nil {
		return nil, fmt.Errorf("read trained network: %w", err)
	}
	return nn, nil
}

func writeNetwork(dir string, req *Request) (string, error) {
	path := filepath.Join(dir, "network.yaml")
	fh, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := (project.YAMLFormat{}).Write(fh, req.Network, req.InputDim); err != nil {
		fh.Close()
		return "", err
	}
	return path, fh.Close()
}

// runCommand runs cmd with the extra file arguments, logs every output line
// as progress and returns the captured output.
func runCommand(ctx context.Context, cmd Command, log *slog.Logger, files ...string) (string, error) {
	if cmd.Path == "" {
		return "", fmt.Errorf("no command configured")
	}
	args := append(append([]string{}, cmd.Args...), files...)
	c := exec.CommandContext(ctx, cmd.Path, args...)
	var stderr bytes.Buffer
	c.Stderr = &stderr
	out, err := c.Output()

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			log.Info("strategy output", "line", line)
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%s: %w: %s", filepath.Base(cmd.Path), err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}

// ParseVerdict reads the verdict from the last non-empty line of out.
func ParseVerdict(out string) (*Verdict, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	for _, tok := range strings.Fields(strings.ToLower(last)) {
		tok = strings.Trim(tok, ".:;,!")
		switch tok {
		case "unsat", "safe", "verified":
			return &Verdict{Safe: true, Detail: last}, nil
		case "sat", "unsafe", "violated", "falsified":
			return &Verdict{Safe: false, Detail: last}, nil
		}
	}
	return nil, fmt.Errorf("inconclusive verifier output %q", last)
}
