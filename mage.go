//go:build mage
// +build mage

package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"

	"github.com/magefile/mage/mg"
	"github.com/pkg/errors"
)

// Build builds the daemon binary. Note that the input hook and injection
// libraries require cgo, so cross builds need a matching C toolchain.
func Build(ctx context.Context) error {
	args := []string{"build", "-ldflags=-s -w"}
	if runtime.GOOS == "linux" {
		args = append(args, "-buildmode=pie")
	}
	args = append(args, "./cmd/macrod")
	cmd := exec.CommandContext(ctx, "go", args...)
	_, err := runCommand(cmd, mg.Verbose())
	return err
}

// Test runs all of the basic tests.
func Test(ctx context.Context) error {
	args := []string{"test"}
	if mg.Verbose() {
		args = append(args, "-v")
	}
	args = append(args, "./...")
	cmd := exec.CommandContext(ctx, "go", args...)
	_, err := runCommand(cmd, mg.Verbose())
	return err
}

// TestRepeat runs all of the basic tests multiple times with the race detector
// enabled to better determine if the tests are consistent and race free.
func TestRepeat(ctx context.Context) error {
	args := []string{"test", "-race", "-count=10"}
	if mg.Verbose() {
		args = append(args, "-v")
	}
	if env := os.Getenv("CPU_PROFILE"); env != "" {
		args = append(args, fmt.Sprintf("-cpuprofile=%s", env))
	}
	if env := os.Getenv("TEST_PKG"); env != "" {
		args = append(args, env)
	} else {
		args = append(args, "./...")
	}
	cmd := exec.CommandContext(ctx, "go", args...)
	_, err := runCommand(cmd, mg.Verbose())
	return err
}

// Lint runs the linters.
//
// Note that the linters emitting warnings will not be considered a failure.
func Lint(ctx context.Context) error {
	mg.SerialCtxDeps(ctx, vet, golint)
	return nil
}

// vet runs go vet.
func vet(ctx context.Context) error {
	packages, err := getPackages(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to get package list")
	}

	var args = append([]string{"vet"}, packages...)
	cmd := exec.CommandContext(ctx, "go", args...)
	_, err = runCommand(cmd, mg.Verbose())
	return err
}

// golint runs golint.
func golint(ctx context.Context) error {
	_, err := exec.LookPath("golint")
	if err != nil {
		return errors.Wrap(err, "unable to run golint")
	}

	packages, err := getPackages(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to get package list")
	}

	args := []string{"-min_confidence=0.3"}
	args = append(args, packages...)
	cmd := exec.CommandContext(ctx, "golint", args...)
	_, err = runCommand(cmd, mg.Verbose())
	return err
}

// getPackages gets the package paths for all of the packages in the module.
func getPackages(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "go", "list", "./...")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, errors.Errorf("unable to get packages: %+v\nOutput:\n%s", err, string(out))
	}

	var packages []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		packages = append(packages, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "unable to get packages")
	}

	return packages, nil
}

func runCommand(cmd *exec.Cmd, useStdOutput bool) (*bytes.Buffer, error) {
	buf := &bytes.Buffer{}
	var w io.Writer
	if useStdOutput {
		w = io.MultiWriter(buf, os.Stdout)
	} else {
		w = buf
	}
	cmd.Stdout = w
	cmd.Stderr = w

	err := cmd.Run()
	return buf, err
}
