// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mia-platform/logdispatch/internal/config"
	"github.com/mia-platform/logdispatch/internal/dispatch"
)

var (
	errUnexpectedArguments = errors.New("unexpected arguments")
	errInvalidFlag         = errors.New("invalid flag value")
)

// handleError will do custom print error handling based on the type of error received.
// it will return nil if the command must return 0 exit code, otherwise it will return
// the original error.
func handleError(cmd *cobra.Command, err error) error {
	switch {
	case errors.Is(err, errUnexpectedArguments), errors.Is(err, errInvalidFlag):
		cmd.PrintErrln(err)
		_ = cmd.Usage() // do not check error as we cannot do much about it
		return err
	default:
		cmd.PrintErrln(err)
		return err
	}
}

// noArgs rejects positional arguments reporting them with errUnexpectedArguments.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return handleError(cmd, fmt.Errorf("%w: %v", errUnexpectedArguments, args))
	}
	return nil
}

// unwrappedError returns the unwrapped error if available, otherwise it returns the original error.
func unwrappedError(err error) error {
	if unwrapped := errors.Unwrap(err); unwrapped != nil {
		return unwrapped
	}

	return err
}

func collectPaths(paths []string) ([]string, error) {
	collected := make([]string, 0)
	for _, p := range paths {
		cleanedPath := filepath.Clean(p)
		err := filepath.Walk(cleanedPath, func(walkedPath string, info fs.FileInfo, err error) error {
			if err != nil {
				return fmt.Errorf("resources file %q: %w", walkedPath, unwrappedError(err))
			}

			switch {
			case !info.IsDir(): // it's a file add to the collection
				collected = append(collected, walkedPath)
			case info.IsDir() && cleanedPath != walkedPath: // skip directories if is not the root path
				return filepath.SkipDir
			}

			return nil
		})

		if err != nil {
			return nil, err
		}
	}

	return collected, nil
}

// loadResourceConfigs loads all the resource announcements from the provided paths.
func loadResourceConfigs(paths []string) ([]*config.ResourceConfig, error) {
	resources := make([]*config.ResourceConfig, 0)
	for _, path := range paths {
		fileResources, err := config.NewResourceConfigsFromPath(path)
		if err != nil {
			return nil, err
		}

		resources = append(resources, fileResources...)
	}

	return resources, nil
}

// registerResources announces resources through the endpoint, as a client would.
func registerResources(ctx context.Context, endpoint *dispatch.Endpoint, resources []*config.ResourceConfig) error {
	for _, resource := range resources {
		descriptor, scope, err := resource.Descriptor()
		if err != nil {
			return err
		}

		if err := endpoint.Call(ctx, dispatch.RegisterLoggerResource{Descriptor: descriptor, Scope: scope}); err != nil {
			return fmt.Errorf("registering resource %q: %w", resource.ID, err)
		}
	}

	return nil
}
