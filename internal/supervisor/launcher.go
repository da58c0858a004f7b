package supervisor

import (
	"fmt"

	"github.com/mattn/go-shellwords"
	"github.com/vibe-homelab/vision-insight-api/internal/catalog"
)

// Launcher resolves the argv used to spawn a worker for a given catalog
// entry. This replaces branching on model_type at every call site with a
// single lookup against a launch descriptor, as suggested by the tagged
// worker-kind approach.
type Launcher interface {
	Launch(alias string, kind catalog.Kind, modelPath string, port uint16, params map[string]any) (name string, args []string, err error)
}

// BinaryLauncher resolves one worker executable path per catalog.Kind and
// invokes it with the --alias/--model_path/--port flag contract every
// worker binary is expected to implement. A model's `params.extra_args`
// string, if present, is split with shell quoting rules and appended, so an
// operator can pass backend-specific flags without the core knowing their
// shape.
type BinaryLauncher struct {
	// Binaries maps a model kind to the worker executable that serves it.
	Binaries map[catalog.Kind]string
}

func (b *BinaryLauncher) Launch(alias string, kind catalog.Kind, modelPath string, port uint16, params map[string]any) (string, []string, error) {
	bin, ok := b.Binaries[kind]
	if !ok {
		return "", nil, fmt.Errorf("no worker binary configured for kind %q", kind)
	}
	args := []string{
		"--alias", alias,
		"--model_path", modelPath,
		"--port", fmt.Sprintf("%d", port),
	}

	if raw, ok := params["extra_args"]; ok {
		s, ok := raw.(string)
		if !ok || s == "" {
			return bin, args, nil
		}
		extra, err := shellwords.Parse(s)
		if err != nil {
			return "", nil, fmt.Errorf("model %q: parsing params.extra_args: %w", alias, err)
		}
		args = append(args, extra...)
	}

	return bin, args, nil
}
