package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibe-homelab/vision-insight-api/internal/catalog"
)

func TestBinaryLauncherBaseArgs(t *testing.T) {
	l := &BinaryLauncher{Binaries: map[catalog.Kind]string{catalog.KindVLM: "/bin/worker-vlm"}}
	name, args, err := l.Launch("vlm-fast", catalog.KindVLM, "mlx-community/moondream2", 8001, nil)
	require.NoError(t, err)
	assert.Equal(t, "/bin/worker-vlm", name)
	assert.Equal(t, []string{"--alias", "vlm-fast", "--model_path", "mlx-community/moondream2", "--port", "8001"}, args)
}

func TestBinaryLauncherExtraArgs(t *testing.T) {
	l := &BinaryLauncher{Binaries: map[catalog.Kind]string{catalog.KindDiffusion: "/bin/worker-diffusion"}}
	params := map[string]any{"extra_args": "--quantize 4bit --seed 42"}
	_, args, err := l.Launch("image-gen", catalog.KindDiffusion, "mlx-community/FLUX.1-schnell-4bit-mlx", 8003, params)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--alias", "image-gen",
		"--model_path", "mlx-community/FLUX.1-schnell-4bit-mlx",
		"--port", "8003",
		"--quantize", "4bit",
		"--seed", "42",
	}, args)
}

func TestBinaryLauncherUnknownKind(t *testing.T) {
	l := &BinaryLauncher{Binaries: map[catalog.Kind]string{}}
	_, _, err := l.Launch("vlm-fast", catalog.KindVLM, "path", 8001, nil)
	assert.Error(t, err)
}
