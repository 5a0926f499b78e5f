package extism

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	extismSDK "github.com/extism/go-sdk"

	"github.com/robbyt/go-scriptsvc/engines/extism/adapters"
)

// CompileFunc turns module bytes into a compiled plugin.
type CompileFunc func(ctx context.Context, wasm []byte, settings Settings) (adapters.CompiledPlugin, error)

var wasmMagic = []byte{0x00, 'a', 's', 'm'}

// decodeModule accepts a binary module or its base64 text form.
func decodeModule(source []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(source)
	if len(trimmed) == 0 {
		return nil, ErrContentNil
	}
	if bytes.HasPrefix(trimmed, wasmMagic) {
		return source, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("%w: not a wasm binary or base64 text: %w", ErrCompileFailed, err)
	}
	return decoded, nil
}

func compileSDK(ctx context.Context, wasm []byte, settings Settings) (adapters.CompiledPlugin, error) {
	manifest := extismSDK.Manifest{
		Wasm:         []extismSDK.Wasm{extismSDK.WasmData{Data: wasm}},
		AllowedPaths: settings.AllowedPaths,
	}
	config := extismSDK.PluginConfig{
		EnableWasi:    settings.EnableWASI,
		RuntimeConfig: settings.RuntimeConfig,
	}
	plugin, err := extismSDK.NewCompiledPlugin(ctx, manifest, config, settings.HostFunctions)
	if err != nil {
		return nil, err
	}
	return adapters.NewCompiledPluginAdapter(plugin), nil
}
